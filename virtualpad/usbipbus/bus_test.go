package usbipbus

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDeeJay/padforge/pad"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := Listen("127.0.0.1:0", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func dial(t *testing.T, b *Bus) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", b.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeMgmt(t *testing.T, conn net.Conn, code uint16) {
	t.Helper()
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], protoVersion)
	binary.BigEndian.PutUint16(buf[2:4], code)
	_, err := conn.Write(buf[:])
	require.NoError(t, err)
}

func readMgmt(t *testing.T, conn net.Conn) (code uint16, status uint32) {
	t.Helper()
	var buf [8]byte
	require.NoError(t, readExactly(conn, buf[:]))
	assert.Equal(t, uint16(protoVersion), binary.BigEndian.Uint16(buf[0:2]))
	return binary.BigEndian.Uint16(buf[2:4]), binary.BigEndian.Uint32(buf[4:8])
}

func TestCreateAllocatesFourSlots(t *testing.T) {
	b := testBus(t)
	for i := 0; i < MaxPads; i++ {
		c, err := b.Create()
		require.NoError(t, err)
		assert.Equal(t, i, c.SlotIndex())
	}
	_, err := b.Create()
	assert.Error(t, err)
}

func TestSlotReuseAfterDisconnect(t *testing.T) {
	b := testBus(t)
	c0, err := b.Create()
	require.NoError(t, err)
	require.NoError(t, c0.Connect())
	require.NoError(t, c0.Disconnect())

	c1, err := b.Create()
	require.NoError(t, err)
	assert.Equal(t, 0, c1.SlotIndex())

	// A destroyed handle stays dead.
	assert.Error(t, c0.Connect())
	assert.Error(t, c0.Submit(pad.Gamepad{}))
}

func TestDevlistListsConnectedPads(t *testing.T) {
	b := testBus(t)
	c, err := b.Create()
	require.NoError(t, err)
	require.NoError(t, c.Connect())

	conn := dial(t, b)
	writeMgmt(t, conn, opReqDevlist)

	code, status := readMgmt(t, conn)
	assert.Equal(t, uint16(opRepDevlist), code)
	assert.Zero(t, status)

	var count uint32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &count))
	require.Equal(t, uint32(1), count)

	entry := make([]byte, pathSize+busIDSize)
	require.NoError(t, readExactly(conn, entry))
	assert.Contains(t, string(entry[:pathSize]), "padforge")
	assert.Equal(t, "1-1", trimNul(string(entry[pathSize:pathSize+4])))

	var nums [3]uint32
	for i := range nums {
		require.NoError(t, binary.Read(conn, binary.BigEndian, &nums[i]))
	}
	assert.Equal(t, uint32(1), nums[0]) // bus number
	assert.Equal(t, uint32(1), nums[1]) // device number

	var ids [3]uint16
	for i := range ids {
		require.NoError(t, binary.Read(conn, binary.BigEndian, &ids[i]))
	}
	assert.Equal(t, uint16(vendorID), ids[0])
	assert.Equal(t, uint16(productID), ids[1])
}

func trimNul(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}

func importPad(t *testing.T, b *Bus, busID string) net.Conn {
	t.Helper()
	conn := dial(t, b)
	writeMgmt(t, conn, opReqImport)
	var idBuf [busIDSize]byte
	copy(idBuf[:], busID)
	_, err := conn.Write(idBuf[:])
	require.NoError(t, err)

	code, status := readMgmt(t, conn)
	require.Equal(t, uint16(opRepImport), code)
	require.Zero(t, status)

	// Import reply entry ends at bNumInterfaces.
	entry := make([]byte, pathSize+busIDSize+3*4+3*2+6)
	require.NoError(t, readExactly(conn, entry))
	return conn
}

func submitURB(t *testing.T, conn net.Conn, seq, ep, dir uint32, setup [8]byte, out []byte) {
	t.Helper()
	var hdr [urbHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0x00:], cmdSubmit)
	binary.BigEndian.PutUint32(hdr[0x04:], seq)
	binary.BigEndian.PutUint32(hdr[0x0c:], dir)
	binary.BigEndian.PutUint32(hdr[0x10:], ep)
	binary.BigEndian.PutUint32(hdr[0x18:], uint32(len(out)))
	if dir == dirIn {
		binary.BigEndian.PutUint32(hdr[0x18:], 64)
	}
	copy(hdr[0x28:], setup[:])
	_, err := conn.Write(hdr[:])
	require.NoError(t, err)
	if dir == dirOut && len(out) > 0 {
		_, err = conn.Write(out)
		require.NoError(t, err)
	}
}

// readRet reads one RET_SUBMIT. IN replies carry actual_length bytes
// of payload; OUT replies report the bytes consumed and carry none.
func readRet(t *testing.T, conn net.Conn, dir uint32) (seq uint32, payload []byte) {
	t.Helper()
	var hdr [urbHeaderSize]byte
	require.NoError(t, readExactly(conn, hdr[:]))
	require.Equal(t, uint32(retSubmit), binary.BigEndian.Uint32(hdr[0x00:]))
	seq = binary.BigEndian.Uint32(hdr[0x04:])
	if dir == dirOut {
		return seq, nil
	}
	actual := binary.BigEndian.Uint32(hdr[0x18:])
	payload = make([]byte, actual)
	require.NoError(t, readExactly(conn, payload))
	return seq, payload
}

func TestInterruptInCarriesSubmittedState(t *testing.T) {
	b := testBus(t)
	c, err := b.Create()
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Submit(pad.Gamepad{Buttons: pad.ButtonA, LT: 9, LX: 1234}))

	conn := importPad(t, b, "1-1")
	submitURB(t, conn, 7, 1, dirIn, [8]byte{}, nil)

	seq, payload := readRet(t, conn, dirIn)
	assert.Equal(t, uint32(7), seq)
	require.Len(t, payload, 20)

	want := pad.Gamepad{Buttons: pad.ButtonA, LT: 9, LX: 1234}
	assert.Equal(t, want.BuildReport(), payload)
}

func TestInterruptOutFiresFeedback(t *testing.T) {
	b := testBus(t)
	c, err := b.Create()
	require.NoError(t, err)

	fb := make(chan [2]uint8, 1)
	c.OnFeedback(func(left, right uint8) { fb <- [2]uint8{left, right} })
	require.NoError(t, c.Connect())

	conn := importPad(t, b, "1-1")
	rumble := []byte{0x00, 0x08, 0x00, 0x64, 0x32, 0x00, 0x00, 0x00}
	submitURB(t, conn, 8, 1, dirOut, [8]byte{}, rumble)

	seq, payload := readRet(t, conn, dirOut)
	assert.Equal(t, uint32(8), seq)
	assert.Empty(t, payload)

	select {
	case got := <-fb:
		assert.Equal(t, [2]uint8{0x64, 0x32}, got)
	case <-time.After(time.Second):
		t.Fatal("no feedback callback")
	}
}

func TestControlDescriptors(t *testing.T) {
	b := testBus(t)
	c, err := b.Create()
	require.NoError(t, err)
	require.NoError(t, c.Connect())

	conn := importPad(t, b, "1-1")

	// GET_DESCRIPTOR(DEVICE)
	setup := [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}
	submitURB(t, conn, 1, 0, dirIn, setup, nil)
	_, payload := readRet(t, conn, dirIn)
	require.Len(t, payload, 18)
	assert.Equal(t, uint16(vendorID), binary.LittleEndian.Uint16(payload[8:10]))
	assert.Equal(t, uint16(productID), binary.LittleEndian.Uint16(payload[10:12]))

	// GET_DESCRIPTOR(CONFIGURATION) honours wLength truncation.
	setup = [8]byte{0x80, 0x06, 0x00, 0x02, 0x00, 0x00, 0x09, 0x00}
	submitURB(t, conn, 2, 0, dirIn, setup, nil)
	_, payload = readRet(t, conn, dirIn)
	require.Len(t, payload, 9)
	assert.Equal(t, uint8(numInterfaces), payload[4])
}

func TestImportUnknownBusID(t *testing.T) {
	b := testBus(t)
	conn := dial(t, b)
	writeMgmt(t, conn, opReqImport)
	var idBuf [busIDSize]byte
	copy(idBuf[:], "9-9")
	_, err := conn.Write(idBuf[:])
	require.NoError(t, err)

	code, status := readMgmt(t, conn)
	assert.Equal(t, uint16(opRepImport), code)
	assert.NotZero(t, status)
}
