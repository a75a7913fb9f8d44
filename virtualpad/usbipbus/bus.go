// Package usbipbus exposes virtual wired Xbox 360 controllers over
// the USB/IP protocol, so a vhci-capable host can attach them like
// real hardware.
package usbipbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDeeJay/padforge/internal/log"
	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/virtualpad"
)

// MaxPads is how many controllers the bus exports at once, matching
// the four XInput user slots.
const MaxPads = 4

// Bus serves up to four virtual pads on one USB/IP listener.
type Bus struct {
	logger *slog.Logger
	ln     net.Listener

	mu    sync.Mutex
	raw   log.RawLogger
	slots [MaxPads]*controller
}

// SetRawLogger enables hex dumps of the USB/IP traffic. Call before
// clients attach.
func (b *Bus) SetRawLogger(rl log.RawLogger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = rl
}

// logConn mirrors traffic into the raw logger.
type logConn struct {
	net.Conn
	raw log.RawLogger
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 {
		lc.raw.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 {
		lc.raw.Log(false, p[:n])
	}
	return n, err
}

// Listen binds the USB/IP listener. A bind failure is reported as
// virtualpad.ErrDriverUnavailable so the engine can disable its
// output stage.
func Listen(addr string, logger *slog.Logger) (*Bus, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", virtualpad.ErrDriverUnavailable, err)
	}
	b := &Bus{logger: logger, ln: ln}
	go b.acceptLoop()
	logger.Info("usbip bus listening", "addr", ln.Addr().String())
	return b, nil
}

// Addr returns the bound listen address.
func (b *Bus) Addr() string { return b.ln.Addr().String() }

// Create reserves the lowest free pad slot.
func (b *Bus) Create() (virtualpad.Controller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.slots {
		if b.slots[i] == nil {
			c := &controller{bus: b, slot: i}
			b.slots[i] = c
			return c, nil
		}
	}
	return nil, fmt.Errorf("usbipbus: all %d pad slots in use", MaxPads)
}

// Close shuts the listener and disconnects every pad.
func (b *Bus) Close() error {
	err := b.ln.Close()
	b.mu.Lock()
	pads := b.slots
	b.mu.Unlock()
	for _, c := range pads {
		if c != nil {
			_ = c.Disconnect()
		}
	}
	return err
}

func (b *Bus) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.logger.Error("usbip accept", "error", err)
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		go func() {
			if err := b.handleConn(conn); err != nil && !isDisconnect(err) {
				b.logger.Error("usbip connection", "error", err)
			}
		}()
	}
}

func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset") || strings.Contains(e, "broken pipe") || strings.Contains(e, "forcibly closed")
}

func (b *Bus) attached() []*controller {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*controller, 0, MaxPads)
	for _, c := range b.slots {
		if c != nil && c.connected() {
			out = append(out, c)
		}
	}
	return out
}

func (b *Bus) findByBusID(busID string) *controller {
	for _, c := range b.attached() {
		if c.busID() == busID {
			return c
		}
	}
	return nil
}

func (b *Bus) handleConn(conn net.Conn) error {
	defer conn.Close()
	b.mu.Lock()
	raw := b.raw
	b.mu.Unlock()
	if raw != nil {
		conn = &logConn{Conn: conn, raw: raw}
	}
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	var hdr [8]byte
	if err := readExactly(conn, hdr[:]); err != nil {
		return fmt.Errorf("read op header: %w", err)
	}
	ver := binary.BigEndian.Uint16(hdr[0:2])
	code := binary.BigEndian.Uint16(hdr[2:4])
	if ver != protoVersion {
		return fmt.Errorf("unsupported usbip version %#04x", ver)
	}

	switch code {
	case opReqDevlist:
		return b.handleDevlist(conn)
	case opReqImport:
		return b.handleImport(conn)
	}
	return fmt.Errorf("unsupported op %#04x", code)
}

func (b *Bus) handleDevlist(conn net.Conn) error {
	pads := b.attached()
	if err := (mgmtHeader{Version: protoVersion, Command: opRepDevlist}).write(conn); err != nil {
		return err
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(pads))); err != nil {
		return err
	}
	for _, c := range pads {
		if err := writeExportEntry(conn, c.sysPath(), c.busID(), 1, uint32(c.slot+1), true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) handleImport(conn net.Conn) error {
	var busIDBuf [busIDSize]byte
	if err := readExactly(conn, busIDBuf[:]); err != nil {
		return fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(busIDBuf[:])
	if i := strings.IndexByte(reqBus, 0); i >= 0 {
		reqBus = reqBus[:i]
	}

	c := b.findByBusID(reqBus)
	if c == nil {
		_ = (mgmtHeader{Version: protoVersion, Command: opRepImport, Status: 1}).write(conn)
		return fmt.Errorf("no pad matches busid %q", reqBus)
	}

	if err := (mgmtHeader{Version: protoVersion, Command: opRepImport}).write(conn); err != nil {
		return err
	}
	if err := writeExportEntry(conn, c.sysPath(), c.busID(), 1, uint32(c.slot+1), false); err != nil {
		return err
	}
	b.logger.Info("pad imported", "busid", reqBus, "slot", c.slot)
	return b.serveURBs(conn, c)
}

func (b *Bus) serveURBs(conn net.Conn, c *controller) error {
	_ = conn.SetDeadline(time.Time{})
	c.addConn(conn)
	defer c.removeConn(conn)

	var hdr [urbHeaderSize]byte
	for {
		if err := readExactly(conn, hdr[:]); err != nil {
			return fmt.Errorf("read urb header: %w", err)
		}
		h := decodeURBHeader(&hdr)

		switch h.Command {
		case cmdUnlink:
			if err := writeRetUnlink(conn, h.Seqnum); err != nil {
				return err
			}
			continue
		case cmdSubmit:
		default:
			return fmt.Errorf("unsupported urb command %d", h.Command)
		}

		var outPayload []byte
		if h.Dir == dirOut && h.TransferLen > 0 {
			outPayload = make([]byte, h.TransferLen)
			if err := readExactly(conn, outPayload); err != nil {
				return fmt.Errorf("read out payload: %w", err)
			}
		}

		resp := c.processSubmit(h.Ep, h.Dir, h.Setup, outPayload)

		actual := uint32(len(resp))
		if h.Dir == dirOut {
			actual = uint32(len(outPayload))
		}
		if err := writeRetSubmit(conn, h.Seqnum, actual, resp); err != nil {
			return fmt.Errorf("write ret_submit: %w", err)
		}
	}
}

// controller is one exported pad.
type controller struct {
	bus  *Bus
	slot int

	mu        sync.Mutex
	state     pad.Gamepad
	feedback  virtualpad.FeedbackFunc
	conns     []net.Conn
	attached  bool
	destroyed bool
}

func (c *controller) busID() string   { return fmt.Sprintf("1-%d", c.slot+1) }
func (c *controller) sysPath() string { return "/sys/devices/padforge/usb1/" + c.busID() }

func (c *controller) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return fmt.Errorf("usbipbus: controller destroyed")
	}
	c.attached = true
	return nil
}

func (c *controller) Disconnect() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.attached = false
	c.destroyed = true
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	c.bus.mu.Lock()
	if c.bus.slots[c.slot] == c {
		c.bus.slots[c.slot] = nil
	}
	c.bus.mu.Unlock()
	return nil
}

func (c *controller) Submit(g pad.Gamepad) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return fmt.Errorf("usbipbus: controller not connected")
	}
	c.state = g
	return nil
}

func (c *controller) SlotIndex() int { return c.slot }

func (c *controller) OnFeedback(f virtualpad.FeedbackFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = f
}

func (c *controller) addConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = append(c.conns, conn)
}

func (c *controller) removeConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cc := range c.conns {
		if cc == conn {
			c.conns = append(c.conns[:i], c.conns[i+1:]...)
			break
		}
	}
}

// processSubmit services one URB. Endpoint 1 IN carries input
// reports, endpoint 1 OUT carries rumble/LED commands, endpoint 0 is
// the control pipe; the remaining audio/expansion endpoints answer
// empty.
func (c *controller) processSubmit(ep, dir uint32, setup [8]byte, out []byte) []byte {
	if ep == 0 {
		return c.handleControl(setup)
	}
	if dir == dirIn {
		if ep == 1 {
			c.mu.Lock()
			st := c.state
			c.mu.Unlock()
			return st.BuildReport()
		}
		return nil
	}
	if ep == 1 {
		if left, right, ok := pad.ParseRumbleReport(out); ok {
			c.mu.Lock()
			f := c.feedback
			c.mu.Unlock()
			if f != nil {
				f(left, right)
			}
		}
	}
	return nil
}

func (c *controller) handleControl(setup [8]byte) []byte {
	const (
		reqGetDescriptor    = 0x06
		reqGetConfiguration = 0x08

		typeStandardFromDevice = 0x80
	)
	bm := setup[0]
	breq := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	wLength := binary.LittleEndian.Uint16(setup[6:8])

	// SET_ADDRESS / SET_CONFIGURATION and the vendor requests games
	// issue (security handshake, LED state) take no reply payload.
	if bm != typeStandardFromDevice {
		return nil
	}

	var data []byte
	switch breq {
	case reqGetConfiguration:
		data = []byte{0x01}
	case reqGetDescriptor:
		switch uint8(wValue >> 8) {
		case 0x01: // DEVICE
			data = deviceDescriptor()
		case 0x02: // CONFIGURATION
			data = configDescriptor()
		case 0x03: // STRING
			if s, ok := deviceStrings[uint8(wValue)]; ok {
				data = stringDescriptor(s)
			}
		}
	}
	if len(data) > int(wLength) {
		data = data[:wLength]
	}
	return data
}
