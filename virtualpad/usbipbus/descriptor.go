package usbipbus

import "encoding/binary"

// Identity and descriptor data of the wired Xbox 360 controller the
// bus emulates. The values are what the real hardware reports; games
// and the vhci driver key off them.
const (
	vendorID  = 0x045e
	productID = 0x028e
	bcdDevice = 0x0114
	bcdUSB    = 0x0200

	deviceClass    = 0xff
	deviceSubClass = 0xff
	deviceProtocol = 0xff
	deviceSpeed    = 2 // full speed

	numInterfaces = 4
)

// Interface class/subclass/protocol triplets, in interface order.
var interfaceTriplets = [numInterfaces][3]uint8{
	{0xff, 0x5d, 0x01}, // control + rumble endpoints
	{0xff, 0x5d, 0x03}, // audio/expansion
	{0xff, 0x5d, 0x02}, // plugin module
	{0xff, 0xfd, 0x13}, // security
}

var deviceStrings = map[uint8]string{
	0: "Љ", // LangID: en-US (0x0409), one UTF-16 unit
	1: "©Microsoft Corporation",
	2: "Controller",
	3: "08FEC93", // serial
}

// deviceDescriptor returns the 18-byte USB device descriptor.
func deviceDescriptor() []byte {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = 0x01 // DEVICE
	binary.LittleEndian.PutUint16(b[2:4], bcdUSB)
	b[4] = deviceClass
	b[5] = deviceSubClass
	b[6] = deviceProtocol
	b[7] = 0x08 // bMaxPacketSize0
	binary.LittleEndian.PutUint16(b[8:10], vendorID)
	binary.LittleEndian.PutUint16(b[10:12], productID)
	binary.LittleEndian.PutUint16(b[12:14], bcdDevice)
	b[14] = 1 // iManufacturer
	b[15] = 2 // iProduct
	b[16] = 3 // iSerialNumber
	b[17] = 1 // bNumConfigurations
	return b
}

type ifaceDef struct {
	number    uint8
	triplet   [3]uint8
	classDesc []byte
	endpoints [][4]uint16 // address, attributes, maxPacket, interval
}

var interfaceDefs = []ifaceDef{
	{
		number:    0,
		triplet:   interfaceTriplets[0],
		classDesc: []byte{0x11, 0x21, 0x00, 0x01, 0x01, 0x25, 0x81, 0x14, 0x00, 0x00, 0x00, 0x00, 0x13, 0x01, 0x08, 0x00, 0x00},
		endpoints: [][4]uint16{
			{0x81, 0x03, 0x0020, 0x04},
			{0x01, 0x03, 0x0020, 0x08},
		},
	},
	{
		number:    1,
		triplet:   interfaceTriplets[1],
		classDesc: []byte{0x1b, 0x21, 0x00, 0x01, 0x01, 0x01, 0x82, 0x40, 0x01, 0x02, 0x20, 0x16, 0x83, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x16, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		endpoints: [][4]uint16{
			{0x82, 0x03, 0x0020, 0x02},
			{0x02, 0x03, 0x0020, 0x04},
			{0x83, 0x03, 0x0020, 0x40},
			{0x03, 0x03, 0x0020, 0x10},
		},
	},
	{
		number:    2,
		triplet:   interfaceTriplets[2],
		classDesc: []byte{0x09, 0x21, 0x00, 0x01, 0x01, 0x22, 0x84, 0x07, 0x00},
		endpoints: [][4]uint16{
			{0x84, 0x03, 0x0020, 0x10},
		},
	},
	{
		number:    3,
		triplet:   interfaceTriplets[3],
		classDesc: []byte{0x06, 0x41, 0x00, 0x01, 0x01, 0x03},
	},
}

// configDescriptor returns the full configuration descriptor with
// wTotalLength patched in.
func configDescriptor() []byte {
	out := []byte{
		9, 0x02, // bLength, CONFIGURATION
		0, 0, // wTotalLength (patched below)
		numInterfaces,
		1,    // bConfigurationValue
		0,    // iConfiguration
		0xa0, // bmAttributes: bus powered, remote wakeup
		0xfa, // bMaxPower: 500mA
	}
	for _, def := range interfaceDefs {
		out = append(out,
			9, 0x04, // bLength, INTERFACE
			def.number, 0,
			uint8(len(def.endpoints)),
			def.triplet[0], def.triplet[1], def.triplet[2],
			0, // iInterface
		)
		out = append(out, def.classDesc...)
		for _, ep := range def.endpoints {
			out = append(out,
				7, 0x05, // bLength, ENDPOINT
				uint8(ep[0]), uint8(ep[1]),
				uint8(ep[2]), uint8(ep[2]>>8),
				uint8(ep[3]),
			)
		}
	}
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(out)))
	return out
}

// stringDescriptor encodes a UTF-16LE string descriptor.
func stringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = 0x03 // STRING
	for i, r := range runes {
		buf[2+i*2] = uint8(r)
		buf[2+i*2+1] = uint8(r >> 8)
	}
	return buf
}
