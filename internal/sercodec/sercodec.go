// Package sercodec encodes the 9-bit units used by the panel controller's
// 3-wire serial register interface.
//
// Each unit carries one byte plus a role bit in bit 8: 0 for a command
// (register address), 1 for data (a parameter of the preceding command).
// The controller has no separate data/command line, so the role bit is the
// only thing telling the two apart.
package sercodec

import "fmt"

// Bits is the number of bits clocked out per unit.
const Bits = 9

// Role tells the controller how to interpret the byte of a Unit.
type Role uint8

const (
	RoleCommand Role = 0
	RoleData    Role = 1
)

func (r Role) String() string {
	if r == RoleData {
		return "data"
	}
	return "cmd"
}

// Unit is a single 9-bit transfer: (role << 8) | byte.
type Unit uint16

const (
	roleBit  Unit = 1 << 8
	byteMask Unit = 0xFF
)

// Command returns the unit announcing register b.
func Command(b byte) Unit {
	return Unit(b)
}

// Data returns the unit carrying parameter byte b.
func Data(b byte) Unit {
	return roleBit | Unit(b)
}

// Decode splits u into its role and byte.
func Decode(u Unit) (Role, byte) {
	return u.Role(), u.Byte()
}

func (u Unit) Role() Role {
	if u&roleBit != 0 {
		return RoleData
	}
	return RoleCommand
}

func (u Unit) Byte() byte {
	return byte(u & byteMask)
}

// Valid reports whether u fits in 9 bits.
func (u Unit) Valid() bool {
	return u>>Bits == 0
}

func (u Unit) String() string {
	return fmt.Sprintf("%s(0x%02X)", u.Role(), u.Byte())
}

// AppendWord appends u to dst as one 16-bit little-endian word.
//
// Linux spidev (and periph's sysfs driver on top of it) stores words of 9 to
// 16 bits in two bytes in host order; the controller only ever sees the low
// 9 bits, MSB first.
func AppendWord(dst []byte, u Unit) []byte {
	return append(dst, byte(u), byte(u>>8))
}

// Word decodes a unit previously laid out by AppendWord.
func Word(b []byte) (Unit, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("sercodec: word must be 2 bytes, got %d", len(b))
	}
	u := Unit(b[0]) | Unit(b[1])<<8
	if !u.Valid() {
		return 0, fmt.Errorf("sercodec: word 0x%04X exceeds %d bits", uint16(u), Bits)
	}
	return u, nil
}
