package uuid

import (
	"encoding/hex"
	"fmt"
)

// UUID is a RFC 4122 identifier. Field order is time-low, time-mid,
// time-hi-and-version, clock-seq-hi-and-reserved, clock-seq-low and node,
// each field big-endian.
type UUID [16]byte

// Node is a 48-bit spatially unique identifier.
type Node [6]byte

const (
	VersionTime   = 1
	VersionMD5    = 3
	VersionRandom = 4
	VersionSHA1   = 5
)

// Variant values as found in the top bits of byte 8.
const (
	VariantNCS = iota
	VariantRFC4122
	VariantMicrosoft
	VariantFuture
)

var (
	Nil = UUID{}
	Max = UUID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// SetVersion forces the version nibble of byte 6.
func (u *UUID) SetVersion(version byte) {
	u[6] = u[6]&0x0f | version<<4
}

// SetVariant forces the RFC 4122 variant (binary 10) in byte 8.
func (u *UUID) SetVariant() {
	u[8] = u[8]&0x3f | 0x80
}

func (u UUID) Version() int {
	return int(u[6] >> 4)
}

func (u UUID) Variant() int {
	switch {
	case u[8]&0x80 == 0x00:
		return VariantNCS
	case u[8]&0xc0 == 0x80:
		return VariantRFC4122
	case u[8]&0xe0 == 0xc0:
		return VariantMicrosoft
	default:
		return VariantFuture
	}
}

func (u UUID) IsNil() bool {
	return u == Nil
}

func (u UUID) IsMax() bool {
	return u == Max
}

// Time returns the 60-bit timestamp of a time-based UUID, in 100ns ticks since 1582-10-15.
func (u UUID) Time() uint64 {
	low := uint64(u[0])<<24 | uint64(u[1])<<16 | uint64(u[2])<<8 | uint64(u[3])
	mid := uint64(u[4])<<8 | uint64(u[5])
	high := uint64(u[6]&0x0f)<<8 | uint64(u[7])

	return high<<48 | mid<<32 | low
}

// ClockSequence returns the 14-bit clock sequence of a time-based UUID.
func (u UUID) ClockSequence() uint16 {
	return uint16(u[8]&0x3f)<<8 | uint16(u[9])
}

func (u UUID) NodeID() Node {
	var node Node
	copy(node[:], u[10:])

	return node
}

// Compare orders UUIDs byte-wise, returning -1, 0 or 1.
func (u UUID) Compare(other UUID) int {
	for index := range u {
		if u[index] < other[index] {
			return -1
		}

		if u[index] > other[index] {
			return 1
		}
	}

	return 0
}

func (u UUID) Bytes() []byte {
	output := make([]byte, len(u))
	copy(output, u[:])

	return output
}

func (u UUID) String() string {
	var buffer [36]byte
	encode(buffer[:], u)

	return string(buffer[:])
}

// URN returns the `urn:uuid:` form.
func (u UUID) URN() string {
	var buffer [45]byte
	copy(buffer[:], "urn:uuid:")
	encode(buffer[9:], u)

	return string(buffer[:])
}

func encode(dst []byte, u UUID) {
	hex.Encode(dst, u[0:4])
	dst[8] = '-'
	hex.Encode(dst[9:13], u[4:6])
	dst[13] = '-'
	hex.Encode(dst[14:18], u[6:8])
	dst[18] = '-'
	hex.Encode(dst[19:23], u[8:10])
	dst[23] = '-'
	hex.Encode(dst[24:], u[10:])
}

func FromBytes(content []byte) (UUID, error) {
	var output UUID

	if len(content) != len(output) {
		return Nil, &ParseError{Input: fmt.Sprintf("%x", content), Reason: fmt.Sprintf("invalid length %d", len(content))}
	}

	copy(output[:], content)

	return output, nil
}

func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *UUID) UnmarshalText(text []byte) error {
	output, err := Parse(string(text))
	if err != nil {
		return err
	}

	*u = output

	return nil
}

func (u UUID) MarshalBinary() ([]byte, error) {
	return u.Bytes(), nil
}

func (u *UUID) UnmarshalBinary(content []byte) error {
	output, err := FromBytes(content)
	if err != nil {
		return err
	}

	*u = output

	return nil
}

// IsMulticast reports whether the multicast bit is set, which marks a
// randomly generated node id.
func (n Node) IsMulticast() bool {
	return n[0]&0x01 == 0x01
}

func (n Node) IsZero() bool {
	return n == Node{}
}

func (n Node) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", n[0], n[1], n[2], n[3], n[4], n[5])
}
