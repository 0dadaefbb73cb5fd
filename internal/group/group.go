// Package group implements the group command wire format used to address a
// set of peer switch channels with a 64-bit mask.
//
// A group command is "<command>/<mask>/<count>", where mask is "0x" followed
// by 16 hex digits (most significant nibble first) and count is a decimal
// tap count. Bit n of the mask addresses the channel with id n+1.
package group

import (
	"errors"
	"fmt"
	"strconv"
)

// Mask addresses up to 64 channels, one bit per channel id.
type Mask uint64

// MaxID is the highest addressable channel id. Id 0 is unaddressable.
const MaxID = 64

// MaskLen is the length of an encoded mask.
const MaskLen = 18

// Separator splits the fields of a group command.
const Separator = '/'

// Command names a group command.
type Command string

const (
	ForwardShortTap Command = "fst"
	ForwardLongTap  Command = "flt"
	TurnOff         Command = "tof"
)

// Valid reports whether c is a known group command.
func (c Command) Valid() bool {
	switch c {
	case ForwardShortTap, ForwardLongTap, TurnOff:
		return true
	}
	return false
}

// ErrInvalidMask is returned by ParseMask for malformed masks.
var ErrInvalidMask = errors.New("invalid group mask")

// Bit returns the mask bit for a channel id, or 0 for an unaddressable id.
func Bit(id uint8) Mask {
	if id == 0 || id > MaxID {
		return 0
	}
	return 1 << (id - 1)
}

// Matches reports whether the channel with the given id is addressed by m.
// Id 0 never matches.
func Matches(id uint8, m Mask) bool {
	return m&Bit(id) != 0
}

// ClearBits returns target with every bit of clearing removed.
func ClearBits(target, clearing Mask) Mask {
	return target &^ clearing
}

// String returns the wire encoding of m.
func (m Mask) String() string {
	return string(appendMask(make([]byte, 0, MaskLen), m))
}

const hexDigits = "0123456789abcdef"

func appendMask(b []byte, m Mask) []byte {
	b = append(b, '0', 'x')
	for shift := 60; shift >= 0; shift -= 4 {
		b = append(b, hexDigits[(m>>uint(shift))&0xf])
	}
	return b
}

// ParseMask parses a configured mask. Unlike Decode it is strict: the value
// must be exactly "0x" followed by 16 hex digits.
func ParseMask(s string) (Mask, error) {
	if len(s) != MaskLen || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}
	return Mask(v), nil
}

// Encode builds the wire payload of a group command.
func Encode(cmd Command, m Mask, arg uint16) []byte {
	b := make([]byte, 0, len(cmd)+MaskLen+8)
	b = append(b, string(cmd)...)
	b = append(b, Separator)
	b = appendMask(b, m)
	b = append(b, Separator)
	return strconv.AppendUint(b, uint64(arg), 10)
}

// Split separates the command name from the rest of a payload. It fails if
// the payload does not start with a known command followed by a separator.
func Split(payload []byte) (Command, []byte, bool) {
	for i, c := range payload {
		if c != Separator {
			continue
		}
		cmd := Command(payload[:i])
		if !cmd.Valid() {
			return "", nil, false
		}
		return cmd, payload[i+1:], true
	}
	return "", nil, false
}

// Decode parses "<mask>/<count>" as produced by Encode after the command.
//
// Decoding is lenient for compatibility with deployed switches: a non-hex
// mask digit decodes as zero, and the count restarts from zero at the first
// non-digit and wraps at 16 bits. Decode only fails when the body is too
// short to hold a mask, a separator and at least one count character.
func Decode(body []byte) (Mask, uint16, bool) {
	if len(body) <= MaskLen+1 {
		return 0, 0, false
	}
	var m Mask
	for _, c := range body[2:MaskLen] {
		m = m<<4 | Mask(nibble(c))
	}
	return m, parseCount(body[MaskLen+1:]), true
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func parseCount(b []byte) uint16 {
	var n uint16
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint16(c-'0')
	}
	return n
}
