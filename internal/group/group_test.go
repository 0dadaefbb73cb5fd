package group

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBit(t *testing.T) {
	assert.Equal(t, Mask(0), Bit(0))
	assert.Equal(t, Mask(1), Bit(1))
	assert.Equal(t, Mask(4), Bit(3))
	assert.Equal(t, Mask(1<<63), Bit(64))
	assert.Equal(t, Mask(0), Bit(65))
}

func TestMatchesIDZeroNeverMatches(t *testing.T) {
	for _, m := range []Mask{0, 1, 0xf0f0, math.MaxUint64} {
		assert.False(t, Matches(0, m), "mask %s", m)
	}
}

func TestMatches(t *testing.T) {
	m := Mask(0x0000000000000004)
	assert.True(t, Matches(3, m))
	assert.False(t, Matches(5, m))
	assert.False(t, Matches(2, m))
	assert.True(t, Matches(64, math.MaxUint64))
}

func TestClearBits(t *testing.T) {
	assert.Equal(t, Mask(0b1010), ClearBits(0b1110, 0b0100))
	assert.Equal(t, Mask(0), ClearBits(math.MaxUint64, math.MaxUint64))
	assert.Equal(t, Mask(0xff), ClearBits(0xff, 0))
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "0x0000000000000004", Mask(4).String())
	assert.Equal(t, "0x0123456789abcdef", Mask(0x0123456789abcdef).String())
	assert.Equal(t, "0xffffffffffffffff", Mask(math.MaxUint64).String())
	assert.Len(t, Mask(0).String(), MaskLen)
}

func TestParseMask(t *testing.T) {
	tests := []struct {
		in      string
		want    Mask
		wantErr bool
	}{
		{in: "0x0000000000000004", want: 4},
		{in: "0x0123456789ABCDEF", want: 0x0123456789abcdef},
		{in: "0X00000000000000f0", want: 0xf0},
		{in: "0x04", wantErr: true},
		{in: "", wantErr: true},
		{in: "000000000000000004", wantErr: true},
		{in: "0x000000000000000g", wantErr: true},
		{in: "0x-000000000000004", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMask(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMask)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "tof/0x0000000000000004/1", string(Encode(TurnOff, 4, 1)))
	assert.Equal(t, "fst/0xffffffffffffffff/65535", string(Encode(ForwardShortTap, math.MaxUint64, 65535)))
	assert.Equal(t, "flt/0x0000000000000000/0", string(Encode(ForwardLongTap, 0, 0)))
}

func TestSplit(t *testing.T) {
	cmd, body, ok := Split([]byte("fst/0x0000000000000004/3"))
	require.True(t, ok)
	assert.Equal(t, ForwardShortTap, cmd)
	assert.Equal(t, "0x0000000000000004/3", string(body))

	for _, in := range []string{"", "on", "off", "xyz/0x0000000000000004/3", "/0x00", "fst"} {
		_, _, ok := Split([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestRoundTrip(t *testing.T) {
	masks := []Mask{0, 1, 4, 0x8000000000000000, 0x0123456789abcdef, math.MaxUint64}
	args := []uint16{0, 1, 2, 9, 10, 999, 65535}
	cmds := []Command{ForwardShortTap, ForwardLongTap, TurnOff}

	for _, cmd := range cmds {
		for _, m := range masks {
			for _, arg := range args {
				gotCmd, body, ok := Split(Encode(cmd, m, arg))
				require.True(t, ok)
				require.Equal(t, cmd, gotCmd)
				gotMask, gotArg, ok := Decode(body)
				require.True(t, ok)
				assert.Equal(t, m, gotMask)
				assert.Equal(t, arg, gotArg)
			}
		}
	}
}

func TestDecodeTooShort(t *testing.T) {
	for _, in := range []string{"", "0x0000000000000004", "0x0000000000000004/"} {
		_, _, ok := Decode([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantMask  Mask
		wantCount uint16
	}{
		{"uppercase hex", "0x00000000000000AF/2", 0xaf, 2},
		{"non-hex nibble is zero", "0x00000000000000zf/2", 0x0f, 2},
		{"garbage count zeroed", "0x0000000000000004/1x", 4, 0},
		{"non-numeric count", "0x0000000000000004/abc", 4, 0},
		{"count wraps at 16 bits", "0x0000000000000004/65536", 4, 0},
		{"leading zeros", "0x0000000000000004/007", 4, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, n, ok := Decode([]byte(tt.in))
			require.True(t, ok)
			assert.Equal(t, tt.wantMask, m)
			assert.Equal(t, tt.wantCount, n)
		})
	}
}

func TestCommandValid(t *testing.T) {
	assert.True(t, ForwardShortTap.Valid())
	assert.True(t, ForwardLongTap.Valid())
	assert.True(t, TurnOff.Valid())
	assert.False(t, Command("rst").Valid())
}
