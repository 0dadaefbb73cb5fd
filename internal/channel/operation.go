package channel

import (
	"fmt"
	"time"

	"github.com/sweeney/touch-switch/internal/group"
)

// Slot identifies which classified tap an operation is bound to.
type Slot uint8

const (
	ShortSingle Slot = iota
	ShortMulti
	LongSingle

	// NumSlots is the number of tap slots per channel.
	NumSlots = 3
)

func (s Slot) String() string {
	switch s {
	case ShortSingle:
		return "short_single"
	case ShortMulti:
		return "short_multi"
	case LongSingle:
		return "long_single"
	default:
		return fmt.Sprintf("Slot(%d)", uint8(s))
	}
}

// SlotForCount returns the short tap slot for a tap count.
func SlotForCount(count uint16) Slot {
	if count == 1 {
		return ShortSingle
	}
	return ShortMulti
}

// OpKind is the kind of a tap operation.
type OpKind uint8

const (
	OpDisabled OpKind = iota
	OpToggle
	OpToggleMaskOff
	OpAutoOff
	OpForward
)

// Configuration keywords for tap operations.
const (
	KeywordToggle        = "tgle"
	KeywordToggleMaskOff = "tgof"
	KeywordAutoOff       = "aoff"
	KeywordForward       = "fwte"
)

// ParseKeyword maps a configuration keyword to an OpKind. Unknown keywords
// disable the slot.
func ParseKeyword(s string) OpKind {
	switch s {
	case KeywordToggle:
		return OpToggle
	case KeywordToggleMaskOff:
		return OpToggleMaskOff
	case KeywordAutoOff:
		return OpAutoOff
	case KeywordForward:
		return OpForward
	default:
		return OpDisabled
	}
}

func (k OpKind) String() string {
	switch k {
	case OpDisabled:
		return "disabled"
	case OpToggle:
		return KeywordToggle
	case OpToggleMaskOff:
		return KeywordToggleMaskOff
	case OpAutoOff:
		return KeywordAutoOff
	case OpForward:
		return KeywordForward
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// UsesMask reports whether operations of this kind address peers.
func (k OpKind) UsesMask() bool {
	return k == OpToggleMaskOff || k == OpForward
}

// Operation is the action bound to one tap slot.
type Operation struct {
	Kind OpKind
	// Mask addresses peers for OpToggleMaskOff and OpForward.
	Mask group.Mask
	// Step is the auto-off time per counted tap for OpAutoOff.
	Step time.Duration
}

// Toggle flips the output.
func Toggle() Operation { return Operation{Kind: OpToggle} }

// ToggleMaskOff flips the output and turns off the peers in m.
func ToggleMaskOff(m group.Mask) Operation { return Operation{Kind: OpToggleMaskOff, Mask: m} }

// AutoOff turns the output on for a multiple of step.
func AutoOff(step time.Duration) Operation { return Operation{Kind: OpAutoOff, Step: step} }

// Forward relays the tap to the peers in m without touching the output.
func Forward(m group.Mask) Operation { return Operation{Kind: OpForward, Mask: m} }

func (o Operation) String() string {
	switch o.Kind {
	case OpToggleMaskOff, OpForward:
		return fmt.Sprintf("%s %s", o.Kind, o.Mask)
	case OpAutoOff:
		return fmt.Sprintf("%s %s", o.Kind, o.Step)
	default:
		return o.Kind.String()
	}
}

// autoOffTaps is the number of steps an auto-off activation lasts: one for a
// single tap, one less than the tap count for a multi tap.
func autoOffTaps(count uint16) uint16 {
	if count <= 2 {
		return 1
	}
	return count - 1
}
