// Package tap classifies touch sensor edges into short, multi and long taps.
//
// Classification is driven purely by edge timing. Edges are captured from the
// GPIO event goroutine into a bounded queue and consumed by Poll on the main
// loop, which is the only place the state machine advances.
package tap

import (
	"fmt"
	"time"
)

// State is the classifier state.
type State uint8

const (
	StateDisabled State = iota
	StateIdle
	StatePressed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateIdle:
		return "IDLE"
	case StatePressed:
		return "PRESSED"
	case StateReleased:
		return "RELEASED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Edge is a logical transition of the touch input.
type Edge uint8

const (
	Press Edge = iota + 1
	Release
)

func (e Edge) String() string {
	switch e {
	case Press:
		return "PRESS"
	case Release:
		return "RELEASE"
	default:
		return fmt.Sprintf("Edge(%d)", uint8(e))
	}
}

// Kind distinguishes classified tap events.
type Kind uint8

const (
	ShortTap Kind = iota + 1
	LongTap
)

func (k Kind) String() string {
	switch k {
	case ShortTap:
		return "SHORT_TAP"
	case LongTap:
		return "LONG_TAP"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a classified tap.
type Event struct {
	Kind Kind
	// Count is the number of short taps in the sequence; always 1 for LongTap.
	Count uint16
}

func (e Event) String() string {
	if e.Kind == ShortTap {
		return fmt.Sprintf("%s x%d", e.Kind, e.Count)
	}
	return e.Kind.String()
}

// Config holds the timing thresholds. Both are used at millisecond resolution.
type Config struct {
	// LongTap is the minimum hold time of a long tap. Zero disables long taps:
	// every press then counts as a short tap.
	LongTap time.Duration
	// InterTap is the maximum gap between a release and the next press for
	// the press to continue the current sequence.
	InterTap time.Duration
}
