package tap

import (
	"github.com/sweeney/touch-switch/internal/timer"
)

// Machine is the tap state machine without any edge queueing. All inputs
// carry explicit millisecond timestamps from the same 32-bit clock.
// Not safe for concurrent use.
type Machine struct {
	longMs  uint32
	interMs uint32

	state State
	count uint16
	tm    timer.Timer
}

// NewMachine creates a Machine in the disabled state.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		longMs:  timer.Millis(cfg.LongTap),
		interMs: timer.Millis(cfg.InterTap),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Count returns the number of short taps in the current sequence.
func (m *Machine) Count() uint16 {
	return m.count
}

// Enable resets the machine to idle.
func (m *Machine) Enable() {
	m.idle()
}

// Disable stops all classification until the next Enable.
func (m *Machine) Disable() {
	m.state = StateDisabled
	m.count = 0
}

func (m *Machine) idle() {
	m.state = StateIdle
	m.count = 0
}

// Apply advances the machine on an edge observed at the given time. It
// returns a LongTap event when a first press is released after the long tap
// threshold.
func (m *Machine) Apply(edge Edge, at uint32) (Event, bool) {
	switch m.state {
	case StateIdle:
		if edge == Press {
			m.state = StatePressed
			m.tm.SetAll(at)
		}

	case StatePressed:
		if edge != Release {
			break
		}
		m.tm.Update(at)
		held := m.tm.Delta()
		if m.count > 0 || m.longMs == 0 || held < m.longMs {
			m.state = StateReleased
			m.count++
			m.tm.SetAll(at)
			break
		}
		m.idle()
		return Event{Kind: LongTap, Count: 1}, true

	case StateReleased:
		if edge != Press {
			break
		}
		m.tm.Update(at)
		if m.tm.Delta() < m.interMs {
			m.state = StatePressed
			m.tm.SetAll(at)
		}
	}
	return Event{}, false
}

// Expire closes a short tap sequence once the inter-tap window has elapsed
// since the last release. The end of a sequence is the absence of a press,
// so only a time check can observe it.
func (m *Machine) Expire(at uint32) (Event, bool) {
	if m.state != StateReleased {
		return Event{}, false
	}
	m.tm.Update(at)
	if m.tm.Delta() < m.interMs {
		return Event{}, false
	}
	ev := Event{Kind: ShortTap, Count: m.count}
	m.idle()
	return ev, true
}
