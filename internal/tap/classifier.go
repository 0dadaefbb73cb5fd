package tap

import (
	"sync/atomic"

	"github.com/sweeney/touch-switch/internal/timer"
)

// DefaultQueueLen is the edge queue capacity used when none is given.
const DefaultQueueLen = 32

type edgeToken struct {
	edge Edge
	at   uint32
}

// Classifier feeds a Machine from a bounded edge queue.
//
// Press, Release and Push may be called from a single producer goroutine
// (the GPIO event handler) concurrently with the main loop. They never block
// and never allocate; a full queue drops the edge. Every other method must
// be called from the main loop only.
type Classifier struct {
	m     *Machine
	clock timer.Clock
	edges chan edgeToken
	drops atomic.Uint32
}

// New creates a disabled Classifier.
func New(cfg Config, clock timer.Clock, queueLen int) *Classifier {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Classifier{
		m:     NewMachine(cfg),
		clock: clock,
		edges: make(chan edgeToken, queueLen),
	}
}

// Press records a press edge at the current clock time.
func (c *Classifier) Press() { c.Push(Press, c.clock()) }

// Release records a release edge at the current clock time.
func (c *Classifier) Release() { c.Push(Release, c.clock()) }

// Push records an edge captured at the given clock time.
func (c *Classifier) Push(edge Edge, at uint32) {
	select {
	case c.edges <- edgeToken{edge: edge, at: at}:
	default:
		c.drops.Add(1)
	}
}

// Drops returns the number of edges lost to a full queue.
func (c *Classifier) Drops() uint32 {
	return c.drops.Load()
}

// Enable discards queued edges and starts classifying from idle.
func (c *Classifier) Enable() {
	c.discard()
	c.m.Enable()
}

// Disable stops classification. Edges queued while disabled are discarded
// by Poll.
func (c *Classifier) Disable() {
	c.m.Disable()
}

// Enabled reports whether the classifier is not disabled.
func (c *Classifier) Enabled() bool {
	return c.m.State() != StateDisabled
}

// State returns the machine state.
func (c *Classifier) State() State {
	return c.m.State()
}

// Poll drains queued edges in arrival order and closes any expired short
// tap sequence, returning the classified events.
func (c *Classifier) Poll() []Event {
	var events []Event
	for {
		var tok edgeToken
		select {
		case tok = <-c.edges:
		default:
			if ev, ok := c.m.Expire(c.clock()); ok {
				events = append(events, ev)
			}
			return events
		}

		// A press arriving after the window closes the pending sequence
		// before it can be considered.
		if ev, ok := c.m.Expire(tok.at); ok {
			events = append(events, ev)
		}
		if ev, ok := c.m.Apply(tok.edge, tok.at); ok {
			events = append(events, ev)
		}
	}
}

func (c *Classifier) discard() {
	for {
		select {
		case <-c.edges:
		default:
			return
		}
	}
}
