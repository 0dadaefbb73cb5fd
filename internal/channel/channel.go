// Package channel implements a touch switch channel: it maps classified taps
// and group commands to output changes and outbound bus messages.
//
// All methods except those of the embedded edge input run on the main loop.
package channel

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/touch-switch/internal/group"
	"github.com/sweeney/touch-switch/internal/tap"
	"github.com/sweeney/touch-switch/internal/timer"
)

// Output drives the physical switch of a channel.
type Output interface {
	Set(on bool) error
}

// Publisher carries the channel's outbound bus messages.
type Publisher interface {
	// PublishState publishes the on/off state of the channel at index.
	PublishState(index int, on bool) error
	// PublishGroup publishes an encoded group command.
	PublishGroup(payload []byte) error
}

// Config describes one channel.
type Config struct {
	// Index is the channel position on the device.
	Index int
	// ID addresses the channel in group commands; 0 is unaddressable.
	ID  uint8
	Tap tap.Config
	Ops [NumSlots]Operation
	// QueueLen is the edge queue capacity; 0 selects the default.
	QueueLen int
}

// Identity is the group addressing identity of a channel.
type Identity struct {
	ID uint8
	// Mask is the union of the peers addressed by the channel's operations.
	// The channel's own bit is never set.
	Mask group.Mask
}

// RuntimeState is a snapshot of the channel output.
type RuntimeState struct {
	On bool
	// AutoOff is the time left before the output turns off, 0 if none.
	AutoOff time.Duration
}

// Stats counts handled inputs since start.
type Stats struct {
	ShortTaps     int
	LongTaps      int
	GroupCommands int
	GroupSent     int
}

// Channel is one switch channel.
type Channel struct {
	index    int
	id       uint8
	mask     group.Mask
	ops      [NumSlots]Operation
	disabled bool

	cls *tap.Classifier
	out Output
	pub Publisher

	on        bool
	autoOffMs uint32
	autoOff   *timer.Timer

	stats Stats
	log   *logrus.Entry
}

// New creates a channel in the disabled state; call Enable to start it.
//
// The channel's own id bit is cleared from every operation mask so that its
// group commands never address itself. A nil out makes a phantom channel whose
// state is tracked and published without driving anything.
func New(cfg Config, clock timer.Clock, out Output, pub Publisher) *Channel {
	c := &Channel{
		index:   cfg.Index,
		id:      cfg.ID,
		cls:     tap.New(cfg.Tap, clock, cfg.QueueLen),
		out:     out,
		pub:     pub,
		autoOff: timer.New(clock),
	}
	if c.id > group.MaxID {
		c.id = 0
	}
	c.log = logrus.WithFields(logrus.Fields{"channel": c.index, "id": c.id})

	self := group.Bit(c.id)
	c.disabled = true
	for i, op := range cfg.Ops {
		if op.Kind.UsesMask() {
			op.Mask = group.ClearBits(op.Mask, self)
			c.mask |= op.Mask
		}
		if op.Kind != OpDisabled {
			c.disabled = false
		}
		c.ops[i] = op
	}
	return c
}

// Index returns the channel position on the device.
func (c *Channel) Index() int { return c.index }

// Identity returns the group addressing identity.
func (c *Channel) Identity() Identity {
	return Identity{ID: c.id, Mask: c.mask}
}

// Operation returns the operation bound to a slot.
func (c *Channel) Operation(s Slot) Operation {
	return c.ops[s]
}

// Disabled reports whether the channel has no tap operation bound. A disabled
// channel ignores all input.
func (c *Channel) Disabled() bool { return c.disabled }

// Phantom reports whether the channel has no physical output.
func (c *Channel) Phantom() bool { return c.out == nil }

// Enabled reports whether the channel is accepting input.
func (c *Channel) Enabled() bool { return !c.disabled && c.cls.Enabled() }

// Stats returns the input counters.
func (c *Channel) Stats() Stats { return c.stats }

// Edges returns the channel's edge sink, to be fed by the input handler.
func (c *Channel) Edges() *tap.Classifier { return c.cls }

// Enable drives the output off and starts tap classification. It does
// nothing for a disabled channel.
func (c *Channel) Enable() error {
	if c.disabled {
		c.log.Info("no tap operation configured, channel disabled")
		return nil
	}
	c.on = false
	c.autoOffMs = 0
	err := c.drive()
	c.cls.Enable()
	c.log.WithFields(logrus.Fields{
		"short_single": c.ops[ShortSingle].String(),
		"short_multi":  c.ops[ShortMulti].String(),
		"long_single":  c.ops[LongSingle].String(),
	}).Info("channel enabled")
	return err
}

// Disable stops tap classification and drives the output off.
func (c *Channel) Disable() error {
	c.cls.Disable()
	c.on = false
	c.autoOffMs = 0
	if c.disabled {
		return nil
	}
	return c.drive()
}

// State returns the current output state.
func (c *Channel) State() RuntimeState {
	s := RuntimeState{On: c.on}
	if c.autoOffMs != 0 {
		c.autoOff.MarkNow()
		if d := c.autoOff.Delta(); d < c.autoOffMs {
			s.AutoOff = time.Duration(c.autoOffMs-d) * time.Millisecond
		}
	}
	return s
}

// Poll classifies pending edges, runs the bound operations and services the
// auto-off timer. Call it on every main loop iteration.
func (c *Channel) Poll() error {
	var errs []error
	for _, ev := range c.cls.Poll() {
		c.log.WithField("tap", ev.String()).Debug("tap")
		switch ev.Kind {
		case tap.ShortTap:
			errs = append(errs, c.OnShortTap(ev.Count))
		case tap.LongTap:
			errs = append(errs, c.OnLongTap())
		}
	}
	errs = append(errs, c.CheckAutoOff())
	return errors.Join(errs...)
}

// OnShortTap runs the operation bound to a short tap sequence of count taps.
func (c *Channel) OnShortTap(count uint16) error {
	if !c.Enabled() {
		return nil
	}
	c.stats.ShortTaps++
	return c.shortTap(count, 0)
}

// OnLongTap runs the operation bound to a long tap.
func (c *Channel) OnLongTap() error {
	if !c.Enabled() {
		return nil
	}
	c.stats.LongTaps++
	return c.longTap(0)
}

func (c *Channel) shortTap(count uint16, exclude group.Mask) error {
	if count == 0 {
		count = 1
	}
	return c.run(SlotForCount(count), count, exclude)
}

func (c *Channel) longTap(exclude group.Mask) error {
	return c.run(LongSingle, 1, exclude)
}

// run executes the operation of slot. Peers in exclude are removed from any
// group command the operation sends.
func (c *Channel) run(slot Slot, count uint16, exclude group.Mask) error {
	op := c.ops[slot]
	switch op.Kind {
	case OpToggle:
		return c.setState(!c.on, 0)

	case OpToggleMaskOff:
		err := c.setState(!c.on, 0)
		return errors.Join(err, c.sendGroup(group.TurnOff, op.Mask, exclude, count))

	case OpAutoOff:
		return c.setState(true, time.Duration(autoOffTaps(count))*op.Step)

	case OpForward:
		cmd := group.ForwardShortTap
		if slot == LongSingle {
			cmd = group.ForwardLongTap
		}
		return c.sendGroup(cmd, op.Mask, exclude, count)
	}
	return nil
}

// OnGroupCommand handles a group command received from the bus. Commands that
// do not address this channel are ignored.
//
// Forwarded taps run the local operation with the incoming mask excluded
// from any onward group command, so peers addressed by the same wave do not
// address each other again.
func (c *Channel) OnGroupCommand(payload []byte) error {
	if !c.Enabled() {
		return nil
	}
	cmd, body, ok := group.Split(payload)
	if !ok {
		return nil
	}
	mask, count, ok := group.Decode(body)
	if !ok {
		c.log.WithField("payload", string(payload)).Debug("malformed group command")
		return nil
	}
	if !group.Matches(c.id, mask) {
		return nil
	}

	c.stats.GroupCommands++
	c.log.WithFields(logrus.Fields{"cmd": string(cmd), "mask": mask.String(), "count": count}).Debug("group command")

	switch cmd {
	case group.TurnOff:
		return c.setState(false, 0)
	case group.ForwardShortTap:
		return c.shortTap(count, mask)
	case group.ForwardLongTap:
		return c.longTap(mask)
	}
	return nil
}

// SetState sets the output to the given state, cancelling any auto-off.
func (c *Channel) SetState(on bool) error {
	if !c.Enabled() {
		return nil
	}
	return c.setState(on, 0)
}

// CheckAutoOff turns the output off once the auto-off time has elapsed.
func (c *Channel) CheckAutoOff() error {
	if c.autoOffMs == 0 {
		return nil
	}
	c.autoOff.MarkNow()
	if c.autoOff.Delta() < c.autoOffMs {
		return nil
	}
	c.log.Info("auto-off")
	return c.setState(false, 0)
}

// PublishState publishes the current output state.
func (c *Channel) PublishState() error {
	if c.pub == nil {
		return nil
	}
	return c.pub.PublishState(c.index, c.on)
}

// setState changes the output, arms or cancels the auto-off timer and
// publishes the new state.
func (c *Channel) setState(on bool, autoOff time.Duration) error {
	c.on = on
	c.autoOffMs = 0
	if on && autoOff > 0 {
		ms := autoOff.Milliseconds()
		if ms > math.MaxUint32 {
			ms = math.MaxUint32
		}
		c.autoOffMs = uint32(ms)
		c.autoOff.MarkAll()
	}
	c.log.WithFields(logrus.Fields{"on": on, "auto_off": autoOff}).Info("state")
	return errors.Join(c.drive(), c.PublishState())
}

func (c *Channel) drive() error {
	if c.out == nil {
		return nil
	}
	return c.out.Set(c.on)
}

func (c *Channel) sendGroup(cmd group.Command, m, exclude group.Mask, count uint16) error {
	m = group.ClearBits(m, exclude)
	if m == 0 || c.pub == nil {
		return nil
	}
	c.stats.GroupSent++
	return c.pub.PublishGroup(group.Encode(cmd, m, count))
}
