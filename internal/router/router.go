// Package router owns the registry of channels and dispatches inbound bus
// messages to them. It also publishes the device availability: the delayed
// initial state after the first connection and the periodic heartbeat.
package router

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/touch-switch/internal/channel"
	"github.com/sweeney/touch-switch/internal/mqtt"
	"github.com/sweeney/touch-switch/internal/timer"
)

// Management commands.
const (
	CmdDiscovery = "dir"
	CmdReset     = "rst"
)

// Publisher carries the device-level messages. Channel states are published
// by the channels themselves.
type Publisher interface {
	PublishDevice(status string) error
	PublishMgt(payload []byte) error
}

// Config configures a Router.
type Config struct {
	Topics  mqtt.Topics
	Version string
	// Heartbeat is the availability republish interval; 0 disables it.
	Heartbeat time.Duration
	// InitStateDelay delays the first availability publish after connecting.
	InitStateDelay time.Duration
	// Reset is invoked on a reset command, after "offline" is published.
	Reset func()
}

// Router dispatches bus messages to channels. Not safe for concurrent use;
// it runs on the main loop.
type Router struct {
	topics   mqtt.Topics
	version  string
	channels []*channel.Channel
	pub      Publisher
	reset    func()

	heartbeatMs uint32
	heartbeat   *timer.Timer

	initMs    uint32
	initTimer *timer.Timer
	initArmed bool
	initSent  bool

	log *logrus.Entry
}

// New creates a Router. A channel's index is its position in channels.
func New(cfg Config, clock timer.Clock, channels []*channel.Channel, pub Publisher) *Router {
	return &Router{
		topics:      cfg.Topics,
		version:     cfg.Version,
		channels:    channels,
		pub:         pub,
		reset:       cfg.Reset,
		heartbeatMs: timer.Millis(cfg.Heartbeat),
		heartbeat:   timer.New(clock),
		initMs:      timer.Millis(cfg.InitStateDelay),
		initTimer:   timer.New(clock),
		log:         logrus.WithField("component", "router"),
	}
}

// Channels returns the registered channels.
func (r *Router) Channels() []*channel.Channel { return r.channels }

// Channel returns the channel at index i.
func (r *Router) Channel(i int) (*channel.Channel, bool) {
	if i < 0 || i >= len(r.channels) {
		return nil, false
	}
	return r.channels[i], true
}

// InitialStateSent reports whether the initial state has been published.
func (r *Router) InitialStateSent() bool { return r.initSent }

// Dispatch routes one inbound message. Unknown topics and payloads are
// ignored.
func (r *Router) Dispatch(topic string, payload []byte) error {
	log := r.log.WithFields(logrus.Fields{"topic": topic, "payload": string(payload)})

	switch {
	case r.topics.Group != "" && topic == r.topics.Group:
		var errs []error
		for _, c := range r.channels {
			errs = append(errs, c.OnGroupCommand(payload))
		}
		return errors.Join(errs...)

	case topic == r.topics.DeviceCmd():
		return r.management(payload, true)

	case r.topics.Mgt != "" && topic == r.topics.Mgt:
		return r.management(payload, false)
	}

	if i, ok := r.topics.ChannelIndex(topic); ok {
		c, ok := r.Channel(i)
		if !ok {
			log.Debug("no such channel")
			return nil
		}
		switch string(payload) {
		case mqtt.PayloadOn:
			return c.SetState(true)
		case mqtt.PayloadOff:
			return c.SetState(false)
		}
	}
	log.Debug("ignored")
	return nil
}

// management handles dir and rst. On the device topic a bare rst resets the
// device; on the shared management topic it must name this host.
func (r *Router) management(payload []byte, device bool) error {
	cmd, arg, hasArg := bytes.Cut(payload, []byte("/"))
	switch string(cmd) {
	case CmdDiscovery:
		if hasArg {
			return nil
		}
		return r.pub.PublishMgt([]byte(r.Discovery()))

	case CmdReset:
		if hasArg && string(arg) != r.topics.Hostname {
			return nil
		}
		if !hasArg && !device {
			return nil
		}
		r.log.Warn("reset requested")
		err := r.pub.PublishDevice(mqtt.PayloadOffline)
		if r.reset != nil {
			r.reset()
		}
		return err
	}
	r.log.WithField("payload", string(payload)).Debug("unknown management command")
	return nil
}

// Discovery returns the reply to a discovery command:
// "<hostname> <version> ch<N>:<id>:<on|off> ...".
func (r *Router) Discovery() string {
	var b strings.Builder
	b.WriteString(r.topics.Hostname)
	b.WriteByte(' ')
	b.WriteString(r.version)
	for _, c := range r.channels {
		fmt.Fprintf(&b, " ch%d:%d:%s", c.Index(), c.Identity().ID, mqtt.StatePayload(c.State().On))
	}
	return b.String()
}

// Connected must be called on every connection to the broker. The first call
// arms the initial state publish; later calls force a heartbeat.
func (r *Router) Connected() error {
	if !r.initSent {
		if !r.initArmed {
			r.initArmed = true
			r.initTimer.MarkAll()
		}
		return nil
	}
	return r.Heartbeat(true)
}

// Poll polls every channel and services the initial state and heartbeat
// timers. Call it on every main loop iteration.
func (r *Router) Poll() error {
	var errs []error
	for _, c := range r.channels {
		errs = append(errs, c.Poll())
	}
	if r.initArmed && !r.initSent {
		r.initTimer.MarkNow()
		if r.initTimer.Delta() >= r.initMs {
			errs = append(errs, r.InitialState())
		}
	} else if r.initSent {
		errs = append(errs, r.Heartbeat(false))
	}
	return errors.Join(errs...)
}

// InitialState publishes the device availability and every channel state,
// once. Later calls do nothing.
func (r *Router) InitialState() error {
	if r.initSent {
		return nil
	}
	r.initSent = true
	r.log.Info("publishing initial state")
	return r.publishAll()
}

// Heartbeat republishes the device availability and every channel state when
// the heartbeat interval has elapsed, or unconditionally when forced.
func (r *Router) Heartbeat(force bool) error {
	if !force {
		if r.heartbeatMs == 0 {
			return nil
		}
		r.heartbeat.MarkNow()
		if r.heartbeat.Delta() < r.heartbeatMs {
			return nil
		}
	}
	r.log.Debug("heartbeat")
	return r.publishAll()
}

func (r *Router) publishAll() error {
	r.heartbeat.MarkAll()
	errs := []error{r.pub.PublishDevice(mqtt.PayloadOnline)}
	for _, c := range r.channels {
		errs = append(errs, c.PublishState())
	}
	return errors.Join(errs...)
}
