// Package status provides a thread-safe status tracker for the touch-switch
// daemon. The main loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/touch-switch/internal/channel"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Hostname    string
	Version     string
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	BaseTopic   string
	GroupTopic  string
	HTTPAddr    string
}

// Channel is a point-in-time view of one channel.
type Channel struct {
	Index    int
	ID       uint8
	Mask     string
	Enabled  bool
	Disabled bool
	Phantom  bool
	On       bool
	AutoOff  time.Duration
	TapState string
	Ops      [channel.NumSlots]string
	Stats    channel.Stats
	Drops    uint32
}

// FromChannel captures the state of c. It must be called on the goroutine
// that owns c.
func FromChannel(c *channel.Channel) Channel {
	id := c.Identity()
	st := c.State()
	s := Channel{
		Index:    c.Index(),
		ID:       id.ID,
		Mask:     id.Mask.String(),
		Enabled:  c.Enabled(),
		Disabled: c.Disabled(),
		Phantom:  c.Phantom(),
		On:       st.On,
		AutoOff:  st.AutoOff,
		TapState: c.Edges().State().String(),
		Stats:    c.Stats(),
		Drops:    c.Edges().Drops(),
	}
	for i := range s.Ops {
		s.Ops[i] = c.Operation(channel.Slot(i)).String()
	}
	return s
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Channels      []Channel
	Ready         bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{StartTime: startTime, Config: cfg},
		now:  time.Now,
	}
}

// Update records the channel views and whether the initial state has been
// published. Called from the main loop.
func (t *Tracker) Update(channels []Channel, ready bool) {
	cp := append([]Channel(nil), channels...)
	t.mu.Lock()
	t.snap.Channels = cp
	t.snap.Ready = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Channels = append([]Channel(nil), s.Channels...)
	s.Now = t.now()
	return s
}
