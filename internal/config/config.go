// Package config loads the daemon configuration from a YAML file and resolves
// it into channel configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/touch-switch/internal/channel"
	"github.com/sweeney/touch-switch/internal/gpio"
	"github.com/sweeney/touch-switch/internal/group"
	"github.com/sweeney/touch-switch/internal/mqtt"
	"github.com/sweeney/touch-switch/internal/tap"
)

// NoPin marks a channel without a physical output.
const NoPin = -1

// Defaults.
const (
	DefaultLongTapMs   = 800
	DefaultInterTapMs  = 400
	DefaultPollMs      = 10
	DefaultHeartbeatS  = 300
	DefaultInitDelayMs = 1000
	DefaultHTTPAddr    = ":8080"
	DefaultBroker      = "tcp://127.0.0.1:1883"
)

// TapOp binds an operation keyword and its argument to a tap slot.
type TapOp struct {
	Op  string `yaml:"op"`
	Arg string `yaml:"arg,omitempty"`
}

// Taps holds the operations of the three tap slots.
type Taps struct {
	ShortSingle TapOp `yaml:"short_single"`
	ShortMulti  TapOp `yaml:"short_multi"`
	LongSingle  TapOp `yaml:"long_single"`
}

// Channel is the configuration of one channel.
type Channel struct {
	ID         int  `yaml:"id"`
	PinIn      int  `yaml:"pin_in"`
	PinOut     int  `yaml:"pin_out"`
	Phantom    bool `yaml:"phantom,omitempty"`
	ActiveLow  bool `yaml:"active_low"`
	LongTapMs  int  `yaml:"long_tap_ms"`
	InterTapMs int  `yaml:"inter_tap_ms"`
	Taps       Taps `yaml:"taps"`
}

// UnmarshalYAML fills the fields a channel entry omits with their defaults.
// An omitted pin_out makes a phantom channel.
func (c *Channel) UnmarshalYAML(n *yaml.Node) error {
	type plain Channel
	p := plain{PinOut: NoPin, LongTapMs: DefaultLongTapMs, InterTapMs: DefaultInterTapMs}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = Channel(p)
	return nil
}

// HasOutput reports whether the channel drives a relay.
func (c Channel) HasOutput() bool {
	return !c.Phantom && c.PinOut >= 0
}

// MQTT is the bus configuration.
type MQTT struct {
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	BaseTopic        string `yaml:"base_topic"`
	GroupTopic       string `yaml:"group_topic"`
	MgtTopic         string `yaml:"mgt_topic"`
	HeartbeatS       int    `yaml:"heartbeat_s"`
	InitStateDelayMs int    `yaml:"init_state_delay_ms"`
	BufferSize       int    `yaml:"buffer_size"`
}

// Config is the daemon configuration.
type Config struct {
	Hostname string    `yaml:"hostname"`
	LogLevel string    `yaml:"log_level"`
	HTTPAddr string    `yaml:"http_addr"`
	PollMs   int       `yaml:"poll_ms"`
	GPIOChip string    `yaml:"gpio_chip"`
	MQTT     MQTT      `yaml:"mqtt"`
	Channels []Channel `yaml:"channels"`
}

// Default returns the configuration of a three channel switch where every
// channel toggles its own relay.
func Default() Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "touch-switch"
	}
	cfg := Config{
		Hostname: host,
		LogLevel: "info",
		HTTPAddr: DefaultHTTPAddr,
		PollMs:   DefaultPollMs,
		GPIOChip: gpio.DefaultChip,
		MQTT: MQTT{
			Broker:           DefaultBroker,
			BaseTopic:        "touch-switch/" + host,
			GroupTopic:       "touch-switch/group",
			MgtTopic:         "touch-switch/mgt",
			HeartbeatS:       DefaultHeartbeatS,
			InitStateDelayMs: DefaultInitDelayMs,
			BufferSize:       mqtt.DefaultBufferSize,
		},
	}
	for i := range gpio.DefaultInputs {
		cfg.Channels = append(cfg.Channels, Channel{
			PinIn:      gpio.DefaultInputs[i],
			PinOut:     gpio.DefaultOutputs[i],
			LongTapMs:  DefaultLongTapMs,
			InterTapMs: DefaultInterTapMs,
			Taps: Taps{
				ShortSingle: TapOp{Op: channel.KeywordToggle},
				ShortMulti:  TapOp{Op: channel.KeywordToggle},
				LongSingle:  TapOp{Op: channel.KeywordToggle},
			},
		})
	}
	return cfg
}

// Load reads a YAML file over the defaults. A file that lists channels
// replaces the default channels entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping the values the document omits.
func Parse(data []byte, cfg *Config) error {
	defaults := cfg.Channels
	cfg.Channels = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Channels = defaults
		return err
	}
	if cfg.Channels == nil {
		cfg.Channels = defaults
	}
	return nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports configuration errors that prevent startup.
func (c Config) Validate() error {
	var errs []error
	if c.PollMs <= 0 {
		errs = append(errs, fmt.Errorf("poll_ms must be positive, got %d", c.PollMs))
	}
	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("no channels configured"))
	}
	if err := c.Topics().Validate(); err != nil {
		errs = append(errs, err)
	}
	pins := make(map[int]int)
	for i, ch := range c.Channels {
		claim := func(p int) {
			if prev, ok := pins[p]; ok {
				errs = append(errs, fmt.Errorf("channel %d: pin %d already used by channel %d", i, p, prev))
				return
			}
			pins[p] = i
		}
		if ch.PinIn < 0 {
			errs = append(errs, fmt.Errorf("channel %d: invalid pin_in %d", i, ch.PinIn))
		} else {
			claim(ch.PinIn)
		}
		if ch.HasOutput() {
			claim(ch.PinOut)
		}
	}
	return errors.Join(errs...)
}

// Topics returns the bus topic layout.
func (c Config) Topics() mqtt.Topics {
	return mqtt.Topics{
		Base:     c.MQTT.BaseTopic,
		Group:    c.MQTT.GroupTopic,
		Mgt:      c.MQTT.MgtTopic,
		Hostname: c.Hostname,
	}
}

// ClientID returns the configured MQTT client id, or a generated one.
func (c Config) ClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return "touch-switch-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Poll returns the main loop tick.
func (c Config) Poll() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval; 0 disables periodic heartbeats.
func (c Config) Heartbeat() time.Duration {
	if c.MQTT.HeartbeatS <= 0 {
		return 0
	}
	return time.Duration(c.MQTT.HeartbeatS) * time.Second
}

// InitStateDelay returns the delay before the initial state publish.
func (c Config) InitStateDelay() time.Duration {
	if c.MQTT.InitStateDelayMs <= 0 {
		return 0
	}
	return time.Duration(c.MQTT.InitStateDelayMs) * time.Millisecond
}

// Resolve converts the channel configuration into channel configs. Invalid
// settings never fail: the affected slot is disabled, or the id made
// unaddressable, and a warning is logged.
func (c Config) Resolve() []channel.Config {
	out := make([]channel.Config, len(c.Channels))
	for i, ch := range c.Channels {
		log := logrus.WithField("channel", i)
		cc := channel.Config{
			Index: i,
			Tap: tap.Config{
				LongTap:  msOrDefault(ch.LongTapMs, DefaultLongTapMs),
				InterTap: msOrDefault(ch.InterTapMs, DefaultInterTapMs),
			},
		}
		if ch.ID < 0 || ch.ID > group.MaxID {
			log.WithField("id", ch.ID).Warn("id out of range, channel unaddressable")
		} else {
			cc.ID = uint8(ch.ID)
		}

		slots := [channel.NumSlots]TapOp{ch.Taps.ShortSingle, ch.Taps.ShortMulti, ch.Taps.LongSingle}
		for s, t := range slots {
			op, err := resolveOp(t)
			if err != nil {
				log.WithError(err).WithField("slot", channel.Slot(s).String()).Warn("slot disabled")
			}
			cc.Ops[s] = op
		}
		out[i] = cc
	}
	return out
}

func msOrDefault(ms, def int) time.Duration {
	if ms < 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

// resolveOp parses one slot. An empty keyword disables the slot silently.
func resolveOp(t TapOp) (channel.Operation, error) {
	if t.Op == "" {
		return channel.Operation{}, nil
	}
	switch kind := channel.ParseKeyword(t.Op); kind {
	case channel.OpToggle:
		return channel.Toggle(), nil

	case channel.OpToggleMaskOff, channel.OpForward:
		m, err := group.ParseMask(t.Arg)
		if err != nil {
			return channel.Operation{}, fmt.Errorf("%s: %w", t.Op, err)
		}
		if kind == channel.OpForward {
			return channel.Forward(m), nil
		}
		return channel.ToggleMaskOff(m), nil

	case channel.OpAutoOff:
		secs, err := strconv.ParseUint(t.Arg, 10, 32)
		if err != nil || secs == 0 {
			return channel.Operation{}, fmt.Errorf("%s: invalid step %q", t.Op, t.Arg)
		}
		return channel.AutoOff(time.Duration(secs) * time.Second), nil
	}
	return channel.Operation{}, fmt.Errorf("unknown operation %q", t.Op)
}
