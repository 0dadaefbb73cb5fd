// Package mqtt connects the switch to the MQTT bus, with an abstraction for
// testing.
package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Payloads of the status topics.
const (
	PayloadOn      = "on"
	PayloadOff     = "off"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// ErrNotConnected is returned when a message cannot be sent or buffered
// because the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topics is the topic layout of one device.
type Topics struct {
	// Base prefixes the device command and status topics.
	Base string
	// Group is shared by all switches taking part in group commands.
	Group string
	// Mgt is the management command topic shared by all switches.
	Mgt string
	// Hostname identifies this device on the management topic.
	Hostname string
}

// DeviceCmd is the device command topic.
func (t Topics) DeviceCmd() string { return t.Base + "/cmd" }

// DeviceStat is the retained device availability topic.
func (t Topics) DeviceStat() string { return t.Base + "/stat" }

// ChannelCmd is the command topic of channel i.
func (t Topics) ChannelCmd(i int) string { return t.Base + "/cmd/ch" + strconv.Itoa(i) }

// ChannelStat is the retained status topic of channel i.
func (t Topics) ChannelStat(i int) string { return t.Base + "/stat/ch" + strconv.Itoa(i) }

// MgtReply is where this device answers management commands.
func (t Topics) MgtReply() string { return t.Mgt + "/" + t.Hostname }

// Subscriptions lists the topics a device subscribes to.
func (t Topics) Subscriptions() []string {
	subs := []string{t.DeviceCmd(), t.Base + "/cmd/+"}
	if t.Group != "" {
		subs = append(subs, t.Group)
	}
	if t.Mgt != "" {
		subs = append(subs, t.Mgt)
	}
	return subs
}

// ChannelIndex returns the channel addressed by a channel command topic. The
// index must be written in plain decimal digits without a leading zero, so
// each channel has exactly one command topic.
func (t Topics) ChannelIndex(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/cmd/ch")
	if !ok || rest == "" || (len(rest) > 1 && rest[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Validate checks that the layout is usable.
func (t Topics) Validate() error {
	if t.Base == "" {
		return fmt.Errorf("mqtt: empty base topic")
	}
	for _, s := range []string{t.Base, t.Group, t.Mgt} {
		if strings.ContainsAny(s, "+#") {
			return fmt.Errorf("mqtt: wildcard in topic %q", s)
		}
	}
	return nil
}

// Message is an inbound message.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher publishes the switch's outbound messages.
type Publisher interface {
	// PublishState publishes a retained channel on/off state.
	PublishState(index int, on bool) error
	// PublishGroup publishes a group command.
	PublishGroup(payload []byte) error
	// PublishDevice publishes the retained device availability.
	PublishDevice(status string) error
	// PublishMgt publishes a management reply.
	PublishMgt(payload []byte) error
}

// Client is a bus connection.
type Client interface {
	Publisher
	// Messages delivers inbound messages. It is consumed by the main loop.
	Messages() <-chan Message
	// Connects signals every (re)connection to the broker.
	Connects() <-chan struct{}
	IsConnected() bool
	Close() error
}

// ConnectionStatus reports whether the connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatePayload returns the channel status payload.
func StatePayload(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}
