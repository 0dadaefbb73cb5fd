package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Hostname      string        `json:"hostname"`
	Version       string        `json:"version"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Channels      []ChannelJSON `json:"channels"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ChannelJSON is the JSON representation of a channel.
type ChannelJSON struct {
	Index          int        `json:"index"`
	ID             uint8      `json:"id"`
	Mask           string     `json:"mask"`
	State          string     `json:"state"`
	AutoOffSeconds int64      `json:"auto_off_seconds,omitempty"`
	Enabled        bool       `json:"enabled"`
	Phantom        bool       `json:"phantom,omitempty"`
	TapState       string     `json:"tap_state"`
	Ops            OpsJSON    `json:"ops"`
	Counts         CountsJSON `json:"counts"`
}

// OpsJSON lists the operation bound to each tap slot.
type OpsJSON struct {
	ShortSingle string `json:"short_single"`
	ShortMulti  string `json:"short_multi"`
	LongSingle  string `json:"long_single"`
}

// CountsJSON is the JSON representation of channel counters.
type CountsJSON struct {
	ShortTaps     int    `json:"short_taps"`
	LongTaps      int    `json:"long_taps"`
	GroupCommands int    `json:"group_commands"`
	GroupSent     int    `json:"group_sent"`
	DroppedEdges  uint32 `json:"dropped_edges"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	BaseTopic   string `json:"base_topic"`
	GroupTopic  string `json:"group_topic"`
	HTTPAddr    string `json:"http_addr"`
}

// StateString renders an output state.
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildChannel(c Channel) ChannelJSON {
	state := StateString(c.On)
	if c.Disabled {
		state = "DISABLED"
	}
	return ChannelJSON{
		Index:          c.Index,
		ID:             c.ID,
		Mask:           c.Mask,
		State:          state,
		AutoOffSeconds: int64(c.AutoOff.Round(time.Second).Seconds()),
		Enabled:        c.Enabled,
		Phantom:        c.Phantom,
		TapState:       c.TapState,
		Ops:            OpsJSON{ShortSingle: c.Ops[0], ShortMulti: c.Ops[1], LongSingle: c.Ops[2]},
		Counts: CountsJSON{
			ShortTaps:     c.Stats.ShortTaps,
			LongTaps:      c.Stats.LongTaps,
			GroupCommands: c.Stats.GroupCommands,
			GroupSent:     c.Stats.GroupSent,
			DroppedEdges:  c.Drops,
		},
	}
}

// Build converts a snapshot into its JSON representation.
func Build(snap Snapshot) StatusJSON {
	inner := StatusInner{
		Hostname:      snap.Config.Hostname,
		Version:       snap.Config.Version,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Channels:      make([]ChannelJSON, 0, len(snap.Channels)),
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			BaseTopic:   snap.Config.BaseTopic,
			GroupTopic:  snap.Config.GroupTopic,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	for _, c := range snap.Channels {
		inner.Channels = append(inner.Channels, buildChannel(c))
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return StatusJSON{Status: inner}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(Build(snap), "", "  ")
	return data
}
