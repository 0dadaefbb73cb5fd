package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/touch-switch/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"state": func(c status.Channel) string {
		if c.Disabled {
			return "DISABLED"
		}
		return status.StateString(c.On)
	},
	"seconds": func(d time.Duration) int64 {
		return int64(d.Round(time.Second).Seconds())
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.Hostname}} - Touch Switch</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 30%; }
.ON { color: green; font-weight: bold; }
.OFF { color: #888; }
.DISABLED { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Hostname}} <small>{{.Config.Version}}</small></h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>State</th><th>Taps</th><th>Group</th></tr>
{{range .Channels}}<tr>
<td>ch{{.Index}} (id {{.ID}}){{if .Phantom}} phantom{{end}}</td>
<td class="{{state .}}">{{state .}}{{if .AutoOff}} ({{seconds .AutoOff}}s){{end}}</td>
<td>{{index .Ops 0}} / {{index .Ops 1}} / {{index .Ops 2}}<br>short {{.Stats.ShortTaps}}, long {{.Stats.LongTaps}}{{if .Drops}}, dropped {{.Drops}}{{end}}</td>
<td>{{.Mask}}<br>in {{.Stats.GroupCommands}}, out {{.Stats.GroupSent}}</td>
</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.BaseTopic}}, {{.Config.GroupTopic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Initial state</th><td>{{if .Ready}}published{{else}}pending{{end}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/health">health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
