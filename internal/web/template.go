package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/reptile-core/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>{{if .Profile.Name}}{{.Profile.Name}} - {{end}}Reptile Enclosure</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.stale { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Reptile Enclosure</h1>

<h2>Conditions</h2>
<table>
{{if .Ready}}<tr><th>Temperature</th><td id="temperature">{{.Conditions.Temperature}} °C <small>({{.Profile.Temps.Min}}-{{.Profile.Temps.Max}})</small></td></tr>
<tr><th>Humidity</th><td id="humidity">{{.Conditions.Humidity}} % <small>({{.Profile.Humidity.Min}}-{{.Profile.Humidity.Max}})</small></td></tr>
<tr><th>Light</th><td class="{{if .Conditions.LightOn}}on{{else}}off{{end}}">{{onOff .Conditions.LightOn}}</td></tr>
<tr><th>Measured</th><td class="{{if gt .MissedTicks 0}}stale{{end}}">{{.Conditions.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}{{if gt .MissedTicks 0}} ({{.MissedTicks}} missed){{end}}</td></tr>
{{else}}<tr><th>Temperature</th><td id="temperature" class="unknown">UNKNOWN</td></tr>
<tr><th>Humidity</th><td id="humidity" class="unknown">UNKNOWN</td></tr>
{{end}}</table>

<h2>Profile</h2>
<table>
<tr><th>Name</th><td id="profile">{{.Profile.Name}}</td></tr>
<tr><th>Lights</th><td>{{.Profile.Light.On}} - {{.Profile.Light.Off}}</td></tr>
</table>

{{if .Relays}}<h2>Relays</h2>
<table>
{{range .Relays}}<tr><th>{{.Name}}</th><td class="{{if .On}}on{{else}}off{{end}}">{{onOff .On}}</td></tr>
{{end}}</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Interval</th><td>{{.Config.Interval}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Sensors</th><td>{{range $i, $s := .Config.Sensors}}{{if $i}}, {{end}}{{$s}}{{else}}none{{end}}</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and Ready() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	indexTmpl.Execute(w, data)
}
