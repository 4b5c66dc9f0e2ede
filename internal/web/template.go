package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/room-sensor/internal/status"
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
	"reading": func(r status.Reading, unit string) string {
		if !r.Valid() {
			return "–"
		}
		return fmt.Sprintf("%.2f%s", r.Value, unit)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Room Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.occupied { color: green; font-weight: bold; }
.vacant { color: #888; }
.alert { color: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Room Sensor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Occupancy</h2>
<table>
<tr><th>State</th><td id="occupancy" class="{{if .Occupied}}occupied{{else}}vacant{{end}}">{{.Label}}</td></tr>
{{if eq .Config.Mode "presence"}}<tr><th>Presence</th><td id="presence">{{if .Present}}DETECTED{{else}}CLEAR{{end}}</td></tr>
{{else}}<tr><th>Occupants</th><td id="occupant-count">{{.Count}}</td></tr>
<tr><th>Detector</th><td>{{.Phase}}</td></tr>
<tr><th>Entries / Exits</th><td>{{.Crossings.Entries}} / {{.Crossings.Exits}}</td></tr>
<tr><th>Late / Abandoned</th><td>{{.Crossings.Late}} / {{.Crossings.Abandoned}}</td></tr>{{end}}
</table>

<h2>Climate</h2>
<table>
<tr><th>Temperature</th><td id="temperature">{{reading .Temperature " °C"}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{reading .Humidity " %"}}</td></tr>
<tr><th>Light</th><td id="light">{{reading .Light ""}}</td></tr>
<tr><th>Cooling</th><td id="cooling-suggestion">{{if .Cooling}}{{.Cooling}}{{else}}–{{end}}</td></tr>
<tr><th>Last alert</th><td id="alerts" class="alert"></td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}} ({{.Config.Protocol}})</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Published</th><td>{{.Counters.Published}}</td></tr>
<tr><th>Publish errors</th><td>{{.Counters.PublishErrors}}</td></tr>
<tr><th>Connect attempts</th><td>{{.Counters.ConnectAttempts}}</td></tr>
<tr><th>Alerts</th><td>{{.Counters.Alerts}}</td></tr>
{{range .Queues}}<tr><th>Queue {{.Name}}</th><td>{{.Len}}/{{.Cap}}, {{.Dropped}} dropped</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Sequence timeout</th><td>{{.Config.SequenceTimeoutMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var prefix = "{{.Config.TopicPrefix}}";
  var dot = document.getElementById("live-dot");
  var units = { temperature: " °C", humidity: " %", light: "" };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        var name = prefix ? msg.topic.slice(prefix.length + 1) : msg.topic;
        var el = document.getElementById(name);
        if (!el) { return; }
        el.textContent = (name in units) ? msg.payload + units[name] : msg.payload;
        if (name === "occupancy") {
          el.className = msg.payload === "OCCUPIED" ? "occupied" : "vacant";
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
