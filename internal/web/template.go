package web

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"time"

	"github.com/sweeney/ook-gateway/internal/status"
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
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stateOrUnset": func(s string) string {
		if s == "" {
			return "UNSET"
		}
		return s
	},
	"channel": func(c int) string {
		if c == 0 {
			return "any"
		}
		return fmt.Sprint(c)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>OOK Gateway</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.published { color: green; font-weight: bold; }
.pending { color: orange; }
.unset { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>OOK Gateway</h1>

<h2>Reading</h2>
<table>
{{if .HaveReading}}{{with .Reading}}<tr><th>Sensor</th><td>{{.Model}} id {{.ID}} ch {{.Channel}}</td></tr>
<tr><th>Temperature</th><td>{{.Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{.Humidity}} %</td></tr>
<tr><th>Battery</th><td>{{if .BatteryOK}}ok{{else}}low{{end}}</td></tr>{{end}}{{end}}
{{$state := stateOrUnset (printf "%s" .Arbiter.State)}}<tr><th>State</th><td class="{{if eq $state "PUBLISHED"}}published{{else if eq $state "UNSET"}}unset{{else}}pending{{end}}">{{$state}} ({{.Arbiter.Count}}/{{.Config.StableCount}})</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Network</th><td class="{{if .LinkUp}}connected{{else}}disconnected{{end}}">{{if .LinkUp}}up{{else}}down{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}} (v{{.Config.Protocol}})</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
<tr><th>Published</th><td>{{.Published}}</td></tr>
<tr><th>Failed</th><td>{{.PublishFailed}}</td></tr>
<tr><th>Last publish</th><td>{{stamp .LastPublish}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td>{{.LastError}}</td></tr>{{end}}
</table>

<h2>Decode Counts</h2>
<table>
<tr><th>Decoded</th><td>{{.Decode.Decoded}}</td></tr>
<tr><th>Wrong length</th><td>{{.Decode.Length}}</td></tr>
<tr><th>Pulse range</th><td>{{.Decode.Pulse}}</td></tr>
<tr><th>Sample range</th><td>{{.Decode.Sample}}</td></tr>
<tr><th>Other channel</th><td>{{.Decode.Channel}}</td></tr>
<tr><th>Temperature range</th><td>{{.Decode.Temperature}}</td></tr>
<tr><th>Overrun</th><td>{{.Decode.Overrun}}</td></tr>
<tr><th>Dropped edges</th><td>{{.DroppedEdges}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Receiver</th><td>{{.Config.Chip}} line {{.Config.Line}}, channel {{channel .Config.Channel}}</td></tr>
<tr><th>NTP</th><td>{{if .Config.NTPServer}}{{.Config.NTPServer}}{{else}}disabled{{end}}</td></tr>
<tr><th>Last resync</th><td>{{stamp .LastResync}}</td></tr>
<tr><th>Min interval</th><td>{{.Config.MinIntervalMs}}ms</td></tr>
<tr><th>Liveness</th><td>{{if eq .Config.LivenessMs 0}}disabled{{else}}{{.Config.LivenessMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		slog.Warn("render status page", "err", err)
	}
}
