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
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	StableCount   int          `json:"stable_count"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Time          TimeStatus   `json:"time"`
	Receiver      Receiver     `json:"receiver"`
	Counts        CountsJSON   `json:"decode_counts"`
	LastError     string       `json:"last_error,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the tracked reading.
type ReadingJSON struct {
	Model        string      `json:"model"`
	ID           uint8       `json:"id"`
	Channel      uint8       `json:"channel"`
	BatteryOK    bool        `json:"battery_ok"`
	TemperatureC json.Number `json:"temperature_C"`
	Humidity     int         `json:"humidity"`
}

// MQTTStatus reports broker reachability and publish counters.
type MQTTStatus struct {
	LinkUp      bool   `json:"link_up"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Published   int    `json:"published"`
	Failed      int    `json:"failed"`
	LastPublish string `json:"last_publish,omitempty"`
}

// TimeStatus reports clock sync state.
type TimeStatus struct {
	NTPServer    string `json:"ntp_server"`
	LastResync   string `json:"last_resync,omitempty"`
	ResyncFailed int    `json:"resync_failed"`
}

// Receiver reports the pulse receiver.
type Receiver struct {
	Chip         string `json:"chip"`
	Line         int    `json:"line"`
	Channel      int    `json:"channel"`
	DroppedEdges uint64 `json:"dropped_edges"`
}

// CountsJSON is the JSON representation of decode outcome counts.
type CountsJSON struct {
	Decoded     int `json:"decoded"`
	Length      int `json:"length"`
	Pulse       int `json:"pulse"`
	Sample      int `json:"sample"`
	Channel     int `json:"channel"`
	Temperature int `json:"temperature"`
	Overrun     int `json:"overrun"`
	Other       int `json:"other"`
}

// ConfigJSON is the JSON representation of gateway config.
type ConfigJSON struct {
	Protocol      int    `json:"protocol"`
	StableCount   int    `json:"stable_count"`
	MinIntervalMs int64  `json:"min_interval_ms"`
	LivenessMs    int64  `json:"liveness_ms"`
	ResyncMs      int64  `json:"resync_ms"`
	HTTPAddr      string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Arbiter.State)
	if state == "" {
		state = "UNSET"
	}

	inner := StatusInner{
		State:         state,
		StableCount:   snap.Arbiter.Count,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT: MQTTStatus{
			LinkUp:      snap.LinkUp,
			Broker:      snap.Config.Broker,
			ClientID:    snap.Config.ClientID,
			Published:   snap.Published,
			Failed:      snap.PublishFailed,
			LastPublish: formatTime(snap.LastPublish),
		},
		Time: TimeStatus{
			NTPServer:    snap.Config.NTPServer,
			LastResync:   formatTime(snap.LastResync),
			ResyncFailed: snap.ResyncFailed,
		},
		Receiver: Receiver{
			Chip:         snap.Config.Chip,
			Line:         snap.Config.Line,
			Channel:      snap.Config.Channel,
			DroppedEdges: snap.DroppedEdges,
		},
		Counts: CountsJSON{
			Decoded:     snap.Decode.Decoded,
			Length:      snap.Decode.Length,
			Pulse:       snap.Decode.Pulse,
			Sample:      snap.Decode.Sample,
			Channel:     snap.Decode.Channel,
			Temperature: snap.Decode.Temperature,
			Overrun:     snap.Decode.Overrun,
			Other:       snap.Decode.Other,
		},
		LastError: snap.LastError,
		Config: ConfigJSON{
			Protocol:      snap.Config.Protocol,
			StableCount:   snap.Config.StableCount,
			MinIntervalMs: snap.Config.MinIntervalMs,
			LivenessMs:    snap.Config.LivenessMs,
			ResyncMs:      snap.Config.ResyncMs,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}

	if snap.HaveReading {
		r := snap.Reading
		inner.Reading = &ReadingJSON{
			Model:        r.Model,
			ID:           r.ID,
			Channel:      r.Channel,
			BatteryOK:    r.BatteryOK,
			TemperatureC: json.Number(r.Temperature()),
			Humidity:     r.Humidity,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
