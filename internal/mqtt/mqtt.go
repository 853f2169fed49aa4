// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// TopicPrefix is the root of every topic the gateway publishes to.
const TopicPrefix = "sensors"

// Topic returns the topic readings of the given model are published to.
func Topic(model string) string {
	return TopicPrefix + "/" + model
}

// TopicSystem returns the topic lifecycle events of the given client are
// published to.
func TopicSystem(clientID string) string {
	return TopicPrefix + "/" + clientID + "/system"
}

// TimeFormat is the layout of the payload "time" field.
const TimeFormat = "2006-01-02 15:04:05 UTC"

// Publisher publishes readings and lifecycle events to MQTT.
type Publisher interface {
	// PublishReading sends a reading stamped with at (wall clock).
	// Returns error if publishing fails (should not crash the process).
	PublishReading(ctx context.Context, r decoder.Reading, at time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(ctx context.Context, event SystemEvent) error

	// Close releases any resources held by the publisher.
	Close() error
}

// SystemEvent represents a system lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the reading message, field-compatible with rtl_433 JSON output.
type Payload struct {
	Time         string      `json:"time"`
	Model        string      `json:"model"`
	ID           uint8       `json:"id"`
	Channel      uint8       `json:"channel"`
	BatteryOK    int         `json:"battery_ok"`
	TemperatureC json.Number `json:"temperature_C"`
	Humidity     int         `json:"humidity"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r decoder.Reading, at time.Time) ([]byte, error) {
	battery := 0
	if r.BatteryOK {
		battery = 1
	}
	return json.Marshal(Payload{
		Time:         at.UTC().Format(TimeFormat),
		Model:        r.Model,
		ID:           r.ID,
		Channel:      r.Channel,
		BatteryOK:    battery,
		TemperatureC: json.Number(r.Temperature()),
		Humidity:     r.Humidity,
	})
}

// SystemPayload represents the MQTT message payload for system events
// that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
