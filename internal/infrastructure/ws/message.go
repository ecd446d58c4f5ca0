// Package ws carries the WebSocket plumbing: the connection pumps, the
// message envelope and the device-backed geolocation source.
package ws

import (
	"encoding/json"
	"fmt"
)

// Device channel events.
const (
	EventTrackingStart   = "tracking:start"
	EventTrackingStop    = "tracking:stop"
	EventTrackingStarted = "tracking:started"
	EventTrackingStopped = "tracking:stopped"
	EventTrackingError   = "tracking:error"

	EventPositionSample     = "position:sample"
	EventPositionReply      = "position:reply"
	EventPositionError      = "position:error"
	EventPositionWatch      = "position:watch"
	EventPositionClearWatch = "position:clear-watch"
	EventPositionRequest    = "position:request"
)

// Stream events.
const (
	EventLocationUpdate = "location:update"
	EventDriversUpdate  = "drivers:update"
	EventStreamError    = "stream:error"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into an envelope. A nil data leaves Data empty.
func NewMessage(event string, data any) (Message, error) {
	msg := Message{Event: event}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", event, err)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Event, err)
	}
	return nil
}

type TrackingStartPayload struct {
	DriverID string `json:"driver_id"`
}

type TrackingStartedPayload struct {
	DriverID     string `json:"driver_id"`
	DriverName   string `json:"driver_name"`
	DriverNumber string `json:"driver_number"`
}

// ErrorPayload is sent with tracking:error. The socket stays open.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PositionPayload is a device reading, either a watch sample or the reply to
// a position:request.
type PositionPayload struct {
	RequestID string   `json:"request_id,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy,omitempty"`
}

// PositionErrorPayload reports a device failure. Without a request id it
// belongs to the watch.
type PositionErrorPayload struct {
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PositionOptionsPayload is sent with position:watch and position:request.
type PositionOptionsPayload struct {
	RequestID    string `json:"request_id,omitempty"`
	TimeoutMs    int64  `json:"timeout_ms"`
	MaxAgeMs     int64  `json:"max_age_ms"`
	HighAccuracy bool   `json:"high_accuracy"`
}
