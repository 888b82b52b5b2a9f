package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeConnect
	EventTypeDisconnect
	EventTypeAnnounce
	EventTypeSpawn
	EventTypeRespawn
	EventTypeSpawnAbandoned
	EventTypeControlDropped
	EventTypeCatchUp
	EventTypePlay
	EventTypeEdit
	EventTypeFatal
)

// EventVersion for backwards compatibility of the log format
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	TickNum   uint64          `json:"tickNum"`   // Tick this occurred in
	Client    uint64          `json:"client"`    // Source client, 0 for the server itself
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeConnect:
		return "connect"
	case EventTypeDisconnect:
		return "disconnect"
	case EventTypeAnnounce:
		return "announce"
	case EventTypeSpawn:
		return "spawn"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeSpawnAbandoned:
		return "spawn_abandoned"
	case EventTypeControlDropped:
		return "control_dropped"
	case EventTypeCatchUp:
		return "catch_up"
	case EventTypePlay:
		return "play"
	case EventTypeEdit:
		return "edit"
	case EventTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Typed payloads for different event types

// DisconnectPayload tells whether the client's vessel was removed.
type DisconnectPayload struct {
	Entity uint64 `json:"entity,omitempty"`
	Owned  bool   `json:"owned"`
}

// AnnouncePayload describes an accepted vessel announcement.
type AnnouncePayload struct {
	Entity   uint64 `json:"entity"`
	VesselID string `json:"vesselId"`
	Parts    int    `json:"parts"`
}

// SpawnPayload describes a spawn pipeline outcome.
type SpawnPayload struct {
	Entity   uint64 `json:"entity"`
	VesselID string `json:"vesselId"`
}

// ControlDropPayload carries the bounded drop reason.
type ControlDropPayload struct {
	Reason string `json:"reason"`
}

// CatchUpPayload counts the definitions shared with a new client.
type CatchUpPayload struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
}

// FatalPayload records why a session stopped.
type FatalPayload struct {
	Error string `json:"error"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, client uint64, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Name:      eventType.String(),
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Client:    client,
		Payload:   EncodePayload(payload),
	}
}
