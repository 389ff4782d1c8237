// Package protocol defines the JSON messages of the local activity feed.
package protocol

import "encoding/json"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeHello is sent by the server right after a client connects
	TypeHello MessageType = "hello"

	// TypePulse is sent once per activity pulse
	TypePulse MessageType = "pulse"

	// TypeState is sent when the monitored modalities change
	TypeState MessageType = "state"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// HelloPayload is the payload for TypeHello
type HelloPayload struct {
	Version  string `json:"version"`
	Count    uint32 `json:"count"`
	Keyboard bool   `json:"keyboard"`
	Mouse    bool   `json:"mouse"`
}

// PulsePayload is the payload for TypePulse
type PulsePayload struct {
	Count     uint32 `json:"count"`
	Timestamp int64  `json:"ts"` // Unix ms timestamp
}

// StatePayload is the payload for TypeState
type StatePayload struct {
	Enabled  bool `json:"enabled"`
	Keyboard bool `json:"keyboard"`
	Mouse    bool `json:"mouse"`
}

// Envelope is a received Message whose payload is decoded by type
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
