// Package server defines the relayed message envelopes and shared helpers
// reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Envelope kinds emitted by the relay itself. Client payloads that parse as
// JSON objects are forwarded untouched and carry whatever fields the clients
// agreed on, typically E2E ciphertext.
const (
	KindSystem = "system"
	KindText   = "text"
)

// Envelope is the relay-generated unit: either the system notice sent to a
// newly joined connection, or the plain-text wrapper for inbound payloads
// that do not parse as a JSON object.
type Envelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BroadcastMessage encapsulates a payload being fanned out by the hub to one
// room. The sender is retained for logging; it is NOT excluded from delivery,
// so the originating client receives its own echo.
type BroadcastMessage struct {
	Room    string
	Sender  *Client
	Payload []byte
}

// systemNotice is delivered directly to a freshly joined connection, never
// broadcast to the room.
func systemNotice() []byte {
	notice, _ := json.Marshal(Envelope{Kind: KindSystem, Message: "connected to server"})
	return notice
}

// relayPayload decides the outbound shape for one inbound frame. A JSON
// object is re-serialized and forwarded verbatim; anything else (invalid
// JSON, or a JSON value that is not an object) degrades to the text wrapper.
// Malformed input is never surfaced to the sender as an error.
func relayPayload(raw []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		if normalized, err := json.Marshal(obj); err == nil {
			return normalized
		}
	}

	fallback, err := json.Marshal(Envelope{Kind: KindText, Message: string(raw)})
	if err != nil {
		return nil
	}
	return fallback
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
