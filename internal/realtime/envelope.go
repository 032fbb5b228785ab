// Package realtime maintains the dashboard's push channel to the agent backend
// and fans decoded envelopes out to subscribers.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultType is assigned to frames that carry no usable "type" field.
const DefaultType = "message"

// ErrNotObject is returned for frames that are valid JSON but not an object.
var ErrNotObject = errors.New("frame is not a JSON object")

// Envelope is one decoded unit of the push stream. It is a value; observers must
// treat Payload and Extra as read-only because every observer shares them.
type Envelope struct {
	Type      string         `json:"type"`
	SenderID  string         `json:"senderId,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`

	// Extra holds top-level fields the envelope schema does not name.
	Extra map[string]any `json:"-"`
}

// Field returns a payload field, falling back to the top-level extras.
// Backend log frames carry their fields flat rather than under "payload".
func (e Envelope) Field(name string) (any, bool) {
	if v, ok := e.Payload[name]; ok {
		return v, true
	}
	v, ok := e.Extra[name]
	return v, ok
}

// DecodeEnvelope parses one text frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if raw == nil {
		return Envelope{}, ErrNotObject
	}

	env := Envelope{Type: DefaultType}
	if s, ok := raw["type"].(string); ok && s != "" {
		env.Type = s
	}
	delete(raw, "type")

	// The backend serializes the sender as "from"; newer producers use "senderId".
	for _, key := range []string{"senderId", "from"} {
		if s, ok := raw[key].(string); ok && env.SenderID == "" {
			env.SenderID = s
			delete(raw, key)
		}
	}
	if s, ok := raw["timestamp"].(string); ok {
		env.Timestamp = s
		delete(raw, "timestamp")
	}
	if p, ok := raw["payload"].(map[string]any); ok {
		env.Payload = p
		delete(raw, "payload")
	}

	if len(raw) > 0 {
		env.Extra = raw
	}
	return env, nil
}

// MarshalJSON writes the envelope back in wire form, extras included.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+4)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["type"] = e.Type
	if e.SenderID != "" {
		out["senderId"] = e.SenderID
	}
	if e.Timestamp != "" {
		out["timestamp"] = e.Timestamp
	}
	if e.Payload != nil {
		out["payload"] = e.Payload
	}
	return json.Marshal(out)
}
