// Package events streams session broadcasts to NATS JetStream so they can be
// audited or replayed outside the process that served them.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope wraps one broadcast message as it is stored on the stream.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Subject returns the subject an envelope is published on:
// <prefix>.<sessionID>.<eventType>.
func Subject(prefix, sessionID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, token(sessionID), token(eventType))
}

// SessionFilter matches every event of one session.
func SessionFilter(prefix, sessionID string) string {
	return fmt.Sprintf("%s.%s.>", prefix, token(sessionID))
}

// token keeps a value from introducing extra subject levels or wildcards.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// DecodeEnvelope parses a stored message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.EventType == "" || env.SessionID == "" {
		return Envelope{}, fmt.Errorf("event envelope missing type or session")
	}
	return env, nil
}
