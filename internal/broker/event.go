// Package broker carries order events over Redis Streams with at-least-once
// delivery through consumer groups.
package broker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stream message fields.
const (
	fieldUserID  = "user_id"
	fieldPayload = "payload"
)

// OrderPlaced is published after an order commits.
type OrderPlaced struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	City      *string   `json:"city,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one delivered stream entry.
type Message struct {
	ID     string
	Values map[string]any
}

// UserID returns the user_id field, or "" when absent.
func (m Message) UserID() string {
	s, _ := m.Values[fieldUserID].(string)
	return s
}

// DecodeOrderPlaced parses the event payload of m.
func (m Message) DecodeOrderPlaced() (OrderPlaced, error) {
	var evt OrderPlaced
	raw, ok := m.Values[fieldPayload].(string)
	if !ok {
		return evt, fmt.Errorf("message %s has no payload", m.ID)
	}
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return evt, fmt.Errorf("message %s: malformed payload: %w", m.ID, err)
	}
	return evt, nil
}
