package slack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Envelope types delivered on the Slack Events API.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"
)

// Envelope is the outer Events API wrapper. Event stays raw until the
// envelope type has been narrowed.
type Envelope struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	EventID   string          `json:"event_id"`
	Event     json.RawMessage `json:"event"`
}

// MessageEvent is the inner message event of an event_callback.
type MessageEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// ParseEnvelope decodes the outer Events API wrapper.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("slack: parse event envelope: %w", err)
	}
	return &env, nil
}

// ParseMessage narrows an event_callback's inner event into a message,
// returning (nil, nil) when the inner event is not a user message.
func (e *Envelope) ParseMessage() (*MessageEvent, error) {
	if e.Type != TypeEventCallback || len(e.Event) == 0 {
		return nil, nil
	}

	var msg MessageEvent
	if err := json.Unmarshal(e.Event, &msg); err != nil {
		return nil, fmt.Errorf("slack: parse message event: %w", err)
	}
	if msg.Type != "message" {
		return nil, nil
	}
	// Bot echoes and channel-join noise are not member activity.
	if msg.BotID != "" || msg.Subtype != "" || msg.User == "" {
		return nil, nil
	}
	return &msg, nil
}

// Timestamp converts a Slack "1234567890.123456" ts into a time.Time.
// A malformed ts falls back to the zero time; callers substitute the
// delivery time.
func (m *MessageEvent) Timestamp() time.Time {
	parts := strings.SplitN(m.TS, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
