package slack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeURLVerification(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type": "url_verification", "challenge": "3eZbrw1aB1"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeURLVerification, env.Type)
	assert.Equal(t, "3eZbrw1aB1", env.Challenge)
}

func TestParseMessage(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"type": "event_callback",
		"event_id": "Ev1",
		"team_id": "T123",
		"event": {"type": "message", "channel": "C42", "user": "U7", "text": "hello", "ts": "1700000000.000100"}
	}`))
	require.NoError(t, err)

	msg, err := env.ParseMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "C42", msg.Channel)
	assert.Equal(t, "U7", msg.User)
	assert.Equal(t, "hello", msg.Text)
}

func TestParseMessageFiltersNonActivity(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"bot message", `{"type": "message", "channel": "C42", "bot_id": "B9", "text": "beep", "ts": "1.0"}`},
		{"subtype", `{"type": "message", "subtype": "channel_join", "channel": "C42", "user": "U7", "ts": "2.0"}`},
		{"missing user", `{"type": "message", "channel": "C42", "text": "x", "ts": "3.0"}`},
		{"not a message", `{"type": "reaction_added", "user": "U7"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{Type: TypeEventCallback, Event: []byte(tt.event)}
			msg, err := env.ParseMessage()
			require.NoError(t, err)
			assert.Nil(t, msg)
		})
	}
}

func TestMessageTimestamp(t *testing.T) {
	msg := &MessageEvent{TS: "1700000000.000100"}
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp())

	malformed := &MessageEvent{TS: "not-a-ts"}
	assert.True(t, malformed.Timestamp().IsZero())
}
