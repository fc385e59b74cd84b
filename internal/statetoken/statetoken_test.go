package statetoken

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("test-secret", 0)

	token, err := s.Sign(Payload{OrgID: "org-1", IntegrationID: "int-1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	p, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "org-1", p.OrgID)
	assert.Equal(t, "int-1", p.IntegrationID)
	assert.NotZero(t, p.IssuedAt)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := NewSigner("secret-a", 0)
	other := NewSigner("secret-b", 0)

	token, err := s.Sign(Payload{OrgID: "org-1"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := NewSigner("test-secret", 0)

	token, err := s.Sign(Payload{OrgID: "org-1"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	// Flip a single bit in every position; verification must fail for
	// each mutation.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := s.Verify(base64.RawURLEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, ErrInvalidState, "bit flip at byte %d accepted", i)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := NewSigner("test-secret", 0)

	for _, token := range []string{"", "not-base64!!!", "aGVsbG8"} {
		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidState)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewSigner("test-secret", 10*time.Minute)

	token, err := s.Sign(Payload{OrgID: "org-1"})
	require.NoError(t, err)

	// Within the TTL the token verifies.
	s.now = func() time.Time { return time.Now().Add(9 * time.Minute) }
	_, err = s.Verify(token)
	require.NoError(t, err)

	// Past the TTL it does not.
	s.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidState)
}
