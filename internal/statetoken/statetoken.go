// Package statetoken issues and verifies the self-verifying state values
// that carry authorization-flow context across the provider redirect hop.
// Tokens are signed, not encrypted: they hold no secrets, only tenant
// routing context and a creation timestamp.
package statetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultTTL bounds how long a state token stays valid. The window has
// to survive the user interacting with the provider's consent screen.
const DefaultTTL = 10 * time.Minute

// ErrInvalidState is returned for every verification failure. Callers
// never learn which check failed.
var ErrInvalidState = errors.New("invalid state token")

// Payload is the authorization-flow context embedded in a state token.
type Payload struct {
	OrgID         string `json:"org_id"`
	IntegrationID string `json:"integration_id,omitempty"`
	Redirect      string `json:"redirect,omitempty"`
	IssuedAt      int64  `json:"ts"`
}

// Signer signs and verifies state tokens with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. A zero ttl falls back to DefaultTTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign serializes the payload, stamps it with the current time, and
// returns base64url(JSON + "." + hex HMAC-SHA256).
func (s *Signer) Sign(p Payload) (string, error) {
	p.IssuedAt = s.now().Unix()

	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	mac := s.mac(body)
	token := append(body, '.')
	token = append(token, []byte(mac)...)

	return base64.RawURLEncoding.EncodeToString(token), nil
}

// Verify decodes the token, recomputes the MAC over the payload, and
// compares in constant time. Any decode failure, MAC mismatch, or an
// embedded timestamp older than the TTL yields ErrInvalidState.
func (s *Signer) Verify(token string) (Payload, error) {
	var p Payload

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, ErrInvalidState
	}

	// The JSON body cannot contain a bare "." past its closing brace,
	// so the last separator splits payload from MAC.
	idx := strings.LastIndexByte(string(raw), '.')
	if idx < 0 {
		return p, ErrInvalidState
	}
	body, mac := raw[:idx], raw[idx+1:]

	expected := s.mac(body)
	if !hmac.Equal([]byte(expected), mac) {
		return p, ErrInvalidState
	}

	if err := json.Unmarshal(body, &p); err != nil {
		return p, ErrInvalidState
	}

	issued := time.Unix(p.IssuedAt, 0)
	if s.now().Sub(issued) > s.ttl {
		return Payload{}, ErrInvalidState
	}

	return p, nil
}

func (s *Signer) mac(body []byte) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
