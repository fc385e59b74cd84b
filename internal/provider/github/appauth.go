package github

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// assertionClockSkew backdates the issued-at claim to tolerate clock
	// drift between us and the provider.
	assertionClockSkew = 60 * time.Second
	// assertionTTL is the provider-imposed maximum assertion lifetime.
	assertionTTL = 600 * time.Second
)

// AssertionSigner builds the short-lived signed app identity claims
// exchanged for installation tokens. Assertions are never persisted or
// reused beyond their validity window.
type AssertionSigner struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewAssertionSigner parses the app's PEM private key. A missing or
// unparsable key is a configuration error, surfaced immediately.
func NewAssertionSigner(appID, privateKeyPEM string) (*AssertionSigner, error) {
	if appID == "" {
		return nil, fmt.Errorf("github: app id is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("github: parse app private key: %w", err)
	}
	return &AssertionSigner{appID: appID, key: key, now: time.Now}, nil
}

// Sign produces an RS256 assertion with issuer = app id,
// iat = now - 60s, exp = now + 600s.
func (s *AssertionSigner) Sign() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("github: sign assertion: %w", err)
	}
	return signed, nil
}
