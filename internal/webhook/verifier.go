// Package webhook authenticates inbound provider deliveries. Signatures
// are computed over the exact raw request body; verification never runs
// against a re-serialized payload because formatting differences change
// the byte stream the provider signed.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrBadSignature is the single rejection error. Callers must not leak
// which check failed.
var ErrBadSignature = errors.New("webhook: signature verification failed")

// slackTimestampTolerance bounds how stale a Slack request timestamp may
// be before the delivery is treated as a replay.
const slackTimestampTolerance = 5 * time.Minute

// VerifyGitHub checks a GitHub X-Hub-Signature-256 header
// ("sha256=<hex>") against the raw body.
func VerifyGitHub(body []byte, signatureHeader, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return constantTimeCheck(expected, signatureHeader)
}

// SignGitHub produces the signature header value GitHub would send for
// the given body. Exported for delivery seeding and tests.
func SignGitHub(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySlack checks a Slack X-Slack-Signature header ("v0=<hex>")
// computed over "v0:{timestamp}:{body}". Timestamps outside the
// tolerance window are rejected before any MAC work.
func VerifySlack(body []byte, timestampHeader, signatureHeader, secret string) error {
	return verifySlackAt(body, timestampHeader, signatureHeader, secret, time.Now())
}

func verifySlackAt(body []byte, timestampHeader, signatureHeader, secret string, now time.Time) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > slackTimestampTolerance || age < -slackTimestampTolerance {
		return ErrBadSignature
	}

	base := fmt.Sprintf("v0:%s:%s", timestampHeader, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return constantTimeCheck(expected, signatureHeader)
}

// SignSlack produces the signature header value Slack would send.
func SignSlack(body []byte, timestamp, secret string) string {
	base := fmt.Sprintf("v0:%s:%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// constantTimeCheck compares expected and supplied signatures. A length
// mismatch rejects before the comparison; the comparison itself is
// constant time to close the timing side channel on the MAC bytes.
func constantTimeCheck(expected, supplied string) error {
	if len(expected) != len(supplied) {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return ErrBadSignature
	}
	return nil
}
