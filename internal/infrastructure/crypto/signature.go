package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
)

// DefaultTimestampTolerance bounds the replay window for inbound webhooks
const DefaultTimestampTolerance = 5 * time.Minute

// SignatureVerifier validates webhook authenticity: an HMAC-SHA256 signature
// over the raw request body and a timestamp freshness check. Both checks are
// independent; a valid signature with a stale timestamp is still rejected.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// Option configures a SignatureVerifier
type Option func(*SignatureVerifier)

// WithTolerance overrides the timestamp tolerance window
func WithTolerance(d time.Duration) Option {
	return func(v *SignatureVerifier) {
		v.tolerance = d
	}
}

// WithClock injects a clock, used by tests for deterministic freshness checks
func WithClock(now func() time.Time) Option {
	return func(v *SignatureVerifier) {
		v.now = now
	}
}

// NewSignatureVerifier creates a verifier for the given shared secret
func NewSignatureVerifier(secret []byte, opts ...Option) *SignatureVerifier {
	v := &SignatureVerifier{
		secret:    secret,
		tolerance: DefaultTimestampTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the hex-encoded HMAC-SHA256 signature of body and the
// freshness of the Unix-seconds timestamp header. It has no side effects.
func (v *SignatureVerifier) Verify(body []byte, signatureHeader, timestampHeader string) error {
	if err := v.verifySignature(body, signatureHeader); err != nil {
		return err
	}
	return v.verifyTimestamp(timestampHeader)
}

func (v *SignatureVerifier) verifySignature(body []byte, signatureHeader string) error {
	signature := strings.TrimSpace(signatureHeader)
	if signature == "" {
		return errs.ErrInvalidSignature
	}

	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return errs.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if !hmac.Equal(decoded, expected) {
		return errs.ErrInvalidSignature
	}
	return nil
}

func (v *SignatureVerifier) verifyTimestamp(timestampHeader string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestampHeader), 10, 64)
	if err != nil {
		return errs.ErrStaleTimestamp
	}

	drift := v.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return errs.ErrStaleTimestamp
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 signature for body. Exposed for
// outbound webhook delivery and test fixtures.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Tolerance returns the configured replay tolerance window
func (v *SignatureVerifier) Tolerance() time.Duration {
	return v.tolerance
}
