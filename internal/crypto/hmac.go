package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Headers carried by signed webhook requests.
const (
	HeaderSignature = "X-Predictbot-Signature"
	HeaderTimestamp = "X-Predictbot-Timestamp"
)

// WebhookAuth signs and verifies webhook bodies exchanged with the message
// bridge. The signature is hex(HMAC-SHA256(secret, timestamp + "." + body)).
type WebhookAuth struct {
	Secret    string
	Tolerance time.Duration // max clock skew accepted; zero means 5 minutes
	Now       func() time.Time
}

func (w *WebhookAuth) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Sign returns the signature headers for body at the given unix timestamp.
func (w *WebhookAuth) Sign(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: "sha256=" + hmacSHA256Hex([]byte(w.Secret), ts, body),
	}
}

// Verify checks a signature produced by Sign. It rejects stale timestamps so
// captured requests cannot be replayed later.
func (w *WebhookAuth) Verify(body []byte, timestamp, signature string) error {
	if timestamp == "" || signature == "" {
		return fmt.Errorf("crypto/hmac: missing signature headers: %w", domain.ErrUnauthorized)
	}
	unixTS, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/hmac: bad timestamp: %w", domain.ErrUnauthorized)
	}
	tolerance := w.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	skew := w.now().Sub(time.Unix(unixTS, 0))
	if skew < -tolerance || skew > tolerance {
		return fmt.Errorf("crypto/hmac: timestamp outside tolerance: %w", domain.ErrUnauthorized)
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return fmt.Errorf("crypto/hmac: malformed signature: %w", domain.ErrUnauthorized)
	}
	want, _ := hex.DecodeString(hmacSHA256Hex([]byte(w.Secret), timestamp, body))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("crypto/hmac: signature mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookAuth{secret=****}"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s****}", w.Secret[:4])
}

func hmacSHA256Hex(key []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
