package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// maxTimestampSkew bounds how far a delivery timestamp may drift from the
// receiver's clock before the signature is rejected as a replay.
const maxTimestampSkew = 300 * time.Second

// Sign computes the hex HMAC-SHA256 over "<timestamp>.<body>".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalBody serializes v to RFC 8785 canonical JSON. Both sides of a
// webhook exchange must sign the same bytes, so the body is canonicalized
// before signing and sending.
func CanonicalBody(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("webhooks: marshal payload: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("webhooks: canonicalize payload: %w", err)
	}
	return canon, nil
}

// VerifyResult reports whether a received signature checks out and, when it
// does not, a human-readable reason.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// VerifySignature checks a received webhook body against its signature and
// timestamp headers. The signature may carry the "sha256=" prefix used on
// the wire. Comparison is constant-time.
func VerifySignature(body []byte, signature, timestamp, secret string) VerifyResult {
	return verifyAt(body, signature, timestamp, secret, time.Now())
}

func verifyAt(body []byte, signature, timestamp, secret string, now time.Time) VerifyResult {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return VerifyResult{Reason: "Invalid timestamp"}
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(maxTimestampSkew/time.Second) {
		return VerifyResult{Reason: "Webhook timestamp too old"}
	}

	provided := strings.TrimPrefix(signature, "sha256=")
	expected := Sign(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return VerifyResult{Reason: "Signature mismatch"}
	}
	return VerifyResult{Valid: true}
}
