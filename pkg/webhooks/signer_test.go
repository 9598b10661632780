package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "8f0a5b2c93d14e6f8f0a5b2c93d14e6f8f0a5b2c93d14e6f8f0a5b2c93d14e6f"

func TestSignMatchesIndependentHMAC(t *testing.T) {
	body := []byte(`{"event":"job.completed","jobId":"abc"}`)
	ts := int64(1735689600)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, body)))
	expected := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, Sign(testSecret, ts, body))
	assert.Len(t, Sign(testSecret, ts, body), 64)
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event":"job.completed"}`)
	ts := time.Now().Unix()
	sig := Sign(testSecret, ts, body)

	res := VerifySignature(body, sig, strconv.FormatInt(ts, 10), testSecret)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)

	res = VerifySignature(body, "sha256="+sig, strconv.FormatInt(ts, 10), testSecret)
	assert.True(t, res.Valid, "wire-format prefix should verify")
}

func TestVerifyRejectsNonNumericTimestamp(t *testing.T) {
	res := VerifySignature([]byte("{}"), "deadbeef", "not-a-number", testSecret)
	assert.False(t, res.Valid)
	assert.Equal(t, "Invalid timestamp", res.Reason)
}

func TestVerifyTimestampWindow(t *testing.T) {
	body := []byte(`{"event":"job.completed"}`)
	now := time.Unix(1735689600, 0)

	cases := []struct {
		name  string
		ts    int64
		valid bool
	}{
		{"current", now.Unix(), true},
		{"at window edge", now.Unix() - 300, true},
		{"just past window", now.Unix() - 301, false},
		{"far past", now.Unix() - 3600, false},
		{"future past window", now.Unix() + 301, false},
		{"future within window", now.Unix() + 120, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := Sign(testSecret, tc.ts, body)
			res := verifyAt(body, sig, strconv.FormatInt(tc.ts, 10), testSecret, now)
			assert.Equal(t, tc.valid, res.Valid)
			if !tc.valid {
				assert.Equal(t, "Webhook timestamp too old", res.Reason)
			}
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"event":"job.completed","creditsConsumed":10}`)
	ts := time.Now().Unix()
	sig := Sign(testSecret, ts, body)

	tampered := VerifySignature([]byte(`{"event":"job.completed","creditsConsumed":0}`),
		sig, strconv.FormatInt(ts, 10), testSecret)
	assert.False(t, tampered.Valid)
	assert.Equal(t, "Signature mismatch", tampered.Reason)

	wrongSecret := VerifySignature(body, sig, strconv.FormatInt(ts, 10), "other-secret")
	assert.False(t, wrongSecret.Valid)
	assert.Equal(t, "Signature mismatch", wrongSecret.Reason)

	wrongTS := VerifySignature(body, sig, strconv.FormatInt(ts-10, 10), testSecret)
	assert.False(t, wrongTS.Valid)
	assert.Equal(t, "Signature mismatch", wrongTS.Reason)
}

func TestCanonicalBodySortsKeys(t *testing.T) {
	body, err := CanonicalBody(map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":{"a":1,"b":2},"zeta":1}`, string(body))
}

func TestCanonicalBodyStable(t *testing.T) {
	ev := Event{Event: "job.completed", Status: "completed",
		Summary: Summary{TotalRecords: 3, CompletedRecords: 3}}

	a, err := CanonicalBody(ev)
	require.NoError(t, err)
	b, err := CanonicalBody(ev)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
