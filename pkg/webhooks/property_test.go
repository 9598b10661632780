//go:build property
// +build property

package webhooks

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSignatureProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	now := time.Unix(1735689600, 0)

	properties.Property("verify accepts own signature inside the window", prop.ForAll(
		func(body string, secret string, skew int64) bool {
			ts := now.Unix() - skew
			sig := Sign(secret, ts, []byte(body))
			return verifyAt([]byte(body), sig, strconv.FormatInt(ts, 10), secret, now).Valid
		},
		gen.AnyString(),
		gen.Identifier(),
		gen.Int64Range(-300, 300),
	))

	properties.Property("verify rejects timestamps outside the window", prop.ForAll(
		func(body string, secret string, extra int64) bool {
			ts := now.Unix() - 301 - extra
			sig := Sign(secret, ts, []byte(body))
			res := verifyAt([]byte(body), sig, strconv.FormatInt(ts, 10), secret, now)
			return !res.Valid && res.Reason == "Webhook timestamp too old"
		},
		gen.AnyString(),
		gen.Identifier(),
		gen.Int64Range(0, 1<<31),
	))

	properties.Property("verify rejects a different secret", prop.ForAll(
		func(body string, secret string) bool {
			ts := now.Unix()
			sig := Sign(secret, ts, []byte(body))
			res := verifyAt([]byte(body), sig, strconv.FormatInt(ts, 10), secret+"x", now)
			return !res.Valid && res.Reason == "Signature mismatch"
		},
		gen.AnyString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
