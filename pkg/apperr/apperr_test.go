package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := InsufficientCredits("balance 3, need 10")
	assert.Equal(t, CodeInsufficientCredits, CodeOf(err))

	wrapped := fmt.Errorf("create job: %w", err)
	assert.Equal(t, CodeInsufficientCredits, CodeOf(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("pq: connection reset")))
	assert.True(t, Is(wrapped, CodeInsufficientCredits))
	assert.False(t, Is(wrapped, CodeNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(CodeInternal, "ledger unavailable", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "INTERNAL_ERROR: ledger unavailable", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeAuthentication:      http.StatusUnauthorized,
		CodeAuthorization:       http.StatusForbidden,
		CodeNotFound:            http.StatusNotFound,
		CodeConflict:            http.StatusConflict,
		CodeInsufficientCredits: http.StatusPaymentRequired,
		CodeRateLimited:         http.StatusTooManyRequests,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
