package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(Transport, "connect failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_HTTPStatus_Defaults(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{ConfigMissing, http.StatusServiceUnavailable},
		{Unauthorized, http.StatusUnauthorized},
		{RateLimited, http.StatusTooManyRequests},
		{ContractViolation, http.StatusBadRequest},
	}
	for _, tc := range cases {
		got := New(tc.code, "x").HTTPStatus()
		assert.Equal(t, tc.want, got, tc.code)
	}
}

func TestAppError_HTTPStatus_UpstreamVerbatim(t *testing.T) {
	err := NewUpstream(418, "teapot")
	assert.Equal(t, 418, err.HTTPStatus())
}

func TestIsPredicates(t *testing.T) {
	assert.True(t, IsRateLimited(New(RateLimited, "429")))
	assert.False(t, IsRateLimited(New(Unauthorized, "401")))
	assert.True(t, IsUnauthorized(New(Unauthorized, "401")))
}
