package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopilotMinter_MintParsesTokenAndExpiry(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"short-lived","expires_at":1999999999}`))
	}))
	defer srv.Close()

	minter := &CopilotMinter{client: srv.Client(), url: srv.URL}
	token, expiry, err := minter.Mint(context.Background(), "long-lived-tok")
	require.NoError(t, err)
	assert.Equal(t, "short-lived", token)
	assert.False(t, expiry.IsZero())
	assert.Equal(t, "token long-lived-tok", gotAuth)
}

func TestCopilotMinter_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	minter := &CopilotMinter{client: srv.Client(), url: srv.URL}
	_, _, err := minter.Mint(context.Background(), "bad-token")
	require.Error(t, err)
}
