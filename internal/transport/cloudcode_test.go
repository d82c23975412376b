package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/pool"
)

func TestCloudCodeBackend_CallSendsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := pool.New(t.TempDir()+"/a.json", zap.NewNop())
	now := time.Now()
	account := pool.NewAccount("a1", "", pool.Credential{
		Kind: pool.CredentialOAuth, AccessToken: "tok", AccessTokenExpiry: now.Add(time.Hour),
	}, now)
	p.AddAccount(account)

	backend := &CloudCodeBackend{client: NewClient(), pool: p, oauth: staticRefresher{}, logger: zap.NewNop(), url: srv.URL}
	result, err := backend.Call(context.Background(), account, canonical.Request{Model: "claude-sonnet-4"})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "Bearer tok", gotAuth)
}
