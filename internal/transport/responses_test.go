package transport

import (
	"context"
	"encoding/json"
	"io"
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

type staticRefresher struct{}

func (staticRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Time, string, error) {
	return "refreshed", time.Now().Add(time.Hour), "", nil
}

func TestResponsesBackend_CallSendsBearerAndSanitizedSchema(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := pool.New(t.TempDir()+"/a.json", zap.NewNop())
	now := time.Now()
	account := pool.NewAccount("a1", "", pool.Credential{
		Kind: pool.CredentialOAuth, AccessToken: "tok", AccessTokenExpiry: now.Add(time.Hour),
	}, now)
	p.AddAccount(account)

	backend := &ResponsesBackend{client: NewClient(), pool: p, oauth: staticRefresher{}, logger: zap.NewNop(), url: srv.URL}
	req := canonical.Request{Model: "gpt-5.1-codex", Tools: []canonical.ToolDecl{
		{Name: "Probe", InputSchema: json.RawMessage(`{"type":"string"}`)},
	}}
	result, err := backend.Call(context.Background(), account, req)
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	// a non-object top-level schema reaches the wire wrapped as an object
	var wire struct {
		Tools []struct {
			Parameters map[string]any `json:"parameters"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &wire))
	require.Len(t, wire.Tools, 1)
	assert.Equal(t, "object", wire.Tools[0].Parameters["type"])
	assert.Contains(t, wire.Tools[0].Parameters["properties"], "input")
}

func TestResponsesBackend_StreamDelegatesToStreamingConsumer(t *testing.T) {
	backend := &ResponsesBackend{}
	body := "event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"hi\"}\n\nevent: response.completed\ndata: {\"type\":\"response.completed\"}\n\n"

	var got []canonical.Event
	err := backend.Stream(stringReader(body), "msg_1", "gpt-5.1-codex", func(e canonical.Event) { got = append(got, e) })
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func stringReader(s string) io.Reader { return &onceReader{s: s} }

type onceReader struct {
	s   string
	pos int
}

func (r *onceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.pos:])
	r.pos += n
	return n, nil
}
