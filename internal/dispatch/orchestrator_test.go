package dispatch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/pool"
)

func testPool(t *testing.T, n int) *pool.Pool {
	t.Helper()
	p := pool.New(t.TempDir()+"/accounts.json", zap.NewNop())
	now := time.Now()
	for i := 0; i < n; i++ {
		cred := pool.Credential{Kind: pool.CredentialAPIToken, APIToken: "tok"}
		p.AddAccount(pool.NewAccount(strings.Repeat("a", i+1), "", cred, now))
	}
	return p
}

// scriptedBackend returns a canned status/body sequence per call, then
// drives a trivial single-text-delta stream on 2xx.
type scriptedBackend struct {
	calls    int
	statuses []int
	headers  []http.Header
	bodies   []string
}

func (b *scriptedBackend) Call(ctx context.Context, account *pool.Account, req canonical.Request) (*Result, error) {
	i := b.calls
	b.calls++
	status := 200
	if i < len(b.statuses) {
		status = b.statuses[i]
	}
	header := http.Header{}
	if i < len(b.headers) && b.headers[i] != nil {
		header = b.headers[i]
	}
	body := "ok"
	if i < len(b.bodies) {
		body = b.bodies[i]
	}
	return &Result{StatusCode: status, Header: header, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (b *scriptedBackend) Stream(body io.Reader, id, model string, emit func(canonical.Event)) error {
	emit(canonical.NewMessageStart(id, model))
	emit(canonical.NewContentBlockStart(0, canonical.ContentBlock{Type: canonical.BlockText}))
	emit(canonical.NewTextDelta(0, "hi"))
	emit(canonical.NewContentBlockStop(0))
	emit(canonical.NewMessageDelta(canonical.StopEndTurn, canonical.Usage{}))
	emit(canonical.NewMessageStop())
	return nil
}

func newOrchestrator(backend Backend, p *pool.Pool) *Orchestrator {
	o := New(zap.NewNop())
	o.sleep = func(time.Duration) {}
	o.Register(FamilyResponses, backend, p)
	return o
}

func TestDispatch_SuccessAggregatesResponse(t *testing.T) {
	p := testPool(t, 1)
	backend := &scriptedBackend{}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "hi", resp.Content[0].Text)
	assert.Equal(t, 1, backend.calls)
}

func TestDispatch_StreamingEmitsEventsAndReturnsNilResponse(t *testing.T) {
	p := testPool(t, 1)
	backend := &scriptedBackend{}
	o := newOrchestrator(backend, p)

	var events []canonical.Event
	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex", Stream: true}, func(e canonical.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.NotEmpty(t, events)
}

func TestDispatch_UnknownModelIsContractViolation(t *testing.T) {
	p := testPool(t, 1)
	o := newOrchestrator(&scriptedBackend{}, p)
	_, err := o.Dispatch(context.Background(), canonical.Request{Model: "nonsense"}, func(canonical.Event) {})
	require.Error(t, err)
}

func TestDispatch_401MarksInvalidAndFailsOverToNextAccount(t *testing.T) {
	p := testPool(t, 2)
	backend := &scriptedBackend{statuses: []int{401, 200}}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 2, backend.calls)

	accounts := p.Accounts()
	invalidCount := 0
	for _, a := range accounts {
		if a.Invalid() {
			invalidCount++
		}
	}
	assert.Equal(t, 1, invalidCount)
}

func TestDispatch_429WithShortResetRetriesWithoutCooldown(t *testing.T) {
	p := testPool(t, 1)
	backend := &scriptedBackend{
		statuses: []int{429, 200},
		bodies:   []string{`{"resets_in_seconds":0.2}`, "ok"},
	}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)

	now := time.Now()
	for _, a := range p.Accounts() {
		assert.False(t, a.Cooling(now))
	}
}

func TestDispatch_403BanSignalMarksInvalidPermanently(t *testing.T) {
	p := testPool(t, 2)
	backend := &scriptedBackend{
		statuses: []int{403, 200},
		bodies:   []string{`{"error":"organization has been disabled"}`, "ok"},
	}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)

	invalidCount := 0
	for _, a := range p.Accounts() {
		if a.Invalid() {
			invalidCount++
		}
	}
	assert.Equal(t, 1, invalidCount)
}

func TestDispatch_403WithoutBanSignalIsTemporaryCooldown(t *testing.T) {
	p := testPool(t, 2)
	backend := &scriptedBackend{
		statuses: []int{403, 200},
		bodies:   []string{`{"error":"forbidden"}`, "ok"},
	}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)

	now := time.Now()
	var invalidCount, coolingCount int
	for _, a := range p.Accounts() {
		if a.Invalid() {
			invalidCount++
		}
		if a.Cooling(now) {
			coolingCount++
		}
	}
	assert.Equal(t, 0, invalidCount)
	assert.Equal(t, 1, coolingCount)
}

func TestDispatch_429MarksRateLimitedAndRetries(t *testing.T) {
	p := testPool(t, 2)
	header := http.Header{}
	header.Set("Retry-After", "1")
	backend := &scriptedBackend{statuses: []int{429, 200}, headers: []http.Header{header, nil}}
	o := newOrchestrator(backend, p)

	resp, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.NoError(t, err)
	require.NotNil(t, resp)

	now := time.Now()
	var cooling int
	for _, a := range p.Accounts() {
		if a.Cooling(now) {
			cooling++
		}
	}
	assert.Equal(t, 1, cooling)
}

func TestDispatch_ExhaustsRetriesAndSurfacesUpstreamError(t *testing.T) {
	p := testPool(t, 1)
	backend := &scriptedBackend{statuses: []int{500, 500, 500}}
	o := newOrchestrator(backend, p)

	_, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.Error(t, err)
	assert.GreaterOrEqual(t, backend.calls, 3)
}

func TestDispatch_EmptyPoolReturnsUnavailableWithoutHanging(t *testing.T) {
	p := testPool(t, 0)
	backend := &scriptedBackend{}
	o := newOrchestrator(backend, p)

	_, err := o.Dispatch(context.Background(), canonical.Request{Model: "gpt-5.1-codex"}, func(canonical.Event) {})
	require.Error(t, err)
	assert.Equal(t, 0, backend.calls)
}
