package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/adapters/responses"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/pool"
	streamresponses "github.com/ccrelay/ccrelay/internal/streaming/responses"
)

const responsesURL = "https://chatgpt.com/backend-api/codex/responses"

// ResponsesBackend drives the gpt-5*/codex family: OAuth bearer, mandatory
// SSE, JSON-Schema sanitized tool declarations (spec §4.5.a, §6).
type ResponsesBackend struct {
	client *http.Client
	pool   *pool.Pool
	oauth  pool.Refresher
	logger *zap.Logger
	url    string
}

func NewResponsesBackend(client *http.Client, p *pool.Pool, oauth pool.Refresher, logger *zap.Logger) *ResponsesBackend {
	return &ResponsesBackend{client: client, pool: p, oauth: oauth, logger: logger.With(zap.String("backend", "responses")), url: responsesURL}
}

func (b *ResponsesBackend) Call(ctx context.Context, account *pool.Account, req canonical.Request) (*dispatch.Result, error) {
	token, err := b.pool.GetTokenForAccount(ctx, account.ID(), b.oauth, time.Now())
	if err != nil {
		return nil, err
	}

	wire := responses.Build(req)
	for i, t := range wire.Tools {
		wire.Tools[i].Parameters = responses.SanitizeSchema(t.Parameters)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "text/event-stream")

	return doRequest(b.client, httpReq)
}

func (b *ResponsesBackend) Stream(body io.Reader, id, model string, emit func(canonical.Event)) error {
	return streamresponses.Consume(body, id, model, emit)
}
