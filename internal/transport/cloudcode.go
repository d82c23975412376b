package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/adapters/cloudcode"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/pool"
	streamcloudcode "github.com/ccrelay/ccrelay/internal/streaming/cloudcode"
)

const cloudCodeURL = "https://daily-cloudcode-pa.sandbox.googleapis.com/v1internal:streamGenerateContent"

// CloudCodeBackend drives the claude-*/gemini-* family: OAuth bearer over
// plain SSE, per spec §6.
type CloudCodeBackend struct {
	client *http.Client
	pool   *pool.Pool
	oauth  pool.Refresher
	logger *zap.Logger
	url    string
}

func NewCloudCodeBackend(client *http.Client, p *pool.Pool, oauth pool.Refresher, logger *zap.Logger) *CloudCodeBackend {
	return &CloudCodeBackend{client: client, pool: p, oauth: oauth, logger: logger.With(zap.String("backend", "cloudcode")), url: cloudCodeURL}
}

func (b *CloudCodeBackend) Call(ctx context.Context, account *pool.Account, req canonical.Request) (*dispatch.Result, error) {
	token, err := b.pool.GetTokenForAccount(ctx, account.ID(), b.oauth, time.Now())
	if err != nil {
		return nil, err
	}

	wire := cloudcode.Build(req)
	wire.Stream = true

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

func (b *CloudCodeBackend) Stream(body io.Reader, id, model string, emit func(canonical.Event)) error {
	return streamcloudcode.Consume(body, id, model, emit)
}
