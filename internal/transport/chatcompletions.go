package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/adapters/chatcompletions"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/pool"
	streamchatcompletions "github.com/ccrelay/ccrelay/internal/streaming/chatcompletions"
)

const copilotCompletionsURL = "https://api.githubcopilot.com/chat/completions"

// ChatCompletionsBackend drives the gh/|github/ family: a short-lived
// bearer minted from a long-lived token, OpenAI-Chat-Completions wire shape
// (spec §4.5.b, §6).
type ChatCompletionsBackend struct {
	client *http.Client
	pool   *pool.Pool
	minter pool.Minter
	logger *zap.Logger
	url    string
}

func NewChatCompletionsBackend(client *http.Client, p *pool.Pool, minter pool.Minter, logger *zap.Logger) *ChatCompletionsBackend {
	return &ChatCompletionsBackend{client: client, pool: p, minter: minter, logger: logger.With(zap.String("backend", "chatcompletions")), url: copilotCompletionsURL}
}

func (b *ChatCompletionsBackend) Call(ctx context.Context, account *pool.Account, req canonical.Request) (*dispatch.Result, error) {
	token, err := b.pool.GetDerivedToken(ctx, account.ID(), b.minter, time.Now())
	if err != nil {
		return nil, err
	}

	wire := chatcompletions.Build(req)

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
	httpReq.Header.Set("Copilot-Integration-Id", "vscode-chat")

	return doRequest(b.client, httpReq)
}

func (b *ChatCompletionsBackend) Stream(body io.Reader, id, model string, emit func(canonical.Event)) error {
	return streamchatcompletions.Consume(body, id, model, emit)
}
