package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/adapters/cursorbinary"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/pool"
	streamcursorbinary "github.com/ccrelay/ccrelay/internal/streaming/cursorbinary"
)

const cursorChatURL = "https://api2.cursor.sh/aiserver.v1.ChatService/StreamChat"

// CursorBinaryBackend drives the cu/|cursor/ family: length-prefixed,
// optionally gzipped frames over HTTP/2 (spec §4.5.c, §6).
type CursorBinaryBackend struct {
	client          *http.Client
	pool            *pool.Pool
	reasoningEffort string
	logger          *zap.Logger
	url             string
}

func NewCursorBinaryBackend(client *http.Client, p *pool.Pool, logger *zap.Logger) *CursorBinaryBackend {
	return &CursorBinaryBackend{client: client, pool: p, logger: logger.With(zap.String("backend", "cursorbinary")), url: cursorChatURL}
}

func (b *CursorBinaryBackend) Call(ctx context.Context, account *pool.Account, req canonical.Request) (*dispatch.Result, error) {
	cred := account.Credential()
	token := cred.APIToken

	payload := cursorbinary.Build(req, b.reasoningEffort)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	frame, err := cursorbinary.EncodeFrame(cursorbinary.FlagRaw, payloadJSON)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	httpReq.Header = cursorbinary.BuildHeaders(token, cred.MachineID, now)
	httpReq.Header.Set("Content-Type", "application/connect+json")

	return doRequest(b.client, httpReq)
}

func (b *CursorBinaryBackend) Stream(body io.Reader, id, model string, emit func(canonical.Event)) error {
	return streamcursorbinary.Consume(body, id, model, emit)
}
