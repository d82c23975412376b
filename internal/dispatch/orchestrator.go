package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/apperr"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/pool"
)

var idCounter atomic.Int64

// maxResourceExhaustedWait bounds how long Dispatch will sleep waiting for
// an account to become selectable before giving up outright (spec §4.7.3).
const maxResourceExhaustedWait = 60 * time.Second

// Result is one backend HTTP call's outcome, abstracted away from any
// particular transport so the retry loop never imports net/http directly
// beyond this shape.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Backend hides everything backend-specific from the orchestrator: request
// construction, token resolution, the actual call, and driving the
// streaming state machine over a successful response body.
type Backend interface {
	Call(ctx context.Context, account *pool.Account, req canonical.Request) (*Result, error)
	Stream(body io.Reader, id, model string, emit func(canonical.Event)) error
}

// Orchestrator is the model-family router plus one account pool and one
// Backend per family (spec §4.7).
type Orchestrator struct {
	backends map[Family]Backend
	pools    map[Family]*pool.Pool
	logger   *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

func New(logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		backends: map[Family]Backend{},
		pools:    map[Family]*pool.Pool{},
		logger:   logger.With(zap.String("component", "dispatch")),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Register wires a backend implementation and its account pool in for a
// given model family.
func (o *Orchestrator) Register(family Family, backend Backend, p *pool.Pool) {
	o.backends[family] = backend
	o.pools[family] = p
}

// Pools returns the family->pool map wired in via Register, for the HTTP
// surface's introspection endpoints (spec §6 GET /account-limits).
func (o *Orchestrator) Pools() map[Family]*pool.Pool {
	return o.pools
}

// messageID mints a fresh id for a streamed/aggregated response. Ids are
// opaque to the client; a monotonic counter is enough since uniqueness,
// not randomness, is all the contract requires.
func messageID() string {
	return "msg_" + strconv.FormatInt(idCounter.Add(1), 36)
}

// Dispatch runs the full select/call/classify retry loop for one canonical
// request. For a streaming request, emit receives every canonical event as
// it's produced and the returned *canonical.Response is nil. For a
// non-streaming request, the backend is still always driven through its
// streaming adapter internally and the result is aggregated into one
// Response (spec §4.7.3).
func (o *Orchestrator) Dispatch(ctx context.Context, req canonical.Request, emit func(canonical.Event)) (*canonical.Response, error) {
	family, ok := RouteFamily(req.Model)
	if !ok {
		return nil, apperr.New(apperr.ContractViolation, "unrecognized model: "+req.Model)
	}
	backend := o.backends[family]
	p := o.pools[family]
	if backend == nil || p == nil {
		return nil, apperr.New(apperr.ConfigMissing, "no backend configured for family "+string(family))
	}

	maxAttempts := 3
	if n := p.Size() + 1; n > maxAttempts {
		maxAttempts = n
	}

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		now := o.now()
		outcome := p.Select(req.Model, now)
		if !outcome.IsOK() {
			wait := outcome.Wait()
			if wait <= 0 {
				// nothing to wait for: no account is cooling or refilling
				if lastErr != nil {
					return nil, apperr.Wrap(apperr.Upstream, "failed after retries", lastErr)
				}
				return nil, apperr.New(apperr.ConfigMissing, "no selectable account for family "+string(family))
			}
			if wait > maxResourceExhaustedWait {
				resetAt := now.Add(wait).Format(time.RFC3339)
				return nil, apperr.New(apperr.Unavailable,
					fmt.Sprintf("RESOURCE_EXHAUSTED: no account available until %s", resetAt))
			}
			o.sleep(wait + 500*time.Millisecond)
			continue // does not consume an attempt
		}

		account := outcome.Candidate().(*pool.Account)
		attempts++

		resp, err := o.attempt(ctx, backend, p, account, req, now, attempts, emit)
		if err == nil {
			return resp, nil
		}
		if apperr.Is(err, apperr.ContractViolation) {
			return nil, err
		}
		lastErr = err
	}

	return nil, apperr.Wrap(apperr.Upstream, "failed after retries", lastErr)
}

// attempt performs one backend call against the already-selected account
// and classifies the result. A nil error means resp is the final answer
// (already emitted, for streaming callers); a non-nil, non-ContractViolation
// error means the caller should retry with a fresh Select.
func (o *Orchestrator) attempt(
	ctx context.Context,
	backend Backend,
	p *pool.Pool,
	account *pool.Account,
	req canonical.Request,
	now time.Time,
	attemptNum int,
	emit func(canonical.Event),
) (*canonical.Response, error) {
	result, err := backend.Call(ctx, account, req)
	if err != nil {
		p.RecordFailure(account.ID(), now)
		return nil, err
	}
	defer result.Body.Close()

	switch {
	case result.StatusCode == 401:
		p.MarkInvalid(account.ID(), fmt.Sprintf("http %d", result.StatusCode))
		return nil, apperr.New(apperr.Unauthorized, "account credential rejected")

	case result.StatusCode == 403:
		body, _ := io.ReadAll(result.Body)
		if banSignalPattern.Match(body) {
			p.MarkInvalid(account.ID(), "ban signal: "+truncate(string(body), 200))
			return nil, apperr.New(apperr.Unauthorized, "account banned")
		}
		p.MarkRateLimited(account.ID(), forbiddenPause, now)
		return nil, apperr.New(apperr.RateLimited, "account temporarily forbidden")

	case result.StatusCode == 429:
		wait := parseRetryHint(result.Header, result.Body)
		if wait > 0 && wait < shortResetThreshold {
			o.sleep(wait)
			return nil, apperr.New(apperr.RateLimited, "short rate limit, retrying")
		}
		p.MarkRateLimited(account.ID(), tieredBackoff(attemptNum, wait), now)
		return nil, apperr.New(apperr.RateLimited, "rate limited")

	case result.StatusCode >= 200 && result.StatusCode < 300:
		resp, err := o.deliver(backend, result, req, emit)
		if err != nil {
			o.classifyStreamError(p, account, err, now)
			return nil, err
		}
		p.RecordSuccess(account.ID(), now)
		return resp, nil

	default:
		body, _ := io.ReadAll(result.Body)
		p.RecordFailure(account.ID(), now)
		return nil, apperr.NewUpstream(result.StatusCode, string(body))
	}
}

// classifyStreamError reacts to an error surfaced mid-stream (e.g. the
// binary backend's embedded error frames, spec §9 decision 1) the same way
// a non-2xx HTTP status would have been classified.
func (o *Orchestrator) classifyStreamError(p *pool.Pool, account *pool.Account, err error, now time.Time) {
	switch {
	case apperr.IsUnauthorized(err):
		p.MarkInvalid(account.ID(), err.Error())
	case apperr.IsRateLimited(err):
		p.MarkRateLimited(account.ID(), 0, now)
	default:
		p.RecordFailure(account.ID(), now)
	}
}

// deliver streams the successful response through the backend's adapter:
// straight through to emit for a streaming caller, or aggregated into a
// single Response otherwise. A mid-stream error (e.g. the binary backend's
// embedded error frames) still reclassifies the account before surfacing.
func (o *Orchestrator) deliver(backend Backend, result *Result, req canonical.Request, emit func(canonical.Event)) (*canonical.Response, error) {
	id := messageID()

	if req.Stream {
		if err := backend.Stream(result.Body, id, req.Model, emit); err != nil {
			return nil, err
		}
		return nil, nil
	}

	agg := newAggregator()
	err := backend.Stream(result.Body, id, req.Model, agg.Emit)
	if err != nil {
		return nil, err
	}
	return agg.Result(), nil
}
