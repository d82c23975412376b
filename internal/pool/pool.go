package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/apperr"
	"github.com/ccrelay/ccrelay/internal/selection"
	"github.com/ccrelay/ccrelay/pkg/safego"
)

const (
	defaultCooldown   = 60 * time.Second
	tokenRefreshWindow = 5 * time.Minute
)

// Refresher performs an OAuth refresh-grant call. internal/oauthclient
// implements it; Pool only depends on the interface to avoid a cycle.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, newRefreshToken string, err error)
}

// Pool is the per-backend account pool: every mutation listed in §4.3 runs
// under mu, matching the single-mutex discipline of §5.
type Pool struct {
	mu          sync.Mutex
	accounts    []*Account
	activeIndex int
	path        string
	logger      *zap.Logger

	saveCh chan struct{}
}

func New(path string, logger *zap.Logger) *Pool {
	p := &Pool{
		path:   path,
		logger: logger.With(zap.String("component", "pool"), zap.String("path", path)),
		saveCh: make(chan struct{}, 1),
	}
	safego.Go(p.logger, "pool-writer", p.writerLoop)
	return p
}

// Initialize loads persisted state, or starts empty if the file is absent
// or corrupt — per §4.3, a corrupt file only warns, it never fails startup.
func (p *Pool) Initialize() error {
	accounts, activeIndex, err := loadFile(p.path)
	if err != nil {
		p.logger.Warn("starting with an empty pool", zap.Error(err))
		return nil
	}
	p.mu.Lock()
	p.accounts = accounts
	p.activeIndex = activeIndex
	p.mu.Unlock()
	return nil
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

func (p *Pool) Accounts() []*Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}

func (p *Pool) find(id string) *Account {
	for _, a := range p.accounts {
		if a.id == id {
			return a
		}
	}
	return nil
}

// Select applies the selection strategy and, on a hit, atomically consumes
// a token and advances the rotation cursor past the winner — all within the
// same critical section, so selection and consumption can never interleave
// with a concurrent Select (§8 property 7).
func (p *Pool) Select(model string, now time.Time) selection.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.accounts)
	if n == 0 {
		return selection.Wait(0)
	}

	candidates := make([]selection.Candidate, n)
	for i, a := range p.accounts {
		a.indexHint = ((i-p.activeIndex)%n + n) % n
		candidates[i] = a
	}

	outcome := selection.Select(candidates, model, now)
	if !outcome.IsOK() {
		return outcome
	}

	winner := outcome.Candidate().(*Account)
	if !winner.bucket.Consume(now) {
		return selection.Wait(winner.bucket.TimeToNextToken(now))
	}
	winner.lastUsed = now
	for i, a := range p.accounts {
		if a == winner {
			p.activeIndex = (i + 1) % n
			break
		}
	}
	p.enqueueSave()
	return outcome
}

// Refund returns a consumed token to id — used when a cancelled request
// produced no backend output (§5 "Cancellation / timeouts").
func (p *Pool) Refund(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.bucket.Refund()
	}
}

func (p *Pool) MarkRateLimited(id string, wait time.Duration, now time.Time) {
	if wait <= 0 {
		wait = defaultCooldown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.cooldownUntil = now.Add(wait)
		a.health.RecordRateLimit(now)
		a.quota.DecayOnRateLimit("*", now)
		p.enqueueSave()
	}
}

// ClearCooldown zeroes an account's cooldown without touching health or
// quota — the operator-facing reset, distinct from MarkRateLimited which
// always imposes a fresh penalty.
func (p *Pool) ClearCooldown(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.find(id)
	if a == nil {
		return fmt.Errorf("pool: unknown account %q", id)
	}
	a.cooldownUntil = time.Time{}
	p.enqueueSave()
	return nil
}

// MarkInvalid latches invalid = true; only ClearInvalid (an operator
// action) reverses it.
func (p *Pool) MarkInvalid(id, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.invalid = true
		a.invalidReason = reason
		p.enqueueSave()
	}
}

func (p *Pool) ClearInvalid(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.find(id)
	if a == nil {
		return fmt.Errorf("pool: unknown account %q", id)
	}
	a.invalid = false
	a.invalidReason = ""
	p.enqueueSave()
	return nil
}

func (p *Pool) SetEnabled(id string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.find(id)
	if a == nil {
		return fmt.Errorf("pool: unknown account %q", id)
	}
	a.enabled = enabled
	p.enqueueSave()
	return nil
}

func (p *Pool) RecordSuccess(id string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.health.RecordSuccess(now)
	}
}

func (p *Pool) RecordFailure(id string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.health.RecordFailure(now)
	}
}

func (p *Pool) ObserveQuota(id, model string, fraction float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(id); a != nil {
		a.quota.Observe(model, fraction, now)
	}
}

func (p *Pool) AddAccount(a *Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = append(p.accounts, a)
	p.enqueueSave()
}

func (p *Pool) RemoveAccount(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.accounts {
		if a.id == id {
			p.accounts = append(p.accounts[:i], p.accounts[i+1:]...)
			if p.activeIndex > i {
				p.activeIndex--
			}
			p.enqueueSave()
			return nil
		}
	}
	return fmt.Errorf("pool: unknown account %q", id)
}

// GetTokenForAccount returns a usable access token, transparently
// refreshing under a per-account lock if the current one expires within
// tokenRefreshWindow. Concurrent callers on the same account share a single
// refresh; callers on different accounts never serialize against each
// other (§5, S5).
func (p *Pool) GetTokenForAccount(ctx context.Context, id string, refresher Refresher, now time.Time) (string, error) {
	p.mu.Lock()
	a := p.find(id)
	p.mu.Unlock()
	if a == nil {
		return "", apperr.New(apperr.ConfigMissing, fmt.Sprintf("unknown account %q", id))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.credential.Kind != CredentialOAuth {
		return a.credential.AccessToken, nil
	}
	if a.credential.AccessTokenExpiry.Sub(now) >= tokenRefreshWindow {
		return a.credential.AccessToken, nil
	}

	access, expiresAt, newRefresh, err := refresher.Refresh(ctx, a.credential.RefreshToken)
	if err != nil {
		p.MarkInvalid(id, "oauth refresh failed: "+err.Error())
		return "", apperr.Wrap(apperr.Unauthorized, "token refresh failed", err)
	}

	a.credential.AccessToken = access
	a.credential.AccessTokenExpiry = expiresAt
	if newRefresh != "" {
		a.credential.RefreshToken = newRefresh
	}
	p.enqueueSave()
	return access, nil
}

// Minter mints a short-lived bearer from a long-lived token (the
// Chat-Completions backend's Copilot-style token exchange, §6).
type Minter interface {
	Mint(ctx context.Context, longLivedToken string) (token string, expiresAt time.Time, err error)
}

// GetDerivedToken is GetTokenForAccount's counterpart for CredentialLongLived
// accounts: it mints and caches a short-lived token from the long-lived one,
// re-minting once the cached token is within tokenRefreshWindow of expiry.
// For CredentialAPIToken accounts it returns the static token unchanged.
func (p *Pool) GetDerivedToken(ctx context.Context, id string, minter Minter, now time.Time) (string, error) {
	p.mu.Lock()
	a := p.find(id)
	p.mu.Unlock()
	if a == nil {
		return "", apperr.New(apperr.ConfigMissing, fmt.Sprintf("unknown account %q", id))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.credential.Kind == CredentialAPIToken {
		return a.credential.APIToken, nil
	}
	if a.credential.DerivedExpiry.Sub(now) >= tokenRefreshWindow {
		return a.credential.DerivedToken, nil
	}

	token, expiresAt, err := minter.Mint(ctx, a.credential.LongLivedToken)
	if err != nil {
		return "", apperr.Wrap(apperr.Unauthorized, "token mint failed", err)
	}
	a.credential.DerivedToken = token
	a.credential.DerivedExpiry = expiresAt
	p.enqueueSave()
	return token, nil
}

func (p *Pool) enqueueSave() {
	select {
	case p.saveCh <- struct{}{}:
	default:
	}
}

// SaveToDisk enqueues an immediate persistence pass; it returns before the
// write completes, matching the "mutators enqueue and return" discipline.
func (p *Pool) SaveToDisk() { p.enqueueSave() }

func (p *Pool) writerLoop() {
	for range p.saveCh {
		snapshot, activeIndex := p.snapshot()
		if err := writeFile(p.path, snapshot, activeIndex); err != nil {
			p.logger.Error("persist pool failed", zap.Error(err))
		}
	}
}

func (p *Pool) snapshot() ([]accountRecord, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]accountRecord, len(p.accounts))
	for i, a := range p.accounts {
		out[i] = toRecord(a)
	}
	return out, p.activeIndex
}
