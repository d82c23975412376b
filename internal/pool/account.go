// Package pool implements the per-backend Account Pool: the ordered list of
// accounts, their trackers, the rotating selection cursor, and the
// single-writer JSON persistence the core relies on (§4.3, §5, §6).
package pool

import (
	"sync"
	"time"

	"github.com/ccrelay/ccrelay/internal/selection"
	"github.com/ccrelay/ccrelay/internal/trackers"
)

// CredentialKind tags which of the three backend credential shapes an
// account carries.
type CredentialKind string

const (
	CredentialOAuth     CredentialKind = "oauth"
	CredentialAPIToken  CredentialKind = "api_token"
	CredentialLongLived CredentialKind = "long_lived"
)

// Credential is the union of the three credential shapes named in the data
// model. Only the fields for Kind are meaningful; it is a plain struct
// rather than an interface because every variant is pure data with no
// backend-specific behavior attached.
type Credential struct {
	Kind CredentialKind

	// oauth
	RefreshToken      string
	AccessToken       string
	AccessTokenExpiry time.Time

	// api_token
	APIToken  string
	MachineID string
	GhostMode bool

	// long_lived
	LongLivedToken string
	DerivedToken   string
	DerivedExpiry  time.Time
}

// Account is one pool member: identity, credential, lifecycle flags, and
// the three trackers that selection scoring reads. Trackers are held by
// value, not by reference, so an Account owns its state outright.
type Account struct {
	mu sync.Mutex // per-account critical section, used only by token refresh

	id            string
	email         string
	credential    Credential
	addedAt       time.Time
	lastUsed      time.Time
	enabled       bool
	invalid       bool
	invalidReason string
	cooldownUntil time.Time

	health trackers.Health
	bucket trackers.TokenBucket
	quota  trackers.Quota

	indexHint int // rotation distance from the pool cursor; set by Pool before selection
}

// NewAccount constructs a pool member in its initial tracker state.
func NewAccount(id, email string, cred Credential, now time.Time) *Account {
	return &Account{
		id:         id,
		email:      email,
		credential: cred,
		addedAt:    now,
		enabled:    true,
		health:     trackers.NewHealth(now),
		bucket:     trackers.NewTokenBucket(now),
		quota:      trackers.NewQuota(),
	}
}

func (a *Account) ID() string      { return a.id }
func (a *Account) Email() string   { return a.email }
func (a *Account) Enabled() bool   { return a.enabled }
func (a *Account) Invalid() bool   { return a.invalid }
func (a *Account) InvalidReason() string   { return a.invalidReason }
func (a *Account) CooldownUntil() time.Time { return a.cooldownUntil }
func (a *Account) Credential() Credential   { return a.credential }

// Cooling reports whether the account is currently serving a cooldown.
func (a *Account) Cooling(now time.Time) bool {
	return !a.cooldownUntil.IsZero() && a.cooldownUntil.After(now)
}

// State classifies the account per the pool invariant in §3: exactly one
// of available/cooling/invalid/disabled holds at any time.
type State string

const (
	StateAvailable State = "available"
	StateCooling   State = "cooling"
	StateInvalid   State = "invalid"
	StateDisabled  State = "disabled"
)

func (a *Account) Status(now time.Time) State {
	switch {
	case a.invalid:
		return StateInvalid
	case !a.enabled:
		return StateDisabled
	case a.Cooling(now):
		return StateCooling
	default:
		return StateAvailable
	}
}

// --- selection.Candidate ---

func (a *Account) Active(now time.Time) bool {
	return a.enabled && !a.invalid && !a.Cooling(now)
}

func (a *Account) HealthScore(now time.Time) int { return a.health.Score(now) }

func (a *Account) BucketLevel(now time.Time) int { return a.bucket.Level(now) }

func (a *Account) QuotaFraction(model string, now time.Time) (float64, bool) {
	return a.quota.Fraction(model, now)
}

func (a *Account) LastUsed() time.Time { return a.lastUsed }

func (a *Account) IndexHint() int { return a.indexHint }

func (a *Account) CooldownRemaining(now time.Time) time.Duration {
	if !a.Cooling(now) {
		return 0
	}
	return a.cooldownUntil.Sub(now)
}

func (a *Account) TimeToNextToken(now time.Time) time.Duration {
	return a.bucket.TimeToNextToken(now)
}

var _ selection.Candidate = (*Account)(nil)
