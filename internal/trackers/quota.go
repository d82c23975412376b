package trackers

import "time"

const (
	QuotaLow         = 0.10
	QuotaCritical    = 0.05
	quotaFreshWindow = 5 * time.Minute
	// quotaUnknownFraction is the effective fraction used for scoring when
	// quota data is stale or was never observed — "unknown" scores as if
	// half-free (score 50 of 100 on the 0..1 scale used by selection).
	quotaUnknownFraction = 0.5
)

// Quota tracks, per (account, model), the last-known free-fraction the
// backend reported. Backends without telemetry only decay it heuristically
// on 429; it is never fabricated otherwise.
type Quota struct {
	byModel map[string]quotaEntry
}

type quotaEntry struct {
	fraction    float64
	lastUpdated time.Time
}

func NewQuota() Quota {
	return Quota{byModel: make(map[string]quotaEntry)}
}

// Fraction returns the effective free-fraction for model at now: the
// last-observed value if fresh, else the unknown-fraction default.
func (q *Quota) Fraction(model string, now time.Time) (fraction float64, known bool) {
	e, ok := q.byModel[model]
	if !ok || now.Sub(e.lastUpdated) > quotaFreshWindow {
		return quotaUnknownFraction, false
	}
	return e.fraction, true
}

// OK reports P_quotaOk(a,m): fraction > critical threshold, or unknown.
func (q *Quota) OK(model string, now time.Time) bool {
	fraction, known := q.Fraction(model, now)
	if !known {
		return true
	}
	return fraction > QuotaCritical
}

// Observe records a backend-reported free-fraction for model.
func (q *Quota) Observe(model string, fraction float64, now time.Time) {
	if q.byModel == nil {
		q.byModel = make(map[string]quotaEntry)
	}
	q.byModel[model] = quotaEntry{fraction: fraction, lastUpdated: now}
}

// DecayOnRateLimit heuristically lowers the known (or assumed) fraction
// after a 429 from a backend that never reports quota telemetry directly.
func (q *Quota) DecayOnRateLimit(model string, now time.Time) {
	fraction, _ := q.Fraction(model, now)
	fraction *= 0.5
	q.Observe(model, fraction, now)
}
