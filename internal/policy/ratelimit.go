package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wardenproxy/warden/internal/models"
)

const rateLimitWindow = 60 * time.Second

// CounterStore is the injected backing store for fixed-window counters.
// Incr must be atomic across concurrent callers of the same key and must
// arm the window expiry on the 0→1 transition only.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RecordCounter is the log-counting fallback strategy: counting call
// records inside the trailing window. Functionally equivalent to a counter
// store but slower; used when no store is configured.
type RecordCounter interface {
	CountSince(endpointID uint, since time.Time) (int64, error)
}

// RoleLimits maps role → endpoint path → per-minute limit. The "default"
// key at either level is the fallback.
type RoleLimits map[string]map[string]int

// DefaultRoleLimits mirrors the stock limit table: anonymous callers get a
// conservative budget, known roles progressively more.
func DefaultRoleLimits() RoleLimits {
	return RoleLimits{
		"default": {"default": 100},
		"user":    {"default": 200, "/api/sensitive": 50},
		"admin":   {"default": 1000, "/api/sensitive": 200},
	}
}

// SensitivityTable maps a path prefix to its sensitivity score. The score
// divides the resolved limit, so more sensitive resources admit less under
// the same nominal budget. Unlisted paths score 1.
type SensitivityTable map[string]int

// DefaultSensitivity is the stock resource classification.
func DefaultSensitivity() SensitivityTable {
	return SensitivityTable{
		"/api/public":    1,
		"/api/user":      2,
		"/api/sensitive": 3,
	}
}

// ScoreFor returns the sensitivity for a path by longest matching prefix.
func (t SensitivityTable) ScoreFor(path string) int {
	best, bestLen := 1, -1
	for prefix, score := range t {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best, bestLen = score, len(prefix)
		}
	}
	return best
}

// RateLimiter admits or rejects requests against a fixed 60-second window
// keyed by (identity, endpoint path).
type RateLimiter struct {
	store       CounterStore
	records     RecordCounter
	roles       RoleLimits
	sensitivity SensitivityTable
}

// NewRateLimiter builds a limiter on the preferred counter-store strategy.
func NewRateLimiter(store CounterStore, roles RoleLimits, sensitivity SensitivityTable) *RateLimiter {
	if roles == nil {
		roles = DefaultRoleLimits()
	}
	if sensitivity == nil {
		sensitivity = DefaultSensitivity()
	}
	return &RateLimiter{store: store, roles: roles, sensitivity: sensitivity}
}

// NewLogCountingRateLimiter builds a limiter on the call-log counting
// strategy for deployments without a counter store.
func NewLogCountingRateLimiter(records RecordCounter, roles RoleLimits, sensitivity SensitivityTable) *RateLimiter {
	rl := NewRateLimiter(nil, roles, sensitivity)
	rl.records = records
	return rl
}

func (r *RateLimiter) Kind() Kind { return KindRateLimit }

func (r *RateLimiter) Evaluate(ctx context.Context, req *Request, ep *models.Endpoint) (Decision, error) {
	limit, configured := r.resolveLimit(req, ep)
	if !configured {
		return Allowed(), nil
	}

	effective := limit / r.sensitivity.ScoreFor(ep.Path)

	count, err := r.count(ctx, req, ep)
	if err != nil {
		// Fail closed only when the endpoint explicitly declares a limit;
		// table-derived limits degrade to a no-op.
		if ep.RateLimitPerMinute != nil {
			return internalError(KindRateLimit), nil
		}
		return Allowed(), nil
	}

	remaining := int64(effective) - count
	if remaining < 0 {
		remaining = 0
	}
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(effective),
		"X-RateLimit-Remaining": strconv.FormatInt(remaining, 10),
	}

	if count > int64(effective) {
		dec := Deny(KindRateLimit, 429, map[string]interface{}{
			"error":      "Rate limit exceeded",
			"retryAfter": int(rateLimitWindow.Seconds()),
		})
		dec.Headers = headers
		return dec, nil
	}

	return Decision{Allow: true, Headers: headers}, nil
}

// resolveLimit applies the precedence: explicit per-endpoint limit, then
// the role table, then nothing (no-op).
func (r *RateLimiter) resolveLimit(req *Request, ep *models.Endpoint) (int, bool) {
	if ep.RateLimitPerMinute != nil {
		return *ep.RateLimitPerMinute, true
	}

	table, ok := r.roles[req.RoleKey()]
	if !ok {
		table, ok = r.roles["default"]
		if !ok {
			return 0, false
		}
	}
	if limit, ok := table[ep.Path]; ok {
		return limit, true
	}
	if limit, ok := table["default"]; ok {
		return limit, true
	}
	return 0, false
}

// count returns the caller's position in the current window, including this
// request.
func (r *RateLimiter) count(ctx context.Context, req *Request, ep *models.Endpoint) (int64, error) {
	if r.store != nil {
		key := fmt.Sprintf("ratelimit:%s:%s", req.SubjectKey(), ep.Path)
		return r.store.Incr(ctx, key, rateLimitWindow)
	}
	if r.records != nil {
		prior, err := r.records.CountSince(ep.ID, time.Now().Add(-rateLimitWindow))
		if err != nil {
			return 0, err
		}
		return prior + 1, nil
	}
	return 0, fmt.Errorf("no counter backend configured")
}
