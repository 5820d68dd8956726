package ratelimit

import (
	"context"
	"time"

	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/metrics"
)

// Decision is the outcome of one Consume call. RetryAfterSeconds is only set
// when the call was denied.
type Decision struct {
	Allowed           bool
	Remaining         int64
	RetryAfterSeconds int64
}

// Store counts calls per (scope, actor, origin) inside a fixed window. Incr
// returns the count including the current call and the time left in the
// window. The first call after expiry restarts the window at count 1.
type Store interface {
	Incr(ctx context.Context, scope, actorID, origin string, window time.Duration) (int64, time.Duration, error)
}

// Limiter applies fixed-window limits. Bursts of up to twice the limit are
// possible at window boundaries; abuse mitigation, not strict fairness, is
// the goal here.
type Limiter interface {
	Consume(ctx context.Context, scope, actorID, origin string, limitPerWindow int64) (Decision, error)
}

// LimiterParams groups dependencies for the rate limiter.
type LimiterParams struct {
	Store   Store
	Window  time.Duration
	Metrics *metrics.CoreMetrics
}

type limiter struct {
	store   Store
	window  time.Duration
	metrics *metrics.CoreMetrics
}

// NewLimiter wires a fixed-window limiter over the provided store.
func NewLimiter(params LimiterParams) (Limiter, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate limit store is required")
	}
	if params.Window <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate limit window must be positive")
	}
	return &limiter{
		store:   params.Store,
		window:  params.Window,
		metrics: params.Metrics,
	}, nil
}

func (l *limiter) Consume(ctx context.Context, scope, actorID, origin string, limitPerWindow int64) (Decision, error) {
	if scope == "" || actorID == "" {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "rate limit scope and actor are required")
	}
	if limitPerWindow <= 0 {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "rate limit must be positive")
	}

	count, remaining, err := l.store.Incr(ctx, scope, actorID, origin, l.window)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment rate limit counter")
	}
	if count > limitPerWindow {
		l.metrics.IncRateLimitDenial(scope)
		return Decision{RetryAfterSeconds: ceilSeconds(remaining)}, nil
	}
	return Decision{Allowed: true, Remaining: limitPerWindow - count}, nil
}

// ceilSeconds rounds the remaining window up to whole seconds, with a floor
// of one so Retry-After is never zero on a denial.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	seconds := int64(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
