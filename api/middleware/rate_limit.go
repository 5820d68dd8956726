package middleware

import (
	"net/http"
	"strconv"

	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/internal/ratelimit"
	"github.com/giftwell/giftwell-backend/pkg/config"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

// RateLimit throttles the mutating surfaces per (scope, actor, origin).
// Anonymous requests are keyed by origin alone so an unidentified client
// cannot dodge the counter by omitting the actor header.
func RateLimit(limiter ratelimit.Limiter, cfg config.RateLimitConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := resolveScope(rateLimitRules, r.Method, r.URL.Path)
			if !ok || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			origin := clientIP(r)
			actorID := ActorFromContext(ctx)
			if actorID == "" {
				actorID = "anon:" + origin
			}

			decision, err := limiter.Consume(ctx, scope, actorID, origin, int64(cfg.LimitFor(scope)))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !decision.Allowed {
				if logg != nil {
					warnCtx := logg.WithFields(ctx, map[string]any{
						"scope":               scope,
						"origin":              origin,
						"retry_after_seconds": decision.RetryAfterSeconds,
					})
					logg.Warn(warnCtx, "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds, 10))
				err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
					WithDetails(map[string]any{"retry_after_seconds": decision.RetryAfterSeconds})
				responses.WriteError(ctx, nil, w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
