package middleware

import (
	"net/http"
	"strings"

	"github.com/giftwell/giftwell-backend/pkg/logger"
)

const actorHeader = "X-Giftwell-Actor"

// Actor reads the opaque visitor identifier the edge resolver attaches to the
// request. An absent header is not an error here: read-only routes work
// anonymously and the services reject unresolved actors on the operations
// that need one.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(actorHeader))
			if actorID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithActorID(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
