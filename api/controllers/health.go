package controllers

import (
	"context"
	"net/http"

	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/pkg/config"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Giftwell-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. A nil pinger means the dependency
// is not part of this deployment (memory backends) and is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Giftwell-Env", cfg.App.Env)
		ctx := r.Context()

		checks := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				err := pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").
					WithDetails(checks)
				responses.WriteError(ctx, logg, w, err)
				return
			}
			checks[name] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// ReadinessDeps builds the ping set for HealthReady.
func ReadinessDeps(db, redis, storage Pinger) map[string]Pinger {
	return map[string]Pinger{
		"db":      db,
		"redis":   redis,
		"storage": storage,
	}
}
