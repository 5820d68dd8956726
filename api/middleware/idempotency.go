package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/internal/idempotency"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Idempotency replays stored outcomes for the coordination endpoints. A miss
// runs the handler and commits the response; a replay short-circuits without
// re-executing side effects; a key reused with a different payload is a hard
// conflict.
func Idempotency(cache idempotency.Cache, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := resolveScope(idempotencyRules, r.Method, r.URL.Path)
			if !ok || cache == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			actorID := ActorFromContext(ctx)
			if actorID == "" {
				// The handler rejects unresolved actors with the right code.
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			payload, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))

			outcome, err := cache.Check(ctx, scope, actorID, clientKey, payload)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			switch outcome.Verdict {
			case idempotency.VerdictReplay:
				writeStored(w, outcome.Status, outcome.Body)
				return
			case idempotency.VerdictMismatch:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different payload"))
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusOK && status < http.StatusMultipleChoices {
				if commitErr := cache.Commit(ctx, scope, actorID, clientKey, payload, status, rec.body.Bytes()); commitErr != nil && logg != nil {
					logg.Error(ctx, "persist idempotency record", commitErr)
				}
			}
		})
	}
}

func writeStored(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
