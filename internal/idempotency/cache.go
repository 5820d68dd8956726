package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/metrics"
)

// Record is one stored request outcome. The payload hash binds the record to
// the exact request that produced it.
type Record struct {
	PayloadHash string    `json:"payload_hash"`
	Status      int       `json:"status"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// Verdict classifies a Check call.
type Verdict int

const (
	// VerdictMiss means no record exists and the caller must execute the
	// mutation, then Commit.
	VerdictMiss Verdict = iota
	// VerdictReplay means the stored outcome must be returned verbatim
	// without re-executing side effects.
	VerdictReplay
	// VerdictMismatch means the client reused a key for a different payload.
	VerdictMismatch
)

// Outcome is the result of a Check call. Status and Body are only meaningful
// for VerdictReplay.
type Outcome struct {
	Verdict Verdict
	Status  int
	Body    []byte
}

// Store persists records keyed by (scope, actor, client key). Implementations
// expire records after the configured TTL; expiry may be lazy.
type Store interface {
	Get(ctx context.Context, scope, actorID, clientKey string) (Record, bool, error)
	Put(ctx context.Context, scope, actorID, clientKey string, record Record, ttl time.Duration) error
}

// Cache gates mutating endpoints that accept a client-supplied idempotency
// key. Callers run Check before the mutation and Commit after it succeeds.
type Cache interface {
	Check(ctx context.Context, scope, actorID, clientKey string, payload []byte) (Outcome, error)
	Commit(ctx context.Context, scope, actorID, clientKey string, payload []byte, status int, body []byte) error
}

// CacheParams groups dependencies for the idempotency cache.
type CacheParams struct {
	Store   Store
	TTL     time.Duration
	Metrics *metrics.CoreMetrics
	Now     func() time.Time
}

type cache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.CoreMetrics
	now     func() time.Time
}

// NewCache wires an idempotency cache over the provided store.
func NewCache(params CacheParams) (Cache, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency store is required")
	}
	if params.TTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &cache{
		store:   params.Store,
		ttl:     params.TTL,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (c *cache) Check(ctx context.Context, scope, actorID, clientKey string, payload []byte) (Outcome, error) {
	if scope == "" || actorID == "" || clientKey == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency scope, actor and key are required")
	}

	record, found, err := c.store.Get(ctx, scope, actorID, clientKey)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record")
	}
	if !found {
		return Outcome{Verdict: VerdictMiss}, nil
	}
	if record.PayloadHash != HashPayload(payload) {
		return Outcome{Verdict: VerdictMismatch}, nil
	}
	c.metrics.IncIdempotentReplay(scope)
	return Outcome{Verdict: VerdictReplay, Status: record.Status, Body: record.Body}, nil
}

func (c *cache) Commit(ctx context.Context, scope, actorID, clientKey string, payload []byte, status int, body []byte) error {
	if scope == "" || actorID == "" || clientKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency scope, actor and key are required")
	}

	record := Record{
		PayloadHash: HashPayload(payload),
		Status:      status,
		Body:        body,
		StoredAt:    c.now(),
	}
	if err := c.store.Put(ctx, scope, actorID, clientKey, record, c.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store idempotency record")
	}
	return nil
}

// HashPayload produces the stable digest compared on key reuse.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
