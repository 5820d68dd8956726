package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestCheckMissThenReplay(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cache := newTestCache(t, 24*time.Hour, func() time.Time { return current })
	ctx := context.Background()
	payload := []byte(`{"item_id":"abc"}`)

	outcome, err := cache.Check(ctx, "reserve", "visitor-a", "key-1", payload)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if outcome.Verdict != VerdictMiss {
		t.Fatalf("expected miss, got %d", outcome.Verdict)
	}

	body := []byte(`{"data":{"status":"active"}}`)
	if err := cache.Commit(ctx, "reserve", "visitor-a", "key-1", payload, http.StatusCreated, body); err != nil {
		t.Fatalf("commit: %v", err)
	}

	outcome, err = cache.Check(ctx, "reserve", "visitor-a", "key-1", payload)
	if err != nil {
		t.Fatalf("check replay: %v", err)
	}
	if outcome.Verdict != VerdictReplay {
		t.Fatalf("expected replay, got %d", outcome.Verdict)
	}
	if outcome.Status != http.StatusCreated || string(outcome.Body) != string(body) {
		t.Fatalf("replay must return the stored outcome verbatim: %d %s", outcome.Status, outcome.Body)
	}
}

func TestCheckPayloadMismatch(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, 24*time.Hour, nil)
	ctx := context.Background()

	if err := cache.Commit(ctx, "contribute", "visitor-a", "key-1", []byte(`{"amount":4000}`), http.StatusOK, []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	outcome, err := cache.Check(ctx, "contribute", "visitor-a", "key-1", []byte(`{"amount":9999}`))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if outcome.Verdict != VerdictMismatch {
		t.Fatalf("expected mismatch, got %d", outcome.Verdict)
	}
}

func TestRecordsAreScopedPerActorAndScope(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, 24*time.Hour, nil)
	ctx := context.Background()
	payload := []byte(`{}`)

	if err := cache.Commit(ctx, "reserve", "visitor-a", "key-1", payload, http.StatusOK, []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A different actor or scope with the same client key starts fresh.
	for _, probe := range []struct{ scope, actor string }{
		{"reserve", "visitor-b"},
		{"contribute", "visitor-a"},
	} {
		outcome, err := cache.Check(ctx, probe.scope, probe.actor, "key-1", payload)
		if err != nil {
			t.Fatalf("check %s/%s: %v", probe.scope, probe.actor, err)
		}
		if outcome.Verdict != VerdictMiss {
			t.Fatalf("expected miss for %s/%s, got %d", probe.scope, probe.actor, outcome.Verdict)
		}
	}
}

func TestCommitOverwritesPriorRecord(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, 24*time.Hour, nil)
	ctx := context.Background()
	payload := []byte(`{"v":2}`)

	if err := cache.Commit(ctx, "reserve", "visitor-a", "key-1", []byte(`{"v":1}`), http.StatusOK, []byte(`first`)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := cache.Commit(ctx, "reserve", "visitor-a", "key-1", payload, http.StatusCreated, []byte(`second`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	outcome, err := cache.Check(ctx, "reserve", "visitor-a", "key-1", payload)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if outcome.Verdict != VerdictReplay || string(outcome.Body) != "second" {
		t.Fatalf("expected the later record to win: %+v", outcome)
	}
}

func TestRecordsExpire(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	cache := newTestCache(t, time.Hour, now)
	ctx := context.Background()
	payload := []byte(`{}`)

	if err := cache.Commit(ctx, "reserve", "visitor-a", "key-1", payload, http.StatusOK, []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	current = current.Add(time.Hour + time.Second)
	outcome, err := cache.Check(ctx, "reserve", "visitor-a", "key-1", payload)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if outcome.Verdict != VerdictMiss {
		t.Fatalf("expected expired record to read as miss, got %d", outcome.Verdict)
	}
}

func newTestCache(t *testing.T, ttl time.Duration, now func() time.Time) Cache {
	t.Helper()
	if now == nil {
		now = time.Now
	}
	cache, err := NewCache(CacheParams{
		Store: NewMemoryStore(now),
		TTL:   ttl,
		Now:   now,
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}
