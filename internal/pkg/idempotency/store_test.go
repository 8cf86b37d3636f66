package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/database/dbtest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, opts Options) (*Store, repository.IdempotencyRepository) {
	t.Helper()
	repo := repository.NewIdempotencyRepository(dbtest.Open(t))
	return NewStore(repo, opts), repo
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("post", "/api/v1/orders", []byte(`{"a":1}`))
	b := Fingerprint("POST", "/api/v1/orders", []byte(`{"a":1}`))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("POST", "/api/v1/orders", []byte(`{"a":2}`)))
	assert.NotEqual(t, a, Fingerprint("POST", "/api/v1/order", []byte(`s{"a":1}`)))
	assert.NotEqual(t, a, Fingerprint("PUT", "/api/v1/orders", []byte(`{"a":1}`)))
}

func TestClaimNewThenReplay(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 0})
	ctx := context.Background()

	claim, err := store.Claim(ctx, "k1", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, claim.Outcome)

	headers := map[string][]string{"Content-Type": {"application/json"}, "Location": {"/orders/1"}}
	require.NoError(t, store.SaveResponse(ctx, claim.Record, 201, headers, []byte(`{"id":"1"}`)))

	// replay wins even when the body hash drifted
	again, err := store.Claim(ctx, "k1", "POST", "/orders", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, again.Outcome)
	assert.Equal(t, 201, again.Record.ResponseStatus)
	assert.Equal(t, headers, again.Record.ResponseHeaders.Data())
	assert.Equal(t, []byte(`{"id":"1"}`), again.Record.ResponseBody)

	// the snapshot is never overwritten
	assert.ErrorIs(t, store.SaveResponse(ctx, claim.Record, 500, nil, []byte("x")), ErrAlreadyCompleted)
}

func TestClaimConflictOnDifferentHash(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 0})
	ctx := context.Background()

	_, err := store.Claim(ctx, "k2", "POST", "/orders", "hash-a")
	require.NoError(t, err)

	claim, err := store.Claim(ctx, "k2", "POST", "/orders", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, claim.Outcome)
	assert.Equal(t, ReasonHashMismatch, claim.Reason)
}

func TestClaimInProgressTimesOut(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	_, err := store.Claim(ctx, "k3", "POST", "/orders", "hash-a")
	require.NoError(t, err)

	claim, err := store.Claim(ctx, "k3", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, claim.Outcome)
	assert.Equal(t, ReasonInProgress, claim.Reason)
}

func TestClaimWaitsForSnapshot(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 2 * time.Second, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	first, err := store.Claim(ctx, "k4", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	require.Equal(t, OutcomeNew, first.Outcome)

	go func() {
		time.Sleep(40 * time.Millisecond)
		_ = store.SaveResponse(ctx, first.Record, 200, map[string][]string{"Content-Type": {"application/json"}}, []byte(`{}`))
	}()

	second, err := store.Claim(ctx, "k4", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, second.Outcome)
	assert.Equal(t, 200, second.Record.ResponseStatus)
}

func TestClaimTakesOverExpiredLease(t *testing.T) {
	clock := &testClock{t: time.Now().UTC()}
	store, _ := newTestStore(t, Options{Lease: time.Second, Wait: 0, Now: clock.Now})
	ctx := context.Background()

	first, err := store.Claim(ctx, "k5", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	require.Equal(t, OutcomeNew, first.Outcome)

	clock.Advance(2 * time.Second)

	second, err := store.Claim(ctx, "k5", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, second.Outcome)

	// the crashed executor can no longer complete
	assert.ErrorIs(t, store.SaveResponse(ctx, first.Record, 200, nil, nil), ErrAlreadyCompleted)
	require.NoError(t, store.SaveResponse(ctx, second.Record, 200, nil, []byte("ok")))
}

func TestClaimTreatsExpiredRecordAsAbsent(t *testing.T) {
	clock := &testClock{t: time.Now().UTC()}
	store, _ := newTestStore(t, Options{TTL: time.Hour, Wait: 0, Now: clock.Now})
	ctx := context.Background()

	first, err := store.Claim(ctx, "k6", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	require.NoError(t, store.SaveResponse(ctx, first.Record, 201, nil, []byte("old")))

	clock.Advance(2 * time.Hour)

	claim, err := store.Claim(ctx, "k6", "POST", "/orders", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, claim.Outcome)
	assert.Equal(t, "hash-b", claim.Record.RequestHash)
}

func TestReleaseAllowsRetry(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 0})
	ctx := context.Background()

	claim, err := store.Claim(ctx, "k7", "POST", "/orders", "hash-a")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, claim.Record))

	again, err := store.Claim(ctx, "k7", "POST", "/orders", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, again.Outcome)
}

func TestConcurrentClaimsYieldOneNew(t *testing.T) {
	store, _ := newTestStore(t, Options{Wait: 0})
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := store.Claim(ctx, "k8", "POST", "/orders", "hash-a")
			if assert.NoError(t, err) {
				outcomes <- claim.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[OutcomeNew])
	assert.Equal(t, callers-1, counts[OutcomeConflict])
}

func TestPurgeExpired(t *testing.T) {
	clock := &testClock{t: time.Now().UTC()}
	store, repo := newTestStore(t, Options{TTL: time.Hour, Now: clock.Now})
	ctx := context.Background()

	_, err := store.Claim(ctx, "old", "POST", "/x", "h")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = store.Claim(ctx, "fresh", "POST", "/x", "h")
	require.NoError(t, err)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	rec, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyStatusOpen, rec.Status)
}
