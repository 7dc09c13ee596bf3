package casseq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/casseq/backend"
	"github.com/unkn0wn-root/casseq/backend/local"
	"github.com/unkn0wn-root/casseq/retry"
)

// ==============================
// Scripted backends
// ==============================

// conflictNConn makes the first n Stores lose cleanly before delegating.
type conflictNConn struct {
	backend.Conn
	mu sync.Mutex
	n  int
}

func (c *conflictNConn) Store(ctx context.Context, path string, value []byte, version int64) (bool, error) {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()
	return c.Conn.Store(ctx, path, value, version)
}

// failStoreConn fails every Store with a fixed error.
type failStoreConn struct {
	backend.Conn
	err error
}

func (c *failStoreConn) Store(context.Context, string, []byte, int64) (bool, error) {
	return false, c.err
}

// flakyLoadConn fails the first n Loads with a retryable error.
type flakyLoadConn struct {
	backend.Conn
	mu sync.Mutex
	n  int
}

func (c *flakyLoadConn) Load(ctx context.Context, path string) (backend.Cell, error) {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
		c.mu.Unlock()
		return backend.Cell{}, fmt.Errorf("%w: injected", backend.ErrTryAgain)
	}
	c.mu.Unlock()
	return c.Conn.Load(ctx, path)
}

// heldLockConn reports every lock as held elsewhere.
type heldLockConn struct{ backend.Conn }

func (heldLockConn) Locker(string) backend.Mutex { return deniedMutex{} }

type deniedMutex struct{}

func (deniedMutex) TryAcquire(context.Context) (bool, error) { return false, nil }
func (deniedMutex) Release(context.Context) error            { return backend.ErrNotHeld }

// recordingLockConn counts acquisitions and releases on the inner locks.
type recordingLockConn struct {
	backend.Conn
	mu       sync.Mutex
	acquired int
	released int
}

func (c *recordingLockConn) Locker(path string) backend.Mutex {
	return &recordingMutex{c: c, inner: c.Conn.Locker(path)}
}

func (c *recordingLockConn) counts() (acquired, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired, c.released
}

type recordingMutex struct {
	c     *recordingLockConn
	inner backend.Mutex
}

func (m *recordingMutex) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := m.inner.TryAcquire(ctx)
	if ok {
		m.c.mu.Lock()
		m.c.acquired++
		m.c.mu.Unlock()
	}
	return ok, err
}

func (m *recordingMutex) Release(ctx context.Context) error {
	err := m.inner.Release(ctx)
	if err == nil {
		m.c.mu.Lock()
		m.c.released++
		m.c.mu.Unlock()
	}
	return err
}

// recordingHooks counts events.
type recordingHooks struct {
	mu        sync.Mutex
	promoted  int
	exhausted int
	clean     int
	retries   int
	gateWaits int
}

var _ Hooks = (*recordingHooks)(nil)

func (h *recordingHooks) LockPromoted(string) {
	h.mu.Lock()
	h.promoted++
	h.mu.Unlock()
}

func (h *recordingHooks) PromotionExhausted(string) {
	h.mu.Lock()
	h.exhausted++
	h.mu.Unlock()
}

func (h *recordingHooks) CleanFailure(string, string) {
	h.mu.Lock()
	h.clean++
	h.mu.Unlock()
}

func (h *recordingHooks) GateWait(string, time.Duration) {
	h.mu.Lock()
	h.gateWaits++
	h.mu.Unlock()
}

func (h *recordingHooks) RetryableBackendError(string, string, error) {
	h.mu.Lock()
	h.retries++
	h.mu.Unlock()
}

func (h *recordingHooks) snapshot() (promoted, exhausted, clean, retries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.promoted, h.exhausted, h.clean, h.retries
}

func newTestCounter(t *testing.T, conn backend.Conn, optimistic, promotion retry.Policy, h Hooks) *counter {
	t.Helper()
	if optimistic == nil {
		optimistic = retry.NTimes(3, 0)
	}
	if promotion == nil {
		promotion = retry.NTimes(3, 0)
	}
	if h == nil {
		h = NopHooks{}
	}
	return newCounter(conn, "orders", optimistic, promotion, NopLogger{}, h)
}

// ==============================
// Increment protocol
// ==============================

func TestIncrementFirstUseStartsAtOne(t *testing.T) {
	ctx := context.Background()
	conn := local.New()
	ctr := newTestCounter(t, conn, nil, nil, nil)

	v, err := ctr.increment(ctx)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if !v.succeeded || v.pre != 0 || v.post != 1 {
		t.Fatalf("first increment = %+v, want pre 0 post 1", v)
	}

	c, err := conn.Load(ctx, "/orders")
	if err != nil || !c.Exists {
		t.Fatalf("counter cell not created: %+v err=%v", c, err)
	}
}

func TestIncrementSequence(t *testing.T) {
	ctx := context.Background()
	conn := local.New()
	ctr := newTestCounter(t, conn, nil, nil, nil)

	for want := int64(1); want <= 5; want++ {
		v, err := ctr.increment(ctx)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if !v.succeeded || v.post != want || v.pre != want-1 {
			t.Fatalf("increment %d = %+v", want, v)
		}
	}
}

func TestOptimisticConflictsWithinBudget(t *testing.T) {
	ctx := context.Background()
	conn := &conflictNConn{Conn: local.New(), n: 2}
	hooks := &recordingHooks{}
	ctr := newTestCounter(t, conn, retry.NTimes(3, 0), nil, hooks)

	v, err := ctr.increment(ctx)
	if err != nil || !v.succeeded || v.post != 1 {
		t.Fatalf("increment = %+v err=%v", v, err)
	}
	if promoted, _, _, _ := hooks.snapshot(); promoted != 0 {
		t.Fatalf("promoted %d times, conflicts within budget must stay optimistic", promoted)
	}
}

func TestPromotionAfterOptimisticExhaustion(t *testing.T) {
	ctx := context.Background()
	locks := &recordingLockConn{Conn: &conflictNConn{Conn: local.New(), n: 4}}
	hooks := &recordingHooks{}
	// Budget 3 means four optimistic rounds total; all four conflict, the
	// locked round then wins.
	ctr := newTestCounter(t, locks, retry.NTimes(3, 0), retry.NTimes(3, 0), hooks)

	v, err := ctr.increment(ctx)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if !v.succeeded || v.post != 1 {
		t.Fatalf("increment = %+v, want post 1 via lock", v)
	}

	promoted, exhausted, _, _ := hooks.snapshot()
	if promoted != 1 || exhausted != 0 {
		t.Fatalf("promoted=%d exhausted=%d, want exactly one promotion", promoted, exhausted)
	}
	if a, r := locks.counts(); a != 1 || r != 1 {
		t.Fatalf("lock acquired=%d released=%d, want 1/1", a, r)
	}
}

func TestPromotionExhaustedIsCleanFailure(t *testing.T) {
	ctx := context.Background()
	conn := heldLockConn{Conn: &conflictNConn{Conn: local.New(), n: 100}}
	hooks := &recordingHooks{}
	ctr := newTestCounter(t, conn, retry.NTimes(1, 0), retry.NTimes(2, 0), hooks)

	v, err := ctr.increment(ctx)
	if err != nil {
		t.Fatalf("increment: %v, clean failure must not be an error", err)
	}
	if v.succeeded {
		t.Fatalf("increment = %+v, want unsucceeded", v)
	}
	if _, exhausted, _, _ := hooks.snapshot(); exhausted != 1 {
		t.Fatalf("exhausted=%d, want 1", exhausted)
	}
}

func TestHardErrorStopsRetrying(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	conn := &failStoreConn{Conn: local.New(), err: boom}
	ctr := newTestCounter(t, conn, retry.NTimes(5, 0), nil, nil)

	_, err := ctr.increment(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("increment err = %v, want wrapped boom", err)
	}
}

func TestTransientLoadErrorsAreRetried(t *testing.T) {
	ctx := context.Background()
	conn := &flakyLoadConn{Conn: local.New(), n: 2}
	hooks := &recordingHooks{}
	ctr := newTestCounter(t, conn, retry.NTimes(3, 0), nil, hooks)

	v, err := ctr.increment(ctx)
	if err != nil || !v.succeeded || v.post != 1 {
		t.Fatalf("increment = %+v err=%v", v, err)
	}
	if _, _, _, retries := hooks.snapshot(); retries != 2 {
		t.Fatalf("retryable errors seen = %d, want 2", retries)
	}
}

func TestLockReleasedOnHardErrorUnderIt(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	locks := &recordingLockConn{
		Conn: &conflictNConn{Conn: &failStoreConn{Conn: local.New(), err: boom}, n: 2},
	}
	// One optimistic round, conflicted; promotion acquires the lock; the
	// round under it hits the hard error.
	ctr := newTestCounter(t, locks, retry.NTimes(1, 0), retry.NTimes(3, 0), nil)

	_, err := ctr.increment(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("increment err = %v, want boom", err)
	}
	if a, r := locks.counts(); a != 1 || r != 1 {
		t.Fatalf("lock acquired=%d released=%d, must release on the error path", a, r)
	}
}

func TestIncrementHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctr := newTestCounter(t, local.New(), nil, nil, nil)

	_, err := ctr.increment(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("increment err = %v, want context.Canceled", err)
	}
}

// ==============================
// Reads and force-set
// ==============================

func TestGetMissingReadsZeroWithoutCreating(t *testing.T) {
	ctx := context.Background()
	conn := local.New()
	ctr := newTestCounter(t, conn, nil, nil, nil)

	v, err := ctr.get(ctx)
	if err != nil || !v.succeeded || v.post != 0 {
		t.Fatalf("get = %+v err=%v, want 0", v, err)
	}

	c, err := conn.Load(ctx, "/orders")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Exists {
		t.Fatal("get created the counter cell; reads must not write")
	}
}

func TestGetSeesIncrements(t *testing.T) {
	ctx := context.Background()
	conn := local.New()
	ctr := newTestCounter(t, conn, nil, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := ctr.increment(ctx); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	v, err := ctr.get(ctx)
	if err != nil || !v.succeeded || v.post != 3 {
		t.Fatalf("get = %+v err=%v, want 3", v, err)
	}
}

func TestGetCleanFailureWhenTransientsExhaust(t *testing.T) {
	ctx := context.Background()
	conn := &flakyLoadConn{Conn: local.New(), n: 100}
	ctr := newTestCounter(t, conn, retry.NTimes(2, 0), nil, nil)

	v, err := ctr.get(ctx)
	if err != nil {
		t.Fatalf("get: %v, budget exhaustion on transients is a clean failure", err)
	}
	if v.succeeded {
		t.Fatalf("get = %+v, want unsucceeded", v)
	}
}

func TestForceSetThenGetAndIncrement(t *testing.T) {
	ctx := context.Background()
	ctr := newTestCounter(t, local.New(), nil, nil, nil)

	if err := ctr.forceSet(ctx, 41); err != nil {
		t.Fatalf("forceSet: %v", err)
	}
	if v, err := ctr.get(ctx); err != nil || v.post != 41 {
		t.Fatalf("get after forceSet = %+v err=%v, want 41", v, err)
	}
	if v, err := ctr.increment(ctx); err != nil || v.post != 42 {
		t.Fatalf("increment after forceSet = %+v err=%v, want 42", v, err)
	}
}

func TestForceSetWinsAgainstStaleVersions(t *testing.T) {
	ctx := context.Background()
	conn := local.New()
	ctr := newTestCounter(t, conn, nil, nil, nil)

	if _, err := ctr.increment(ctx); err != nil {
		t.Fatalf("increment: %v", err)
	}
	stale, _ := conn.Load(ctx, "/orders")

	if err := ctr.forceSet(ctx, 7); err != nil {
		t.Fatalf("forceSet: %v", err)
	}

	// The version advanced, so a CAS against the pre-force version loses.
	if ok, _ := conn.Store(ctx, "/orders", stale.Value, stale.Version); ok {
		t.Fatal("stale CAS won against a force-set counter")
	}
}
