package casseq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/casseq/backend"
	redisbackend "github.com/unkn0wn-root/casseq/backend/redis"
	"github.com/unkn0wn-root/casseq/retry"
)

type generator struct {
	endpoint   string
	conn       backend.Conn
	gate       *gate
	log        Logger
	hooks      Hooks
	optimistic retry.Policy
	promotion  retry.Policy

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Generator = (*generator)(nil)

func newGenerator(ctx context.Context, opts Options) (*generator, error) {
	endpoint := coalesce(opts.Endpoint, DefaultEndpoint)
	dial := opts.Dial
	if dial == nil {
		dial = redisbackend.Dial
	}
	size := opts.Concurrency
	if size == 0 {
		size = DefaultConcurrency
	}
	if size < 1 {
		size = 1
	}

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, &ConnError{Endpoint: endpoint, Err: err}
	}

	g := &generator{
		endpoint:   endpoint,
		conn:       conn,
		gate:       newGate(size),
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		optimistic: coalesce(opts.Optimistic, defaultOptimistic()),
		promotion:  coalesce(opts.Promotion, defaultPromotion()),
	}
	g.log.Info("generator ready", Fields{"endpoint": endpoint, "concurrency": size})
	return g, nil
}

func (g *generator) NextID(ctx context.Context, namespace string) (int64, error) {
	if g.closed.Load() {
		return 0, &ConnError{Endpoint: g.endpoint, Err: ErrClosed}
	}
	ctr := g.counter(namespace)

	release, err := g.admit(ctx, namespace)
	if err != nil {
		return 0, err
	}
	defer release()

	v, err := ctr.increment(ctx)
	if err != nil {
		return 0, g.wrap("increment", ctr.pathID, err)
	}
	if !v.succeeded {
		g.hooks.CleanFailure(namespace, "increment")
		g.log.Debug("increment not applied", Fields{"namespace": namespace})
		return IDNotAssigned, nil
	}
	return v.post, nil
}

func (g *generator) CurrentID(ctx context.Context, namespace string) (int64, error) {
	if g.closed.Load() {
		return 0, &ConnError{Endpoint: g.endpoint, Err: ErrClosed}
	}
	ctr := g.counter(namespace)

	// Reads skip the admission gate: they hold no lock, write nothing and
	// cannot pile up mutating load on the backend.
	v, err := ctr.get(ctx)
	if err != nil {
		return 0, g.wrap("get", ctr.pathID, err)
	}
	if !v.succeeded {
		g.hooks.CleanFailure(namespace, "get")
		return 0, &OpFailedError{Op: "get", Namespace: namespace}
	}
	return v.post, nil
}

func (g *generator) SetValue(ctx context.Context, namespace string, val int64) (bool, error) {
	if g.closed.Load() {
		return false, &ConnError{Endpoint: g.endpoint, Err: ErrClosed}
	}
	ctr := g.counter(namespace)

	release, err := g.admit(ctx, namespace)
	if err != nil {
		return false, err
	}
	defer release()

	if err := ctr.forceSet(ctx, val); err != nil {
		return false, g.wrap("force-set", ctr.pathID, err)
	}
	g.log.Info("counter force-set", Fields{"namespace": namespace, "value": val})
	return true, nil
}

// Close releases the backend session. Idempotent; only the first call
// reaches the backend.
func (g *generator) Close(ctx context.Context) error {
	var err error
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		err = g.conn.Close(ctx)
		g.log.Info("generator closed", Fields{"endpoint": g.endpoint})
	})
	return err
}

func (g *generator) counter(namespace string) *counter {
	return newCounter(g.conn, namespace, g.optimistic, g.promotion, g.log, g.hooks)
}

// admit takes an admission permit, reporting the wait. Cancellation while
// queued returns the context error; a permit already granted is never
// cancelled.
func (g *generator) admit(ctx context.Context, namespace string) (func(), error) {
	start := time.Now()
	if err := g.gate.AcquireContext(ctx); err != nil {
		return nil, err
	}
	g.hooks.GateWait(namespace, time.Since(start))
	return g.gate.Release, nil
}

func (g *generator) wrap(op, path string, err error) error {
	if errors.Is(err, backend.ErrClosed) {
		return &ConnError{Endpoint: g.endpoint, Err: err}
	}
	return &BackendError{Op: op, Path: path, Err: err}
}
