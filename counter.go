package casseq

import (
	"context"
	"time"

	"github.com/unkn0wn-root/casseq/backend"
	"github.com/unkn0wn-root/casseq/internal/wire"
	"github.com/unkn0wn-root/casseq/retry"
)

// value reports one counter operation. succeeded=false with a nil error is
// a clean failure: the retry budget ran out before a round went through.
// Nothing was applied and the caller may try the whole call again.
type value struct {
	pre       int64
	post      int64
	succeeded bool
}

// counter drives the per-call protocol for one namespace. Optimistic
// compare-and-set rounds run first; once that budget is spent the call
// promotes to the namespace lock and keeps trying under it.
//
// A counter is built fresh for every facade call. Retry state lives in the
// loops below and dies with the call; concurrent calls never share it.
type counter struct {
	conn       backend.Conn
	namespace  string
	pathID     string
	pathLock   string
	optimistic retry.Policy
	promotion  retry.Policy
	log        Logger
	hooks      Hooks
}

func newCounter(conn backend.Conn, namespace string, optimistic, promotion retry.Policy, log Logger, hooks Hooks) *counter {
	pathID, pathLock := counterPaths(namespace)
	return &counter{
		conn:       conn,
		namespace:  namespace,
		pathID:     pathID,
		pathLock:   pathLock,
		optimistic: optimistic,
		promotion:  promotion,
		log:        log,
		hooks:      hooks,
	}
}

// step runs one load + compare-and-set round. conflict=true means the write
// lost a race and the round may be repeated.
func (c *counter) step(ctx context.Context) (v value, conflict bool, err error) {
	cur, err := c.conn.Load(ctx, c.pathID)
	if err != nil {
		return value{}, false, err
	}
	var pre int64
	if cur.Exists {
		if pre, err = wire.DecodeValue(cur.Value); err != nil {
			return value{}, false, err
		}
	}
	post := pre + 1
	ok, err := c.conn.Store(ctx, c.pathID, wire.EncodeValue(post), cur.Version)
	if err != nil {
		return value{}, false, err
	}
	if !ok {
		return value{}, true, nil
	}
	return value{pre: pre, post: post, succeeded: true}, false, nil
}

// run repeats step under pol until a round goes through or fails hard. A
// spent budget is reported as an unsucceeded value with a nil error.
// Conflicts and transient backend faults spend budget the same way.
func (c *counter) run(ctx context.Context, pol retry.Policy) (value, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return value{}, err
		}
		v, conflict, err := c.step(ctx)
		if err == nil && !conflict {
			return v, nil
		}
		if err != nil {
			if !backend.Retryable(err) {
				return value{}, err
			}
			c.hooks.RetryableBackendError(c.namespace, "increment", err)
		}
		delay, ok := pol.Next(attempt)
		if !ok {
			return value{}, nil
		}
		if err := sleep(ctx, delay); err != nil {
			return value{}, err
		}
	}
}

// increment adds one to the counter, creating it at 1 on first use.
func (c *counter) increment(ctx context.Context) (value, error) {
	v, err := c.run(ctx, c.optimistic)
	if err != nil || v.succeeded {
		return v, err
	}

	c.hooks.LockPromoted(c.namespace)
	c.log.Debug("optimistic budget spent, promoting to lock", Fields{
		"namespace": c.namespace,
		"lock":      c.pathLock,
	})
	return c.incrementLocked(ctx)
}

// incrementLocked takes the namespace lock under the promotion budget and
// keeps running rounds under it with a budget of its own. Rounds can still
// conflict there: optimistic writers that have not promoted do not honor
// the lock, only other promoted writers do.
func (c *counter) incrementLocked(ctx context.Context) (value, error) {
	mu := c.conn.Locker(c.pathLock)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return value{}, err
		}
		ok, err := mu.TryAcquire(ctx)
		if err != nil {
			if !backend.Retryable(err) {
				return value{}, err
			}
			c.hooks.RetryableBackendError(c.namespace, "lock", err)
		}
		if ok {
			break
		}
		delay, more := c.promotion.Next(attempt)
		if !more {
			c.hooks.PromotionExhausted(c.namespace)
			c.log.Debug("lock promotion exhausted", Fields{
				"namespace": c.namespace,
				"lock":      c.pathLock,
			})
			return value{}, nil
		}
		if err := sleep(ctx, delay); err != nil {
			return value{}, err
		}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := mu.Release(rctx); err != nil {
			c.log.Warn("lock release failed", Fields{
				"namespace": c.namespace,
				"lock":      c.pathLock,
				"err":       err,
			})
		}
	}()

	return c.run(ctx, c.promotion)
}

// get reads the counter without touching it. Missing counters read as 0.
// Only transient faults are retried; running out of budget is a clean
// failure like everywhere else.
func (c *counter) get(ctx context.Context) (value, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return value{}, err
		}
		cur, err := c.conn.Load(ctx, c.pathID)
		if err == nil {
			var cv int64
			if cur.Exists {
				if cv, err = wire.DecodeValue(cur.Value); err != nil {
					return value{}, err
				}
			}
			return value{pre: cv, post: cv, succeeded: true}, nil
		}
		if !backend.Retryable(err) {
			return value{}, err
		}
		c.hooks.RetryableBackendError(c.namespace, "get", err)
		delay, ok := c.optimistic.Next(attempt)
		if !ok {
			return value{}, nil
		}
		if err := sleep(ctx, delay); err != nil {
			return value{}, err
		}
	}
}

// forceSet overwrites the counter unconditionally, outside the
// compare-and-set protocol. Monotonicity does not survive it.
func (c *counter) forceSet(ctx context.Context, v int64) error {
	return c.conn.ForceStore(ctx, c.pathID, wire.EncodeValue(v))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
