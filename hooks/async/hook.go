// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/casseq"
//	"github.com/unkn0wn-root/casseq/hooks/async"
//	"github.com/unkn0wn-root/casseq/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    GateWaitEvery: 100, // sample logs: ~every 100th gated call
//	    RetryEvery:    10,  // ~every 10th transient retry
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	gen, _ := casseq.New(ctx, casseq.Options{
//	    Endpoint: "10.0.0.7:6379",
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/casseq"
)

type Hooks struct {
	inner casseq.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ casseq.Hooks = (*Hooks)(nil)

func New(inner casseq.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LockPromoted(ns string)       { h.try(func() { h.inner.LockPromoted(ns) }) }
func (h *Hooks) PromotionExhausted(ns string) { h.try(func() { h.inner.PromotionExhausted(ns) }) }
func (h *Hooks) CleanFailure(ns, op string)   { h.try(func() { h.inner.CleanFailure(ns, op) }) }
func (h *Hooks) GateWait(ns string, wait time.Duration) {
	h.try(func() { h.inner.GateWait(ns, wait) })
}
func (h *Hooks) RetryableBackendError(ns, op string, err error) {
	h.try(func() { h.inner.RetryableBackendError(ns, op, err) })
}
