package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/casseq"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	GateWaitEvery uint64
	RetryEvery    uint64

	// MinGateWait drops gate-wait events below this duration before
	// sampling even sees them. Zero logs every wait.
	MinGateWait time.Duration

	// Optional namespace redactor for tenant-sensitive deployments.
	// Defaults to identity.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	gateWaitCtr atomic.Uint64
	retryCtr    atomic.Uint64
}

var _ casseq.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(ns string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(ns)
	}
	return ns
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LockPromoted(namespace string) {
	if h.l == nil {
		return
	}
	h.l.Debug("casseq.lock_promoted",
		"ns", h.redact(namespace))
}

func (h *Hooks) PromotionExhausted(namespace string) {
	if h.l == nil {
		return
	}
	h.l.Warn("casseq.promotion_exhausted",
		"ns", h.redact(namespace))
}

func (h *Hooks) CleanFailure(namespace, op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("casseq.clean_failure",
		"ns", h.redact(namespace),
		"op", op)
}

func (h *Hooks) GateWait(namespace string, wait time.Duration) {
	if h.l == nil || wait < h.opts.MinGateWait {
		return
	}
	if !sample(h.opts.GateWaitEvery, &h.gateWaitCtr) {
		return
	}
	h.l.Debug("casseq.gate_wait",
		"ns", h.redact(namespace),
		"wait", wait)
}

func (h *Hooks) RetryableBackendError(namespace, op string, err error) {
	if h.l == nil || !sample(h.opts.RetryEvery, &h.retryCtr) {
		return
	}
	h.l.Warn("casseq.retryable_backend_error",
		"ns", h.redact(namespace),
		"op", op,
		"err", err)
}
