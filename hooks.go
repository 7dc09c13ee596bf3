package casseq

import "time"

// Hooks receive high-signal generator events. Implementations must be cheap
// and non-blocking: the generator invokes them inline on hot paths. Wrap a
// slow sink with hooks/async to decouple it, or start from sloghooks for a
// ready-made sampled slog sink.
type Hooks interface {
	// LockPromoted fires when a call's optimistic budget is spent and it
	// moves on to the namespace lock.
	LockPromoted(namespace string)

	// PromotionExhausted fires when the lock could not be acquired within
	// the promotion budget and the call ends as a clean failure.
	PromotionExhausted(namespace string)

	// CleanFailure fires when a call completes unapplied with no error.
	// op is "increment" or "get".
	CleanFailure(namespace, op string)

	// GateWait reports how long a mutating call waited for an admission
	// permit. Fires on every gated call, including a zero wait.
	GateWait(namespace string, wait time.Duration)

	// RetryableBackendError fires when a backend error was classified as
	// transient and the attempt will be retried.
	RetryableBackendError(namespace, op string, err error)
}

// NopHooks ignores all events.
type NopHooks struct{}

func (NopHooks) LockPromoted(string)                         {}
func (NopHooks) PromotionExhausted(string)                   {}
func (NopHooks) CleanFailure(string, string)                 {}
func (NopHooks) GateWait(string, time.Duration)              {}
func (NopHooks) RetryableBackendError(string, string, error) {}
