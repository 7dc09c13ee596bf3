package casseq

import (
	"time"

	"github.com/unkn0wn-root/casseq/retry"
)

const (
	// DefaultEndpoint is the conventional local backend address, used when
	// Options.Endpoint is empty.
	DefaultEndpoint = "127.0.0.1:6379"

	// DefaultConcurrency is the admission gate size: the number of mutating
	// backend calls one generator lets run at the same time.
	DefaultConcurrency = 4

	// releaseTimeout bounds the backend call that gives a promotion lock
	// back once the operation under it finished.
	releaseTimeout = 5 * time.Second
)

// defaultOptimistic is the stock budget for lock-free compare-and-set
// rounds: three retries, 100ms apart.
func defaultOptimistic() retry.Policy {
	return retry.NTimes(3, 100*time.Millisecond)
}

// defaultPromotion is the stock budget for the locked path: five retries
// backing off exponentially from 10ms, capped at one second.
func defaultPromotion() retry.Policy {
	return retry.BoundedExponential(10*time.Millisecond, time.Second, 5)
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
