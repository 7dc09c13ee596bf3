package casseq

import (
	"context"

	"github.com/unkn0wn-root/casseq/backend"
	"github.com/unkn0wn-root/casseq/retry"
)

// IDNotAssigned is NextID's clean-failure sentinel: the backend stayed
// healthy but no id could be claimed within the retry budgets. Callers must
// check for it and retry the call; it is never a valid id.
const IDNotAssigned int64 = -1

// DialFunc opens a session with the coordination backend at endpoint.
// backend/redis.Dial is the default; backend/etcd.Dial and
// backend/local.Dial are drop-in alternatives.
type DialFunc func(ctx context.Context, endpoint string) (backend.Conn, error)

// Generator mints cluster-wide, monotonically increasing int64 ids,
// partitioned by namespace. Implementations are safe for concurrent use.
type Generator interface {
	// NextID claims and returns the next id for namespace, creating the
	// counter at 1 on first use. It returns IDNotAssigned with a nil error
	// when the attempt ran out of retry budget without being applied.
	NextID(ctx context.Context, namespace string) (int64, error)

	// CurrentID returns the last id handed out for namespace, 0 if none
	// ever was. Unlike NextID it reports a clean failure as an
	// *OpFailedError instead of a sentinel.
	CurrentID(ctx context.Context, namespace string) (int64, error)

	// SetValue force-overwrites the namespace counter so the next NextID
	// returns value+1. It bypasses compare-and-set entirely and is meant
	// for administrative resets, not regular traffic.
	SetValue(ctx context.Context, namespace string, value int64) (bool, error)

	// Close releases the backend session. Idempotent. Afterwards every
	// call fails fast with a *ConnError wrapping ErrClosed.
	Close(ctx context.Context) error
}

// Options configure New. They are read once; mutating an Options value
// after New returns has no effect on the generator it built.
type Options struct {
	// Endpoint is the backend address. Empty means DefaultEndpoint.
	Endpoint string

	// Dial opens the backend session. Nil means backend/redis.Dial.
	Dial DialFunc

	// Concurrency bounds mutating backend calls in flight per generator.
	// Zero means DefaultConcurrency; anything below one is raised to one.
	Concurrency int

	// Logger receives generator logs. Nil disables logging.
	Logger Logger

	// Hooks receive generator events. Nil disables them.
	Hooks Hooks

	// Optimistic is the retry budget for lock-free compare-and-set rounds.
	// Nil means three retries 100ms apart.
	Optimistic retry.Policy

	// Promotion is the retry budget for acquiring the namespace lock and
	// for rounds under it. Nil means five retries backing off from 10ms
	// up to one second.
	Promotion retry.Policy
}

// New dials the backend and returns a ready Generator. The dial is eager:
// an unreachable endpoint fails here, as a *ConnError, not on first use.
func New(ctx context.Context, opts Options) (Generator, error) {
	return newGenerator(ctx, opts)
}
