// Package casseq implements a cluster-wide, namespaced sequence generator on
// top of a strongly-consistent coordination backend. Every namespace owns one
// logical 64-bit counter; NextID returns strictly increasing values for that
// counter no matter how many processes call it, because the counter itself
// lives in the backend and every increment is a compare-and-set.
//
// Components:
//   - backend.Conn: versioned cell store plus distributed try-locks
//     (Redis, etcd, or an in-process store for tests).
//   - counter: the per-call increment protocol. Optimistic CAS first; after
//     the optimistic budget is spent it promotes to the namespace lock and
//     retries under mutual exclusion.
//   - gate: fair FIFO semaphore bounding how many mutating backend calls one
//     generator keeps in flight.
//   - Registry: one shared generator per backend endpoint.
//
// Paths:
//
//	/<namespace>       - counter cell
//	/<namespace>/lock  - promotion lock
//
// Usage:
//
//	gen, err := casseq.New(ctx, casseq.Options{Endpoint: "10.0.0.7:6379"})
//	if err != nil { ... }
//	defer gen.Close(context.Background())
//
//	id, err := gen.NextID(ctx, "orders")
//
// NextID reports a clean, non-exceptional backend failure as the
// IDNotAssigned sentinel with a nil error; CurrentID reports the same
// condition as an *OpFailedError. The asymmetry is long-standing behavior
// that callers of each method rely on; read the Generator docs before
// changing it.
package casseq
