// Package etcd maps the backend contract onto an etcd cluster.
//
// Cells are plain keys and the cell version is the key's ModRevision, which
// etcd advances globally on every write: Store compiles to a single Txn
// comparing ModRevision (CreateRevision 0 for create-if-absent) and
// ForceStore to a bare Put. Locks ride on client/v3/concurrency mutexes
// over one lease-backed session per connection, so a crashed process frees
// its locks when the lease lapses.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unkn0wn-root/casseq/backend"
)

var ErrNilClient = errors.New("etcd backend: nil client")

const (
	dialTimeout = 3 * time.Second

	// DefaultSessionTTL is the lock lease TTL in seconds. A partition
	// longer than this expires the session and every lock it backs.
	DefaultSessionTTL = 30
)

type Etcd struct {
	cli         *clientv3.Client
	sess        *concurrency.Session
	closeClient bool
	closed      atomic.Bool
}

var _ backend.Conn = (*Etcd)(nil)

type Config struct {
	Client      *clientv3.Client
	CloseClient bool // set true only if this backend exclusively owns the client
	SessionTTL  int  // seconds; zero means DefaultSessionTTL
}

// New wraps an existing client. It grants the lock lease eagerly, so an
// unreachable cluster fails here rather than on first lock.
func New(cfg Config) (*Etcd, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	sess, err := concurrency.NewSession(cfg.Client, concurrency.WithTTL(ttl))
	if err != nil {
		return nil, err
	}
	return &Etcd{cli: cfg.Client, sess: sess, closeClient: cfg.CloseClient}, nil
}

// Dial connects to a single-endpoint cluster, verifies it answers a status
// probe and returns an owning backend. It satisfies casseq.DialFunc.
func Dial(ctx context.Context, endpoint string) (backend.Conn, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if _, err := cli.Status(pctx, endpoint); err != nil {
		_ = cli.Close()
		return nil, err
	}
	e, err := New(Config{Client: cli, CloseClient: true})
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return e, nil
}

func (e *Etcd) Load(ctx context.Context, path string) (backend.Cell, error) {
	if e.closed.Load() {
		return backend.Cell{}, backend.ErrClosed
	}
	resp, err := e.cli.Get(ctx, path)
	if err != nil {
		return backend.Cell{}, mapErr(err)
	}
	if len(resp.Kvs) == 0 {
		return backend.Cell{}, nil
	}
	kv := resp.Kvs[0]
	return backend.Cell{Value: kv.Value, Version: kv.ModRevision, Exists: true}, nil
}

func (e *Etcd) Store(ctx context.Context, path string, value []byte, version int64) (bool, error) {
	if e.closed.Load() {
		return false, backend.ErrClosed
	}
	cmp := clientv3.Compare(clientv3.ModRevision(path), "=", version)
	if version == 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(path), "=", 0)
	}
	resp, err := e.cli.Txn(ctx).If(cmp).Then(clientv3.OpPut(path, string(value))).Commit()
	if err != nil {
		return false, mapErr(err)
	}
	return resp.Succeeded, nil
}

func (e *Etcd) ForceStore(ctx context.Context, path string, value []byte) error {
	if e.closed.Load() {
		return backend.ErrClosed
	}
	_, err := e.cli.Put(ctx, path, string(value))
	return mapErr(err)
}

func (e *Etcd) Locker(path string) backend.Mutex {
	return &mutex{e: e, m: concurrency.NewMutex(e.sess, path)}
}

// Close revokes the lock lease, releasing anything still held, and then the
// client when this backend owns it. Safe to call multiple times.
func (e *Etcd) Close(context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	serr := e.sess.Close()
	if e.closeClient {
		return errors.Join(serr, e.cli.Close())
	}
	return serr
}

type mutex struct {
	e    *Etcd
	m    *concurrency.Mutex
	held bool
}

func (m *mutex) TryAcquire(ctx context.Context) (bool, error) {
	if m.e.closed.Load() {
		return false, backend.ErrClosed
	}
	err := m.m.TryLock(ctx)
	switch {
	case err == nil:
		m.held = true
		return true, nil
	case errors.Is(err, concurrency.ErrLocked):
		return false, nil
	default:
		return false, mapErr(err)
	}
}

func (m *mutex) Release(ctx context.Context) error {
	if !m.held {
		return backend.ErrNotHeld
	}
	if m.e.closed.Load() {
		return backend.ErrClosed
	}
	if err := m.m.Unlock(ctx); err != nil {
		return mapErr(err)
	}
	m.held = false
	return nil
}

// transient reports faults that tend to clear on their own, like an
// overloaded node or a leader election in progress.
func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	}
	return errors.Is(err, rpctypes.ErrTimeout) ||
		errors.Is(err, rpctypes.ErrTimeoutDueToLeaderFail) ||
		errors.Is(err, rpctypes.ErrTimeoutDueToConnectionLost) ||
		errors.Is(err, rpctypes.ErrTooManyRequests) ||
		errors.Is(err, rpctypes.ErrLeaderChanged)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if transient(err) {
		return fmt.Errorf("%w: %v", backend.ErrTryAgain, err)
	}
	return err
}
