// Package redis maps the backend contract onto a plain Redis deployment.
//
// Cells live in ordinary keys, framed by internal/wire so each carries its
// own version; compare-and-set runs as WATCH + MULTI/EXEC, so any racing
// write aborts the transaction and surfaces as a clean conflict. Locks are
// SET NX PX with a random owner token and a compare-and-delete release, so
// a crashed holder frees its lock when the TTL runs out and a slow holder
// can never delete a successor's lock.
//
// The generator never deletes counter keys. Deleting one out-of-band while
// calls are in flight discards its version history and is not supported.
package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/casseq/backend"
	"github.com/unkn0wn-root/casseq/internal/wire"
)

var (
	ErrNilClient = errors.New("redis backend: nil client")

	// ErrLockLost reports a release that found someone else's token: the
	// TTL ran out mid-hold and the lock moved on.
	ErrLockLost = errors.New("redis backend: lock lost before release")
)

// Session defaults mirror the reference deployment: one transport retry two
// seconds later, three-second dial and op deadlines.
const (
	dialTimeout  = 3 * time.Second
	opTimeout    = 3 * time.Second
	retryBackoff = 2 * time.Second

	// DefaultLockTTL caps how long a crashed holder can wedge a namespace.
	// Live holders finish far sooner; the TTL is the crash backstop.
	DefaultLockTTL = 30 * time.Second
)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	lockTTL     time.Duration
	closed      atomic.Bool
}

var _ backend.Conn = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client
	LockTTL     time.Duration
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, lockTTL: ttl}, nil
}

// Dial builds a client with the session defaults, verifies the endpoint
// answers a ping and returns an owning backend. It satisfies casseq.DialFunc.
func Dial(ctx context.Context, endpoint string) (backend.Conn, error) {
	cl := goredis.NewClient(&goredis.Options{
		Addr:            endpoint,
		DialTimeout:     dialTimeout,
		ReadTimeout:     opTimeout,
		WriteTimeout:    opTimeout,
		MaxRetries:      1,
		MinRetryBackoff: retryBackoff,
		MaxRetryBackoff: retryBackoff,
	})
	pctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := cl.Ping(pctx).Err(); err != nil {
		_ = cl.Close()
		return nil, err
	}
	return &Redis{rdb: cl, closeClient: true, lockTTL: DefaultLockTTL}, nil
}

func (r *Redis) Load(ctx context.Context, path string) (backend.Cell, error) {
	if r.closed.Load() {
		return backend.Cell{}, backend.ErrClosed
	}
	b, err := r.rdb.Get(ctx, path).Bytes()
	if err == goredis.Nil {
		return backend.Cell{}, nil
	}
	if err != nil {
		return backend.Cell{}, r.mapErr(err)
	}
	ver, payload, err := wire.DecodeCell(b)
	if err != nil {
		return backend.Cell{}, err
	}
	return backend.Cell{Value: payload, Version: int64(ver), Exists: true}, nil
}

func (r *Redis) Store(ctx context.Context, path string, value []byte, version int64) (bool, error) {
	if r.closed.Load() {
		return false, backend.ErrClosed
	}
	applied := false
	err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, path).Bytes()
		switch {
		case err == goredis.Nil:
			if version != 0 {
				return nil // cell vanished since the caller's read
			}
		case err != nil:
			return err
		default:
			got, _, derr := wire.DecodeCell(cur)
			if derr != nil {
				return derr
			}
			if got != uint64(version) {
				return nil // someone wrote in between
			}
		}
		next := wire.EncodeCell(uint64(version)+1, value)
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, path, next, 0)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, path)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil // watched key changed under us
	}
	if err != nil {
		return false, r.mapErr(err)
	}
	return applied, nil
}

func (r *Redis) ForceStore(ctx context.Context, path string, value []byte) error {
	if r.closed.Load() {
		return backend.ErrClosed
	}
	for {
		err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			ver := uint64(0)
			cur, err := tx.Get(ctx, path).Bytes()
			if err != nil && err != goredis.Nil {
				return err
			}
			if err == nil {
				if ver, _, err = wire.DecodeCell(cur); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, path, wire.EncodeCell(ver+1, value), 0)
				return nil
			})
			return err
		}, path)
		if !errors.Is(err, goredis.TxFailedErr) {
			return r.mapErr(err)
		}
		// Lost to a racing writer; take a fresh version snapshot and retry.
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *Redis) Locker(path string) backend.Mutex {
	return &mutex{r: r, path: path, token: uuid.NewString()}
}

// Close releases the underlying client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (r *Redis) mapErr(err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return backend.ErrClosed
	}
	return err
}

// unlockScript deletes the lock key only when it still carries our token.
var unlockScript = goredis.NewScript(
	"if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end")

type mutex struct {
	r     *Redis
	path  string
	token string
	held  bool
}

func (m *mutex) TryAcquire(ctx context.Context) (bool, error) {
	if m.r.closed.Load() {
		return false, backend.ErrClosed
	}
	ok, err := m.r.rdb.SetNX(ctx, m.path, m.token, m.r.lockTTL).Result()
	if err != nil {
		return false, m.r.mapErr(err)
	}
	m.held = ok
	return ok, nil
}

func (m *mutex) Release(ctx context.Context) error {
	if !m.held {
		return backend.ErrNotHeld
	}
	if m.r.closed.Load() {
		return backend.ErrClosed
	}
	n, err := unlockScript.Run(ctx, m.r.rdb, []string{m.path}, m.token).Int()
	if err != nil {
		return m.r.mapErr(err)
	}
	m.held = false
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
