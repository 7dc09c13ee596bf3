// Package local keeps cells and locks in process memory. It provides the
// full backend contract without the distributed part, which makes it the
// backend of choice for tests and single-process tools: semantics identical
// to the real backends, no daemon to run.
//
// Every Dial returns its own isolated universe. Two connections never share
// state, even when dialed with the same endpoint string.
package local

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/casseq/backend"
)

type cell struct {
	value   []byte
	version int64
}

type Local struct {
	mu     sync.Mutex
	cells  map[string]cell
	locks  map[string]bool // path -> held
	closed bool
}

var _ backend.Conn = (*Local)(nil)

func New() *Local {
	return &Local{
		cells: make(map[string]cell),
		locks: make(map[string]bool),
	}
}

// Dial ignores the endpoint and returns a fresh empty store. It satisfies
// casseq.DialFunc.
func Dial(context.Context, string) (backend.Conn, error) {
	return New(), nil
}

func (l *Local) Load(ctx context.Context, path string) (backend.Cell, error) {
	if err := ctx.Err(); err != nil {
		return backend.Cell{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return backend.Cell{}, backend.ErrClosed
	}
	c, ok := l.cells[path]
	if !ok {
		return backend.Cell{}, nil
	}
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return backend.Cell{Value: out, Version: c.version, Exists: true}, nil
}

func (l *Local) Store(ctx context.Context, path string, value []byte, version int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, backend.ErrClosed
	}
	c, ok := l.cells[path]
	switch {
	case !ok && version != 0:
		return false, nil
	case ok && c.version != version:
		return false, nil
	}
	l.cells[path] = cell{value: append([]byte(nil), value...), version: version + 1}
	return true, nil
}

func (l *Local) ForceStore(ctx context.Context, path string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return backend.ErrClosed
	}
	c := l.cells[path]
	l.cells[path] = cell{value: append([]byte(nil), value...), version: c.version + 1}
	return nil
}

func (l *Local) Locker(path string) backend.Mutex {
	return &mutex{l: l, path: path}
}

func (l *Local) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

type mutex struct {
	l    *Local
	path string
	held bool
}

func (m *mutex) TryAcquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if m.l.closed {
		return false, backend.ErrClosed
	}
	if m.l.locks[m.path] {
		return false, nil
	}
	m.l.locks[m.path] = true
	m.held = true
	return true, nil
}

func (m *mutex) Release(ctx context.Context) error {
	if !m.held {
		return backend.ErrNotHeld
	}
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if m.l.closed {
		return backend.ErrClosed
	}
	delete(m.l.locks, m.path)
	m.held = false
	return nil
}
