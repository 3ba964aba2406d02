package lock

import (
	"context"
	"sync"
	"time"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Memory is an in-process keyed lock. It is sufficient when a single process
// owns all writes (tests, single-node deployments); multi-process deployments
// use the Redis lease instead.
type Memory struct {
	mu   sync.Mutex
	keys map[string]*memEntry
	wait time.Duration
}

type memEntry struct {
	ch   chan struct{}
	refs int
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		keys: make(map[string]*memEntry),
		wait: DefaultWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type MemoryOption func(*Memory)

// WithWait overrides the acquisition wait bound.
func WithWait(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.wait = d
		}
	}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.keys[key]
	if !ok {
		e = &memEntry{ch: make(chan struct{}, 1)}
		m.keys[key] = e
	}
	e.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.keys, key)
			}
			m.mu.Unlock()
		}, nil
	case <-timer.C:
		m.drop(key, e)
		return nil, domain.ErrLockTimeout
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}
}

func (m *Memory) drop(key string, e *memEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.keys, key)
	}
	m.mu.Unlock()
}
