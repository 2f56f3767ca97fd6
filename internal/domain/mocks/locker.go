package mocks

import (
	"context"
	"sync"
)

// Locker is an in-process ports.KeyedLocker that records every key it locks.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	Err   error
	Keys  []string
}

// Lock blocks until the key is free.
func (l *Locker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.Err != nil {
		l.mu.Unlock()
		return nil, l.Err
	}
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.Keys = append(l.Keys, key)
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
