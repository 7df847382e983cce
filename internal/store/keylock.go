package store

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLock hands out one single-slot semaphore per key. In-process stores
// use it to serialize balance recomputation per partner.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*semaphore.Weighted)}
}

func (k *KeyedLock) get(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.locks[key]; !exists {
		k.locks[key] = semaphore.NewWeighted(1)
	}
	return k.locks[key]
}

// Do runs fn while holding key's lock. It gives up with ErrContention once
// ctx is done.
func (k *KeyedLock) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	sem := k.get(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("locking %s: %w", key, ErrContention)
	}
	defer sem.Release(1)
	return fn(ctx)
}
