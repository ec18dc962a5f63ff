// Package keylock provides per-key advisory locking with a bounded wait.
//
// The routing engine serializes all mutation for one document behind a lock
// keyed by the document id; the same pattern is used elsewhere in the system
// for business-number generation. Acquisition never blocks indefinitely: a
// caller that cannot take the lock within its wait budget gets an error
// instead of queueing forever.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout indicates the lock could not be acquired within the wait budget.
var ErrWaitTimeout = errors.New("keylock: wait timeout exceeded")

// DefaultWait is the wait budget used when the caller passes a non-positive one.
const DefaultWait = 2 * time.Second

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyLock is a set of independent mutexes addressed by string key. Idle keys
// hold no memory.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{
		entries: make(map[string]*entry),
	}
}

// Acquire takes the lock for key, waiting at most wait (DefaultWait if
// non-positive). On success it returns a release function that must be called
// exactly once. Context cancellation also aborts the wait.
func (k *KeyLock) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	if wait <= 0 {
		wait = DefaultWait
	}

	e := k.retain(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch

			k.release(key)
		}, nil
	case <-timer.C:
		k.release(key)

		return nil, ErrWaitTimeout
	case <-ctx.Done():
		k.release(key)

		return nil, ctx.Err()
	}
}

func (k *KeyLock) retain(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}

	e.refs++

	return e
}

func (k *KeyLock) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return
	}

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
