// Package keylock provides per-key mutual exclusion. Operations against
// different keys proceed independently; operations against the same key
// serialize.
package keylock

import "sync"

// KeyLock hands out one mutex per key. Mutexes are created lazily and kept
// for the lifetime of the lock set; keys are bounded by the number of live
// crisis records, which are never deleted.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty key lock set.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyLock) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock blocks until the key's mutex is held.
func (k *KeyLock) Lock(key string) {
	k.get(key).Lock()
}

// TryLock acquires the key's mutex without blocking. Returns false if the
// key is already held.
func (k *KeyLock) TryLock(key string) bool {
	return k.get(key).TryLock()
}

// Unlock releases the key's mutex.
func (k *KeyLock) Unlock(key string) {
	k.get(key).Unlock()
}
