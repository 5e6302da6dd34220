// Package classcache is the process-wide, set-once class cache of
// spec.md's shared-resource policy: a map from class hash to compiled
// class, independent of the KV store, safe for concurrent reads, and
// refusing a second Init with ErrAlreadyInitialized rather than quietly
// replacing itself out from under live readers.
package classcache

import (
	"sync"
	"sync/atomic"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv/kverrors"
)

// Cache is a read-mostly, concurrency-safe map from class hash to its
// compiled class. The zero value is not usable; build one with Init.
type Cache struct {
	mu      sync.RWMutex
	classes map[types.FeltKey]*types.ContractClass
}

var (
	global     atomic.Pointer[Cache]
	initCalled int32
)

// Init builds the process-wide cache exactly once. A second call
// returns ErrAlreadyInitialized and leaves the existing cache untouched.
func Init() (*Cache, error) {
	if !atomic.CompareAndSwapInt32(&initCalled, 0, 1) {
		return nil, kverrors.ErrAlreadyInitialized
	}
	c := &Cache{classes: make(map[types.FeltKey]*types.ContractClass)}
	global.Store(c)
	return c, nil
}

// Global returns the process-wide cache, or nil if Init has not run yet.
func Global() *Cache {
	return global.Load()
}

// Get returns the cached compiled class for hash, if present.
func (c *Cache) Get(hash *felt.Felt) (*types.ContractClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.classes[types.NewFeltKey(hash)]
	return v, ok
}

// Put caches class under hash, overwriting any previous entry — classes
// are content-addressed, so a repeated Put for the same hash always
// carries an identical value.
func (c *Cache) Put(hash *felt.Felt, class *types.ContractClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[types.NewFeltKey(hash)] = class
}

// Len reports the number of cached classes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.classes)
}

// resetForTest clears the package-level singleton so tests can call Init
// more than once within a process. Not exported.
func resetForTest() {
	atomic.StoreInt32(&initCalled, 0)
	global.Store(nil)
}
