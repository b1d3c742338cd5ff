// Package auth provides API key validation for the gateway.
package auth

import "sync/atomic"

// KeySet is an immutable snapshot of the valid API key values. Key names
// from the secret backend are discarded at construction; only the values
// matter for validation. A KeySet is never mutated after NewKeySet.
type KeySet struct {
	keys map[string]struct{}
}

// NewKeySet builds a snapshot from a name-to-key mapping, keeping only
// the values.
func NewKeySet(named map[string]string) *KeySet {
	keys := make(map[string]struct{}, len(named))
	for _, v := range named {
		keys[v] = struct{}{}
	}
	return &KeySet{keys: keys}
}

// EmptyKeySet returns a snapshot containing no keys.
func EmptyKeySet() *KeySet {
	return &KeySet{keys: map[string]struct{}{}}
}

// Contains reports whether key is a member of the snapshot.
func (s *KeySet) Contains(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys in the snapshot.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// Cache is the process-wide holder of the current KeySet. Reads are
// lock-free; Replace swaps the whole snapshot in a single atomic pointer
// store, so a reader mid-lookup sees either the old or the new set,
// never a partially updated one.
type Cache struct {
	current atomic.Pointer[KeySet]
}

// NewCache creates a cache initialized to the empty set, so the gateway
// fails closed until the first successful key load.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(EmptyKeySet())
	return c
}

// Get returns the current snapshot. The returned set stays internally
// consistent even if Replace runs concurrently.
func (c *Cache) Get() *KeySet {
	return c.current.Load()
}

// Replace atomically swaps the current snapshot.
func (c *Cache) Replace(s *KeySet) {
	if s == nil {
		s = EmptyKeySet()
	}
	c.current.Store(s)
}

// Len returns the size of the current snapshot.
func (c *Cache) Len() int {
	return c.current.Load().Len()
}
