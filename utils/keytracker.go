package utils

import "sync"

// KeyTracker is a concurrency-safe set of string keys. It backs in-batch
// dedup and the process-local in-flight refresh guard.
type KeyTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewKeyTracker creates an empty tracker
func NewKeyTracker() *KeyTracker {
	return &KeyTracker{seen: make(map[string]struct{})}
}

// Add returns true if the key is new (not tracked before), false if duplicate
func (t *KeyTracker) Add(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.seen[key]; exists {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// Remove forgets a key so it can be added again.
func (t *KeyTracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
}

// Count returns the number of tracked keys
func (t *KeyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
