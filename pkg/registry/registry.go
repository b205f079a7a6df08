// Package registry provides the concurrency-safe keyed collection the
// agent registry is built on.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Keyed holds values under unique, non-empty string keys. All methods
// are safe for concurrent use; iteration order is sorted by key.
type Keyed[T any] struct {
	mu     sync.RWMutex
	values map[string]T
}

func NewKeyed[T any]() *Keyed[T] {
	return &Keyed[T]{values: make(map[string]T)}
}

// Put stores value under key. Storing under an occupied key is an
// error; the existing value is never replaced.
func (k *Keyed[T]) Put(key string, value T) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.values[key]; exists {
		return fmt.Errorf("key '%s' already in use", key)
	}
	k.values[key] = value
	return nil
}

func (k *Keyed[T]) Get(key string) (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	value, exists := k.values[key]
	return value, exists
}

func (k *Keyed[T]) Has(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	_, exists := k.values[key]
	return exists
}

// Keys returns every key in sorted order.
func (k *Keyed[T]) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]string, 0, len(k.values))
	for key := range k.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Values returns every value, ordered by key.
func (k *Keyed[T]) Values() []T {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]string, 0, len(k.values))
	for key := range k.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make([]T, 0, len(keys))
	for _, key := range keys {
		values = append(values, k.values[key])
	}
	return values
}

// Delete removes key and reports whether it was present.
func (k *Keyed[T]) Delete(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, exists := k.values[key]
	delete(k.values, key)
	return exists
}

func (k *Keyed[T]) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.values)
}

// Clear drops every entry.
func (k *Keyed[T]) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.values = make(map[string]T)
}

// Swap atomically replaces the whole contents with values and returns
// the previous values, ordered by key. Readers see either the old set
// or the new one, never a mix. The given map is owned by the
// collection afterwards.
func (k *Keyed[T]) Swap(values map[string]T) []T {
	if values == nil {
		values = make(map[string]T)
	}

	k.mu.Lock()
	previous := k.values
	k.values = values
	k.mu.Unlock()

	keys := make([]string, 0, len(previous))
	for key := range previous {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	old := make([]T, 0, len(keys))
	for _, key := range keys {
		old = append(old, previous[key])
	}
	return old
}
