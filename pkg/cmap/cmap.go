// Package cmap provides a typed concurrent map for the offload registries.
//
// All registries in this module share the same access pattern: many
// lock-free readers on the packet path against serialized control-plane
// writers. Map wraps sync.Map with typed keys and values; removed entries
// stay reachable for in-flight readers until the garbage collector
// reclaims them, which supplies the deferred-free discipline the
// registries rely on.
package cmap

import "sync"

// Map is a typed concurrent map. The zero value is ready to use.
type Map[K comparable, V any] struct {
	m sync.Map
}

// Load returns the value stored under key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Store sets the value for key.
func (m *Map[K, V]) Store(key K, val V) {
	m.m.Store(key, val)
}

// LoadOrStore returns the existing value for key if present, otherwise
// stores and returns val. loaded is true if the value was already there.
func (m *Map[K, V]) LoadOrStore(key K, val V) (V, bool) {
	v, loaded := m.m.LoadOrStore(key, val)
	return v.(V), loaded
}

// LoadAndDelete removes key, returning its previous value if any.
func (m *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	v, ok := m.m.LoadAndDelete(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Range calls fn for each entry until fn returns false.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	m.m.Range(func(k, v any) bool {
		return fn(k.(K), v.(V))
	})
}

// Len counts the current entries. O(n); intended for stats and tests.
func (m *Map[K, V]) Len() int {
	n := 0
	m.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
