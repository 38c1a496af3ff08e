// Package sharded provides a concurrent string-keyed map split across a
// fixed, power-of-two number of independently-locked shards, so that
// unrelated keys never contend on the same mutex.
package sharded

import "sync"

type shard struct {
	mu    sync.RWMutex
	items map[string]any
}

// Map is a fixed-shard-count concurrent map. The zero value is not usable;
// construct with NewMap.
type Map struct {
	shards []*shard
}

// NewMap builds a Map with numShards independently-locked shards. numShards
// must be a power of two.
func NewMap(numShards int) *Map {
	if !isPowerOfTwo(numShards) {
		panic("sharded: numShards must be a power of two")
	}
	m := &Map{shards: make([]*shard, numShards)}
	for i := range m.shards {
		m.shards[i] = &shard{items: make(map[string]any)}
	}
	return m
}

func (m *Map) shardFor(key string) *shard {
	return m.shards[shardIndex(key, len(m.shards))]
}

// Store unconditionally sets key to value.
func (m *Map) Store(key string, value any) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// Load returns the value stored for key, if any.
func (m *Map) Load(key string) (value any, ok bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	value, ok = s.items[key]
	s.mu.RUnlock()
	return value, ok
}

// LoadOrStore returns the existing value for key if present; otherwise it
// stores and returns value. loaded is true iff an existing value was
// returned.
func (m *Map) LoadOrStore(key string, value any) (actual any, loaded bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	actual, loaded = s.items[key]
	if !loaded {
		actual = value
		s.items[key] = value
	}
	s.mu.Unlock()
	return actual, loaded
}

// DeleteIf removes key only if the stored value satisfies pred, returning
// whether it was removed. Used by callers that must check a reference count
// (or similar) atomically with the removal, under the shard's own lock.
func (m *Map) DeleteIf(key string, pred func(value any) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok || !pred(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// Delete unconditionally removes key.
func (m *Map) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Count returns the total number of entries across all shards.
func (m *Map) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls f for every key/value pair. Iteration locks one shard at a
// time; f must not mutate the map it is ranging over.
func (m *Map) Range(f func(key string, value any) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !f(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
