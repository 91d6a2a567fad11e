// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe registry of live sessions, used to shut every
// connection down when a server stops.

package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Manager tracks live sessions by ID.
type Manager struct {
	shards []*sessionShard
	mask   uint32
	count  atomic.Int64
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a sharded manager with shardCount shards.
func NewManager(shardCount int) *Manager {
	if shardCount <= 0 {
		shardCount = 16
	}
	// find power-of-two shards for bitmasking
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*sessionShard, m)
	for i := range shards {
		shards[i] = &sessionShard{sessions: make(map[string]*Session)}
	}
	return &Manager{shards: shards, mask: m - 1}
}

// shard picks the correct shard for a given id.
func (m *Manager) shard(id string) *sessionShard {
	return m.shards[fnv32(id)&m.mask]
}

// Add registers s. It returns false if a session with the same ID is present.
func (m *Manager) Add(s *Session) bool {
	sh := m.shard(s.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[s.ID()]; ok {
		return false
	}
	sh.sessions[s.ID()] = s
	m.count.Add(1)
	return true
}

// Get fetches a session if present.
func (m *Manager) Get(id string) (*Session, bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove forgets the session without shutting it down.
func (m *Manager) Remove(id string) bool {
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	m.count.Add(-1)
	return true
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int { return int(m.count.Load()) }

// Range applies fn to a snapshot of all sessions until fn returns false.
func (m *Manager) Range(fn func(*Session) bool) {
	for _, s := range m.snapshot() {
		if !fn(s) {
			return
		}
	}
}

// ShutdownAll shuts every tracked session down and returns how many there were.
func (m *Manager) ShutdownAll() int {
	all := m.snapshot()
	for _, s := range all {
		s.Shutdown()
	}
	return len(all)
}

// snapshot copies the sessions out so callbacks never run under a shard lock.
func (m *Manager) snapshot() []*Session {
	out := make([]*Session, 0, m.Len())
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
