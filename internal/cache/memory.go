package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"polysignal/internal/model"
)

const shardCount = 16

// Memory is the in-process tier: a TTL map split into shards so that lookups
// for unrelated keys never wait on the same lock.
type Memory struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	articles  []model.ArticleSignal
	expiresAt time.Time
}

func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]memoryEntry)}
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Get returns the entry for key if it has not expired at now.
func (m *Memory) Get(key string, now time.Time) ([]model.ArticleSignal, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		return nil, false
	}
	return e.articles, true
}

// Set stores articles under key until expiresAt and drops anything in the
// same shard that has already expired.
func (m *Memory) Set(key string, articles []model.ArticleSignal, expiresAt, now time.Time) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryEntry{articles: articles, expiresAt: expiresAt}
}

// Len counts stored entries, expired or not.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
