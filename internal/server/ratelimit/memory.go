package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/safelog/internal/clock"
)

var errCapacity = errors.New("rate limiter capacity exceeded")

type memoryBucket struct {
	count     int
	windowEnd time.Time
}

// Memory is a per-process fixed-window limiter holding at most maxKeys
// live windows.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	data    map[string]*memoryBucket
	maxKeys int
}

func NewMemory(clk clock.Clock, maxKeys int) *Memory {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &Memory{clock: clk, data: map[string]*memoryBucket{}, maxKeys: maxKeys}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[key]
	if !ok || !now.Before(bucket.windowEnd) {
		if !ok && len(m.data) >= m.maxKeys {
			m.gc(now)
			if len(m.data) >= m.maxKeys {
				return Decision{}, errCapacity
			}
		}
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.data[key] = bucket
	}

	if bucket.count < limit {
		bucket.count++
		return Decision{Allowed: true, Limit: limit, Remaining: limit - bucket.count, ResetAt: bucket.windowEnd}, nil
	}
	return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: bucket.windowEnd}, nil
}

func (m *Memory) gc(now time.Time) {
	for key, b := range m.data {
		if !now.Before(b.windowEnd) {
			delete(m.data, key)
		}
	}
}
