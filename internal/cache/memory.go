// Package cache implements the idempotency cache that deduplicates
// charges per customer inside a time window.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/telemetry"
	"go.uber.org/zap"
)

type entry struct {
	charge   *domain.Charge
	storedAt time.Time
}

// Memory is the in-process store. Entries live for one window; an entry
// exactly at the window boundary is already expired. Growth is bounded by
// a fixed capacity (oldest entry evicted) and a janitor goroutine sweeps
// expired entries between requests.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]entry
	window   time.Duration
	capacity int

	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates the store and starts its janitor. Close stops it.
func NewMemory(window time.Duration, capacity int) *Memory {
	if capacity <= 0 {
		capacity = 10000
	}
	m := &Memory{
		entries:  make(map[string]entry),
		window:   window,
		capacity: capacity,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Lookup returns the charge cached for a CPF when its age is strictly
// inside the window. A stale entry is deleted on the spot and reported
// as a miss.
func (m *Memory) Lookup(_ context.Context, cpf string) (*domain.Charge, bool) {
	key := normalizeKey(cpf)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.storedAt) < m.window {
		return e.charge, true
	}
	delete(m.entries, key)
	return nil, false
}

// Store records the charge for a CPF, overwriting any previous entry and
// stamping the current time. At capacity, the oldest entry makes room.
func (m *Memory) Store(_ context.Context, cpf string, charge *domain.Charge) {
	key := normalizeKey(cpf)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.capacity {
		m.evictOldestLocked()
	}
	m.entries[key] = entry{charge: charge, storedAt: m.now()}
}

// SweepExpired removes every entry past the window and reports how many
// were dropped.
func (m *Memory) SweepExpired(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if now.Sub(e.storedAt) >= m.window {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the current number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the janitor. Safe to call more than once.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// evictOldestLocked removes the entry with the earliest store time.
// Caller holds the lock.
func (m *Memory) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, e := range m.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = key, e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) janitor() {
	interval := m.window / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := m.SweepExpired(context.Background()); removed > 0 {
				telemetry.Logger.Debug("swept expired cache entries",
					zap.Int("removed", removed))
			}
		case <-m.stop:
			return
		}
	}
}

func normalizeKey(cpf string) string {
	digits := make([]byte, 0, len(cpf))
	for i := 0; i < len(cpf); i++ {
		if cpf[i] >= '0' && cpf[i] <= '9' {
			digits = append(digits, cpf[i])
		}
	}
	return string(digits)
}
