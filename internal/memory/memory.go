// Package memory implements per-model memory accounting, reference-
// counted pinning, and LRU eviction-candidate selection (spec.md §4.6).
// All state is protected by a single mutex, mirroring the single-owner
// shared-table pattern used by the teacher's service registry
// (internal/orchestrator/registry.go).
package memory

import (
	"sort"
	"sync"

	"github.com/voiced-ai/voiced/errs"
)

// Handle is the runtime's opaque model identifier (spec.md §3).
type Handle uint64

// Account is the per-handle bookkeeping record.
type Account struct {
	SizeBytes      int64
	RefCount       int
	LastAccessTick uint64
}

// Manager tracks memory accounts for all loaded models across every engine.
type Manager struct {
	mu           sync.Mutex
	capacity     int64
	accounts     map[Handle]*Account
	tick         uint64
}

// NewManager creates a Manager with a configured capacity in bytes.
func NewManager(capacityBytes int64) *Manager {
	return &Manager{capacity: capacityBytes, accounts: map[Handle]*Account{}}
}

func (m *Manager) nextTick() uint64 {
	m.tick++
	return m.tick
}

// TrackAllocation registers a newly loaded handle with refcount 0 and a fresh tick.
func (m *Manager) TrackAllocation(h Handle, sizeBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[h] = &Account{SizeBytes: sizeBytes, LastAccessTick: m.nextTick()}
}

// TrackDeallocation removes h's account entirely.
func (m *Manager) TrackDeallocation(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, h)
}

// RecordAccess bumps h's tick to a new process-wide maximum.
func (m *Manager) RecordAccess(h Handle) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[h]
	if !ok {
		return invalidHandle()
	}
	acc.LastAccessTick = m.nextTick()
	return nil
}

// IncrementRefCount pins h, preventing it from being selected for eviction.
func (m *Manager) IncrementRefCount(h Handle) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[h]
	if !ok {
		return invalidHandle()
	}
	acc.RefCount++
	return nil
}

// DecrementRefCount unpins h. Decrementing at zero is a logic error.
func (m *Manager) DecrementRefCount(h Handle) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[h]
	if !ok {
		return invalidHandle()
	}
	if acc.RefCount == 0 {
		return errs.New(errs.InvalidInputParameterValue, "attempted to unpin a handle with a zero refcount", "decrementRefCount called when refcount was already zero").WithRecovery("match every increment with exactly one decrement")
	}
	acc.RefCount--
	return nil
}

// GetLRUModel returns the unpinned account with the smallest tick, or
// (0, false) if no unpinned account exists.
func (m *Manager) GetLRUModel() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lruLocked()
}

func (m *Manager) lruLocked() (Handle, bool) {
	var best Handle
	var bestTick uint64
	found := false
	for h, acc := range m.accounts {
		if acc.RefCount != 0 {
			continue
		}
		if !found || acc.LastAccessTick < bestTick {
			best, bestTick, found = h, acc.LastAccessTick, true
		}
	}
	return best, found
}

// GetEvictionCandidates returns unpinned handles in LRU order whose
// cumulative size is at least requiredBytes, or exhausts the unpinned set.
func (m *Manager) GetEvictionCandidates(requiredBytes int64) []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		handle Handle
		acc    *Account
	}
	unpinned := make([]entry, 0, len(m.accounts))
	for h, acc := range m.accounts {
		if acc.RefCount == 0 {
			unpinned = append(unpinned, entry{h, acc})
		}
	}
	sort.Slice(unpinned, func(i, j int) bool {
		return unpinned[i].acc.LastAccessTick < unpinned[j].acc.LastAccessTick
	})

	var cumulative int64
	out := make([]Handle, 0, len(unpinned))
	for _, e := range unpinned {
		if cumulative >= requiredBytes {
			break
		}
		out = append(out, e.handle)
		cumulative += e.acc.SizeBytes
	}
	return out
}

// GetTotalMemoryUsage sums SizeBytes across every tracked account.
func (m *Manager) GetTotalMemoryUsage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, acc := range m.accounts {
		total += acc.SizeBytes
	}
	return total
}

// GetModelMemoryUsage returns h's size, or (0, false) if untracked.
func (m *Manager) GetModelMemoryUsage(h Handle) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[h]
	if !ok {
		return 0, false
	}
	return acc.SizeBytes, true
}

// Capacity returns the configured memory capacity in bytes.
func (m *Manager) Capacity() int64 {
	return m.capacity
}

func invalidHandle() *errs.Error {
	return errs.New(errs.InvalidInputModelHandle, "the given model handle is not tracked by this memory manager", "handle was never allocated, or was already deallocated").WithRecovery("load the model before operating on its handle")
}
