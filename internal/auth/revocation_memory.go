// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationStore implements [RevocationStore] in process memory.
//
// Revocations are visible only to the instance that wrote them, so this store
// is correct for a single-instance deployment only. Expired entries are
// ignored on read and removed by [MemoryRevocationStore.StartJanitor].
type MemoryRevocationStore struct {
	mu         sync.RWMutex
	tokens     map[string]memoryRevocation
	principals map[string]memoryRevocation
	now        func() time.Time
}

type memoryRevocation struct {
	record    RevocationRecord
	expiresAt time.Time
}

// NewMemoryRevocationStore creates an empty store. A nil clock means time.Now.
func NewMemoryRevocationStore(now func() time.Time) *MemoryRevocationStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationStore{
		tokens:     make(map[string]memoryRevocation),
		principals: make(map[string]memoryRevocation),
		now:        now,
	}
}

// RevokeToken implements RevocationStore.
func (store *MemoryRevocationStore) RevokeToken(_ context.Context, record RevocationRecord, ttl time.Duration) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	if existing, ok := store.tokens[record.TokenID]; ok && now.Before(existing.expiresAt) {
		return false, nil
	}

	store.tokens[record.TokenID] = memoryRevocation{record: record, expiresAt: now.Add(ttl)}
	return true, nil
}

// IsTokenRevoked implements RevocationStore.
func (store *MemoryRevocationStore) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	entry, ok := store.tokens[tokenID]
	return ok && store.now().Before(entry.expiresAt), nil
}

// RevokePrincipal implements RevocationStore.
func (store *MemoryRevocationStore) RevokePrincipal(_ context.Context, record RevocationRecord, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.principals[record.PrincipalID] = memoryRevocation{record: record, expiresAt: store.now().Add(ttl)}
	return nil
}

// PrincipalRevokedSince implements RevocationStore.
func (store *MemoryRevocationStore) PrincipalRevokedSince(_ context.Context, principalID string) (time.Time, bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	entry, ok := store.principals[principalID]
	if !ok || !store.now().Before(entry.expiresAt) {
		return time.Time{}, false, nil
	}
	return entry.record.RevokedAt, true, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (store *MemoryRevocationStore) Sweep() int {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	removed := 0
	for _, entries := range []map[string]memoryRevocation{store.tokens, store.principals} {
		for key, entry := range entries {
			if !now.Before(entry.expiresAt) {
				delete(entries, key)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (store *MemoryRevocationStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.tokens) + len(store.principals)
}

// StartJanitor sweeps the store every interval until ctx is cancelled or the
// returned stop function is called.
func (store *MemoryRevocationStore) StartJanitor(ctx context.Context, interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.Sweep()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
