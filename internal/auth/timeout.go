// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Store Deadlines
//
// Each store round trip gets its own deadline. A call that runs out of time
// fails with a context error, which the repositories classify as unavailable
// and the services surface as a retryable 503.

// BoundPrincipalRepository wraps repository so every call runs under timeout.
// A non-positive timeout returns repository unchanged.
func BoundPrincipalRepository(repository PrincipalRepository, timeout time.Duration) PrincipalRepository {
	if timeout <= 0 {
		return repository
	}
	if bounded, ok := repository.(*boundedRepository); ok {
		repository = bounded.next
	}
	return &boundedRepository{next: repository, timeout: timeout}
}

type boundedRepository struct {
	next    PrincipalRepository
	timeout time.Duration
}

func (repository *boundedRepository) FindByID(parent context.Context, role sec.Role, id string) (*Principal, error) {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.FindByID(ctx, role, id)
}

func (repository *boundedRepository) FindByEmail(parent context.Context, role sec.Role, email string) (*Principal, error) {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.FindByEmail(ctx, role, email)
}

func (repository *boundedRepository) FindStudentByUsername(parent context.Context, username string) (*Principal, error) {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.FindStudentByUsername(ctx, username)
}

func (repository *boundedRepository) Create(parent context.Context, principal *Principal) error {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.Create(ctx, principal)
}

func (repository *boundedRepository) UpdateCredential(parent context.Context, role sec.Role, id string, update CredentialUpdate) error {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.UpdateCredential(ctx, role, id, update)
}

func (repository *boundedRepository) SaveMfa(parent context.Context, adminID string, state *MfaState) error {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.SaveMfa(ctx, adminID, state)
}

func (repository *boundedRepository) RemoveBackupCode(parent context.Context, adminID, codeHash string) (bool, int, error) {
	ctx, cancel := context.WithTimeout(parent, repository.timeout)
	defer cancel()
	return repository.next.RemoveBackupCode(ctx, adminID, codeHash)
}

// BoundRevocationStore wraps store so every call runs under timeout.
// A non-positive timeout returns store unchanged.
func BoundRevocationStore(store RevocationStore, timeout time.Duration) RevocationStore {
	if timeout <= 0 {
		return store
	}
	return &boundedRevocationStore{next: store, timeout: timeout}
}

type boundedRevocationStore struct {
	next    RevocationStore
	timeout time.Duration
}

func (store *boundedRevocationStore) RevokeToken(parent context.Context, record RevocationRecord, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(parent, store.timeout)
	defer cancel()
	return store.next.RevokeToken(ctx, record, ttl)
}

func (store *boundedRevocationStore) IsTokenRevoked(parent context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(parent, store.timeout)
	defer cancel()
	return store.next.IsTokenRevoked(ctx, tokenID)
}

func (store *boundedRevocationStore) RevokePrincipal(parent context.Context, record RevocationRecord, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, store.timeout)
	defer cancel()
	return store.next.RevokePrincipal(ctx, record, ttl)
}

func (store *boundedRevocationStore) PrincipalRevokedSince(parent context.Context, principalID string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(parent, store.timeout)
	defer cancel()
	return store.next.PrincipalRevokedSince(ctx, principalID)
}
