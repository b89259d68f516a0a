// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package memstore provides an in-memory [auth.PrincipalRepository] used by
// tests and local tooling. It enforces the same uniqueness rules as the
// Postgres tables and returns the same dberr sentinels.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/platform/dberr"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// Store is safe for concurrent use. Every principal is copied on the way in
// and on the way out, so callers never share state with the store.
type Store struct {
	mu         sync.RWMutex
	principals map[sec.Role]map[string]*auth.Principal
	failure    error
}

// New creates an empty store.
func New() *Store {
	principals := make(map[sec.Role]map[string]*auth.Principal, len(sec.SearchOrder))
	for _, role := range sec.SearchOrder {
		principals[role] = make(map[string]*auth.Principal)
	}
	return &Store{principals: principals}
}

// FailWith makes every subsequent call return err until it is called again
// with nil. Used to simulate an unreachable database.
func (store *Store) FailWith(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.failure = err
}

// FindByID implements auth.PrincipalRepository.
func (store *Store) FindByID(context context.Context, role sec.Role, id string) (*auth.Principal, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if err := store.check(context); err != nil {
		return nil, err
	}

	principal, ok := store.principals[role][id]
	if !ok {
		return nil, fmt.Errorf("find_principal_by_id: %w", dberr.ErrNotFound)
	}
	return clone(principal), nil
}

// FindByEmail implements auth.PrincipalRepository.
func (store *Store) FindByEmail(context context.Context, role sec.Role, email string) (*auth.Principal, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if err := store.check(context); err != nil {
		return nil, err
	}

	for _, principal := range store.principals[role] {
		if email != "" && principal.Email == email {
			return clone(principal), nil
		}
	}
	return nil, fmt.Errorf("find_principal_by_email: %w", dberr.ErrNotFound)
}

// FindStudentByUsername implements auth.PrincipalRepository.
func (store *Store) FindStudentByUsername(context context.Context, username string) (*auth.Principal, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if err := store.check(context); err != nil {
		return nil, err
	}

	for _, principal := range store.principals[sec.RoleStudent] {
		if principal.Username == username {
			return clone(principal), nil
		}
	}
	return nil, fmt.Errorf("find_student_by_username: %w", dberr.ErrNotFound)
}

// Create implements auth.PrincipalRepository.
func (store *Store) Create(context context.Context, principal *auth.Principal) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.check(context); err != nil {
		return err
	}

	table, ok := store.principals[principal.Role]
	if !ok {
		return fmt.Errorf("unknown_principal_role %q: %w", principal.Role, dberr.ErrNotFound)
	}

	if _, exists := table[principal.ID]; exists {
		return fmt.Errorf("create_principal: %s_pkey: %w", principal.Role, dberr.ErrConflict)
	}

	for _, existing := range table {
		if principal.Email != "" && existing.Email == principal.Email {
			return fmt.Errorf("create_principal: %s_email_key: %w", principal.Role, dberr.ErrConflict)
		}
		if principal.Username != "" && existing.Username == principal.Username {
			return fmt.Errorf("create_principal: %s_username_key: %w", principal.Role, dberr.ErrConflict)
		}
	}

	stored := clone(principal)
	if stored.Role == sec.RoleAdministrator && stored.Mfa == nil {
		stored.Mfa = &auth.MfaState{}
	}
	table[principal.ID] = stored
	return nil
}

// UpdateCredential implements auth.PrincipalRepository.
func (store *Store) UpdateCredential(context context.Context, role sec.Role, id string, update auth.CredentialUpdate) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.check(context); err != nil {
		return err
	}

	principal, ok := store.principals[role][id]
	if !ok {
		return fmt.Errorf("update_credential: %w", dberr.ErrNotFound)
	}

	changedAt := update.ChangedAt
	principal.Credential = auth.Credential{
		PasswordHash:       update.PasswordHash,
		TemporaryPassword:  nil,
		MustChangePassword: false,
		LastChangedAt:      &changedAt,
	}
	principal.UpdatedAt = changedAt
	return nil
}

// SaveMfa implements auth.PrincipalRepository.
func (store *Store) SaveMfa(context context.Context, adminID string, state *auth.MfaState) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.check(context); err != nil {
		return err
	}

	principal, ok := store.principals[sec.RoleAdministrator][adminID]
	if !ok {
		return fmt.Errorf("save_mfa: %w", dberr.ErrNotFound)
	}

	if state == nil {
		principal.Mfa = &auth.MfaState{}
		return nil
	}
	principal.Mfa = cloneMfa(state)
	return nil
}

// RemoveBackupCode implements auth.PrincipalRepository. The lookup and the
// removal happen under one write lock.
func (store *Store) RemoveBackupCode(context context.Context, adminID, codeHash string) (bool, int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.check(context); err != nil {
		return false, 0, err
	}

	principal, ok := store.principals[sec.RoleAdministrator][adminID]
	if !ok || principal.Mfa == nil {
		return false, 0, nil
	}

	index := slices.Index(principal.Mfa.BackupCodes, codeHash)
	if index < 0 {
		return false, len(principal.Mfa.BackupCodes), nil
	}

	principal.Mfa.BackupCodes = slices.Delete(principal.Mfa.BackupCodes, index, index+1)
	return true, len(principal.Mfa.BackupCodes), nil
}

func (store *Store) check(context context.Context) error {
	if err := context.Err(); err != nil {
		return fmt.Errorf("%w: %w", dberr.ErrUnavailable, err)
	}
	if store.failure != nil {
		return fmt.Errorf("%w: %w", dberr.ErrUnavailable, store.failure)
	}
	return nil
}

func clone(principal *auth.Principal) *auth.Principal {
	copied := *principal
	copied.Roles = slices.Clone(principal.Roles)
	if principal.GuardianID != nil {
		guardianID := *principal.GuardianID
		copied.GuardianID = &guardianID
	}
	if principal.Credential.TemporaryPassword != nil {
		temporary := *principal.Credential.TemporaryPassword
		copied.Credential.TemporaryPassword = &temporary
	}
	if principal.Credential.LastChangedAt != nil {
		changedAt := *principal.Credential.LastChangedAt
		copied.Credential.LastChangedAt = &changedAt
	}
	if principal.Mfa != nil {
		copied.Mfa = cloneMfa(principal.Mfa)
	}
	return &copied
}

func cloneMfa(state *auth.MfaState) *auth.MfaState {
	return &auth.MfaState{
		Enabled:     state.Enabled,
		Secret:      state.Secret,
		BackupCodes: slices.Clone(state.BackupCodes),
	}
}
