// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Principal Data Access

// PrincipalRepository defines the data access contract for the four principal
// tables. Each role lives in its own table and emails are unique per table,
// so every lookup is qualified by role.
//
// Errors are classified with the dberr sentinels: dberr.ErrNotFound for a
// missing row, dberr.ErrConflict for a duplicate email or username, and
// dberr.ErrUnavailable when the store cannot be reached in time.
type PrincipalRepository interface {

	/*
		FindByID returns the principal with the given id in the role's table.

		Parameters:
		  - context: context.Context
		  - role: sec.Role
		  - id: string

		Returns:
		  - *Principal: Hydrated entity, credential and MFA state included
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindByID(context context.Context, role sec.Role, id string) (*Principal, error)

	/*
		FindByEmail returns the principal with the given email in the role's table.

		Parameters:
		  - context: context.Context
		  - role: sec.Role
		  - email: string (already normalized)

		Returns:
		  - *Principal: Hydrated entity
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindByEmail(context context.Context, role sec.Role, email string) (*Principal, error)

	/*
		FindStudentByUsername returns the student with the given username.

		Parameters:
		  - context: context.Context
		  - username: string (already normalized)

		Returns:
		  - *Principal: Hydrated student
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindStudentByUsername(context context.Context, username string) (*Principal, error)

	/*
		Create persists a brand-new principal in its role's table.

		Parameters:
		  - context: context.Context
		  - principal: *Principal

		Returns:
		  - error: dberr.ErrConflict on duplicate email/username, or persistence failures
	*/
	Create(context context.Context, principal *Principal) error

	/*
		UpdateCredential replaces the password hash and, in the same statement,
		clears the temporary password and the must-change flag.

		Parameters:
		  - context: context.Context
		  - role: sec.Role
		  - id: string
		  - update: CredentialUpdate

		Returns:
		  - error: dberr.ErrNotFound or persistence failures
	*/
	UpdateCredential(context context.Context, role sec.Role, id string, update CredentialUpdate) error

	/*
		SaveMfa overwrites an administrator's MFA state. A nil state clears it.

		Parameters:
		  - context: context.Context
		  - adminID: string
		  - state: *MfaState

		Returns:
		  - error: dberr.ErrNotFound or persistence failures
	*/
	SaveMfa(context context.Context, adminID string, state *MfaState) error

	/*
		RemoveBackupCode atomically removes one backup-code hash if it is still
		present. Two concurrent calls for the same hash see exactly one removal.

		Parameters:
		  - context: context.Context
		  - adminID: string
		  - codeHash: string (the stored bcrypt hash that matched)

		Returns:
		  - bool: true if this call removed the hash
		  - int: number of codes left after the call
		  - error: persistence failures
	*/
	RemoveBackupCode(context context.Context, adminID, codeHash string) (removed bool, remaining int, err error)
}

// CredentialUpdate is the payload of [PrincipalRepository.UpdateCredential].
type CredentialUpdate struct {
	PasswordHash string
	ChangedAt    time.Time
}
