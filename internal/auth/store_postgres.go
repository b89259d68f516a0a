// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/campus/internal/platform/database/schema"
	"github.com/taibuivan/campus/internal/platform/dberr"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/pkg/pointer"
	"github.com/taibuivan/campus/pkg/uuid"
)

// PostgresPrincipalRepository implements [PrincipalRepository] over the four
// identity.<role> tables.
type PostgresPrincipalRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPrincipalRepository creates a new Postgres-backed PrincipalRepository.
func NewPostgresPrincipalRepository(db *pgxpool.Pool) *PostgresPrincipalRepository {
	return &PostgresPrincipalRepository{db: db}
}

/*
FindByID returns the principal with the given id in the role's table.

Description: Malformed ids never reach the database; they resolve to
dberr.ErrNotFound exactly like a missing row.

Parameters:
  - context: context.Context
  - role: sec.Role
  - id: string

Returns:
  - *Principal: Hydrated entity
  - error: dberr.ErrNotFound or classified database errors
*/
func (repository *PostgresPrincipalRepository) FindByID(context context.Context, role sec.Role, id string) (*Principal, error) {
	if !uuid.IsValid(id) {
		return nil, fmt.Errorf("find_principal_by_id: %w", dberr.ErrNotFound)
	}

	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}

	return repository.findOne(context, role, table, table.ID, id, "find_principal_by_id")
}

/*
FindByEmail returns the principal with the given email in the role's table.

Parameters:
  - context: context.Context
  - role: sec.Role
  - email: string

Returns:
  - *Principal: Hydrated entity
  - error: dberr.ErrNotFound or classified database errors
*/
func (repository *PostgresPrincipalRepository) FindByEmail(context context.Context, role sec.Role, email string) (*Principal, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}

	return repository.findOne(context, role, table, table.Email, email, "find_principal_by_email")
}

/*
FindStudentByUsername returns the student with the given username.

Parameters:
  - context: context.Context
  - username: string

Returns:
  - *Principal: Hydrated student
  - error: dberr.ErrNotFound or classified database errors
*/
func (repository *PostgresPrincipalRepository) FindStudentByUsername(context context.Context, username string) (*Principal, error) {
	return repository.findOne(context, sec.RoleStudent, schema.Student, schema.Student.Username, username, "find_student_by_username")
}

func (repository *PostgresPrincipalRepository) findOne(context context.Context, role sec.Role, table schema.PrincipalTable, column string, value any, operation string) (*Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		strings.Join(table.Columns(), ", "), table.Table, column,
	)

	principal, err := scanPrincipal(repository.db.QueryRow(context, query, value), role, table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, dberr.Classify(err))
	}

	return principal, nil
}

/*
Create persists a brand-new principal in its role's table.

Parameters:
  - context: context.Context
  - principal: *Principal

Returns:
  - error: dberr.ErrConflict on duplicate email or username, or classified database errors
*/
func (repository *PostgresPrincipalRepository) Create(context context.Context, principal *Principal) error {
	table, err := tableFor(principal.Role)
	if err != nil {
		return err
	}

	columns := table.Columns()
	placeholders := make([]string, len(columns))
	for index := range columns {
		placeholders[index] = fmt.Sprintf("$%d", index+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	if _, err := repository.db.Exec(context, query, principalValues(principal, table)...); err != nil {
		return fmt.Errorf("create_principal: %w", dberr.Classify(err))
	}

	return nil
}

/*
UpdateCredential replaces the password hash and clears the temporary password
and the must-change flag in one statement.

Parameters:
  - context: context.Context
  - role: sec.Role
  - id: string
  - update: CredentialUpdate

Returns:
  - error: dberr.ErrNotFound or classified database errors
*/
func (repository *PostgresPrincipalRepository) UpdateCredential(context context.Context, role sec.Role, id string, update CredentialUpdate) error {
	table, err := tableFor(role)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = NULL, %s = FALSE, %s = $3, %s = $3
		WHERE %s = $1
	`,
		table.Table,
		table.PasswordHash, table.TemporaryPassword, table.MustChangePassword,
		table.PasswordChangedAt, table.UpdatedAt,
		table.ID,
	)

	command, err := repository.db.Exec(context, query, id, update.PasswordHash, update.ChangedAt)
	if err != nil {
		return fmt.Errorf("update_credential: %w", dberr.Classify(err))
	}

	if command.RowsAffected() == 0 {
		return fmt.Errorf("update_credential: %w", dberr.ErrNotFound)
	}
	return nil
}

/*
SaveMfa overwrites an administrator's MFA state. A nil state clears it.

Parameters:
  - context: context.Context
  - adminID: string
  - state: *MfaState

Returns:
  - error: dberr.ErrNotFound or classified database errors
*/
func (repository *PostgresPrincipalRepository) SaveMfa(context context.Context, adminID string, state *MfaState) error {
	table := schema.Administrator

	enabled, secret, codes := false, (*string)(nil), []string{}
	if state != nil {
		enabled = state.Enabled
		secret = pointer.NilIfZero(state.Secret)
		if state.BackupCodes != nil {
			codes = state.BackupCodes
		}
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = $3, %s = $4, %s = now()
		WHERE %s = $1
	`,
		table.Table,
		table.MfaEnabled, table.MfaSecret, table.MfaBackupCodes, table.UpdatedAt,
		table.ID,
	)

	command, err := repository.db.Exec(context, query, adminID, enabled, secret, codes)
	if err != nil {
		return fmt.Errorf("save_mfa: %w", dberr.Classify(err))
	}

	if command.RowsAffected() == 0 {
		return fmt.Errorf("save_mfa: %w", dberr.ErrNotFound)
	}
	return nil
}

/*
RemoveBackupCode atomically removes one backup-code hash if it is still present.

Description: The presence check and the removal are one UPDATE, so of two
concurrent calls for the same hash only one matches a row. When nothing is
removed, remaining is reported as zero.

Parameters:
  - context: context.Context
  - adminID: string
  - codeHash: string

Returns:
  - bool: true if this call removed the hash
  - int: number of codes left after the removal
  - error: classified database errors
*/
func (repository *PostgresPrincipalRepository) RemoveBackupCode(context context.Context, adminID, codeHash string) (bool, int, error) {
	table := schema.Administrator

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = array_remove(%s, $2), %s = now()
		WHERE %s = $1 AND $2 = ANY(%s)
		RETURNING cardinality(%s)
	`,
		table.Table,
		table.MfaBackupCodes, table.MfaBackupCodes, table.UpdatedAt,
		table.ID, table.MfaBackupCodes,
		table.MfaBackupCodes,
	)

	var remaining int
	err := repository.db.QueryRow(context, query, adminID, codeHash).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("remove_backup_code: %w", dberr.Classify(err))
	}

	return true, remaining, nil
}

// # Row Mapping

func tableFor(role sec.Role) (schema.PrincipalTable, error) {
	table, ok := schema.PrincipalTableFor(role)
	if !ok {
		return schema.PrincipalTable{}, fmt.Errorf("unknown_principal_role %q: %w", role, dberr.ErrNotFound)
	}
	return table, nil
}

// scanPrincipal reads a row selected with table.Columns().
func scanPrincipal(row pgx.Row, role sec.Role, table schema.PrincipalTable) (*Principal, error) {
	principal := &Principal{Role: role}

	var (
		email       *string
		roles       []string
		changedAt   *time.Time
		username    *string
		phone       *string
		title       *string
		mfaEnabled  bool
		mfaSecret   *string
		backupCodes []string
	)

	destinations := []any{
		&principal.ID, &email, &principal.GivenName, &principal.FamilyName, &roles,
		&principal.Credential.PasswordHash, &principal.Credential.TemporaryPassword,
		&principal.Credential.MustChangePassword, &changedAt,
		&principal.CreatedAt, &principal.UpdatedAt,
	}

	// Same order as PrincipalTable.VariantColumns
	variants := []struct {
		column      string
		destination any
	}{
		{table.Username, &username},
		{table.GuardianID, &principal.GuardianID},
		{table.Phone, &phone},
		{table.Title, &title},
		{table.MfaEnabled, &mfaEnabled},
		{table.MfaSecret, &mfaSecret},
		{table.MfaBackupCodes, &backupCodes},
	}
	for _, variant := range variants {
		if variant.column != "" {
			destinations = append(destinations, variant.destination)
		}
	}

	if err := row.Scan(destinations...); err != nil {
		return nil, err
	}

	principal.Email = pointer.Val(email)
	principal.Username = pointer.Val(username)
	principal.Phone = pointer.Val(phone)
	principal.Title = pointer.Val(title)
	principal.Credential.LastChangedAt = changedAt

	for _, value := range roles {
		if parsed, err := sec.ParseRole(value); err == nil {
			principal.Roles = append(principal.Roles, parsed)
		}
	}

	if role == sec.RoleAdministrator {
		principal.Mfa = &MfaState{
			Enabled:     mfaEnabled,
			Secret:      pointer.Val(mfaSecret),
			BackupCodes: backupCodes,
		}
	}

	return principal, nil
}

// principalValues returns the insert arguments in table.Columns() order.
func principalValues(principal *Principal, table schema.PrincipalTable) []any {
	values := []any{
		principal.ID, pointer.NilIfZero(principal.Email), principal.GivenName, principal.FamilyName, sec.RoleStrings(principal.Roles),
		principal.Credential.PasswordHash, principal.Credential.TemporaryPassword,
		principal.Credential.MustChangePassword, principal.Credential.LastChangedAt,
		principal.CreatedAt, principal.UpdatedAt,
	}

	mfa := principal.Mfa
	if mfa == nil {
		mfa = &MfaState{}
	}
	codes := mfa.BackupCodes
	if codes == nil {
		codes = []string{}
	}

	variants := []struct {
		column string
		value  any
	}{
		{table.Username, principal.Username},
		{table.GuardianID, principal.GuardianID},
		{table.Phone, pointer.NilIfZero(principal.Phone)},
		{table.Title, pointer.NilIfZero(principal.Title)},
		{table.MfaEnabled, mfa.Enabled},
		{table.MfaSecret, pointer.NilIfZero(mfa.Secret)},
		{table.MfaBackupCodes, codes},
	}
	for _, variant := range variants {
		if variant.column != "" {
			values = append(values, variant.value)
		}
	}

	return values
}
