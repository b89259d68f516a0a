// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements multi-role authentication and session invalidation.

Four principal kinds (student, guardian, instructor, administrator) share one
credential and token model. Administrators may additionally enrol a TOTP
second factor with single-use backup codes. Password changes and logouts
revoke previously issued tokens through a shared revocation store.

# Architecture

  - Service: Orchestrates registration, login, profile, password change and logout.
  - MfaService: Second-factor challenge and enrollment for administrators.
  - Blacklist: Token and principal revocation over a [RevocationStore].
  - PrincipalRepository: Storage contract for the four principal tables.
  - Handler: HTTP delivery under /api/v1/auth.
*/
package auth

import (
	"time"

	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Domain Entities

// Principal is any authenticated identity. The Role tag selects the table the
// record lives in; the variant-only fields are empty for the other roles.
type Principal struct {
	ID         string
	Role       sec.Role
	Email      string
	Username   string
	GivenName  string
	FamilyName string

	// Roles is the stored role set carried in session tokens. It may be empty,
	// in which case the token carries [Principal.Role] alone.
	Roles []sec.Role

	// Student only
	GuardianID *string

	// Guardian only
	Phone string

	// Instructor only
	Title string

	Credential Credential

	// Administrator only; nil for every other role.
	Mfa *MfaState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential is the password record embedded in every principal.
//
// MustChangePassword is true whenever TemporaryPassword is set, and both are
// cleared together by [PrincipalRepository.UpdateCredential].
type Credential struct {
	PasswordHash string

	// TemporaryPassword is shown once to an operator for freshly provisioned
	// accounts. Never logged or serialized.
	TemporaryPassword  *string
	MustChangePassword bool
	LastChangedAt      *time.Time
}

// MfaState holds an administrator's second-factor configuration.
type MfaState struct {
	Enabled bool

	// Secret is the base32 TOTP shared secret.
	Secret string

	// BackupCodes are bcrypt hashes of the remaining single-use codes, in
	// the order they were issued.
	BackupCodes []string
}

// MfaEnabled reports whether the principal must pass a second factor.
func (principal *Principal) MfaEnabled() bool {
	return principal.Mfa != nil && principal.Mfa.Enabled
}

// TokenRoles returns the role claim for a session token, falling back to the
// principal's own role when no role set is stored.
func (principal *Principal) TokenRoles() []string {
	if len(principal.Roles) == 0 {
		return []string{string(principal.Role)}
	}
	return sec.RoleStrings(principal.Roles)
}

// # Client Projection

// Profile is the client-facing view of a principal. It never carries the
// password hash, temporary password, MFA secret or backup codes.
type Profile struct {
	ID         string    `json:"id"`
	Role       sec.Role  `json:"role"`
	Roles      []string  `json:"roles"`
	Email      string    `json:"email,omitempty"`
	Username   string    `json:"username,omitempty"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
	GuardianID *string   `json:"guardian_id,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Title      string    `json:"title,omitempty"`
	MfaEnabled *bool     `json:"mfa_enabled,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// The web client reads this exact key to force the change-password screen.
	MustChangePassword bool `json:"debe_cambiar_password"`
}

// Profile projects the principal for the client.
func (principal *Principal) Profile() *Profile {
	profile := &Profile{
		ID:                 principal.ID,
		Role:               principal.Role,
		Roles:              principal.TokenRoles(),
		Email:              principal.Email,
		Username:           principal.Username,
		GivenName:          principal.GivenName,
		FamilyName:         principal.FamilyName,
		GuardianID:         principal.GuardianID,
		Phone:              principal.Phone,
		Title:              principal.Title,
		CreatedAt:          principal.CreatedAt,
		MustChangePassword: principal.Credential.MustChangePassword,
	}

	if principal.Role == sec.RoleAdministrator {
		enabled := principal.MfaEnabled()
		profile.MfaEnabled = &enabled
	}

	return profile
}

// # Field Identifiers

// Field names used in validation errors and request payloads.
const (
	FieldEmail           = "email"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldGivenName       = "given_name"
	FieldFamilyName      = "family_name"
	FieldPhone           = "phone"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldMfaToken        = "mfa_token"
	FieldTotpCode        = "totp_code"
	FieldBackupCode      = "backup_code"
)
