// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	"github.com/taibuivan/campus/internal/platform/dberr"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// # MFA Challenge

// MfaLoginInput carries the second step of an administrator login. Exactly
// one of TotpCode and BackupCode is expected; TotpCode wins when both are set.
type MfaLoginInput struct {
	MfaToken   string
	TotpCode   string
	BackupCode string
}

// MfaSetup is returned by [MfaService.Setup] for the authenticator app.
type MfaSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"otpauth_url"`
}

// MfaService verifies second-factor challenges and manages administrator
// enrollment.
type MfaService struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	events     EventPublisher
	settings   settings
}

// NewMfaService constructs a new [MfaService] with necessary dependencies.
func NewMfaService(
	principals PrincipalRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	events EventPublisher,
	options ...Option,
) *MfaService {
	settings := newSettings(options)
	return &MfaService{
		principals: BoundPrincipalRepository(principals, settings.storeTimeout),
		hasher:     hasher,
		tokens:     tokens,
		events:     events,
		settings:   settings,
	}
}

/*
CompleteChallenge exchanges a pending MFA token and one second factor for a
session token.

Description: A TOTP code is accepted within one 30 second step of drift. A
backup code is compared against each stored hash in order; the first match
is removed atomically, and a request that loses the removal race fails as if
the code had never been valid. Every failure carries the same client message.

Parameters:
  - context: context.Context
  - pendingToken: string
  - totpCode: string
  - backupCode: string

Returns:
  - *LoginResult: Session token and administrator profile
  - error: InvalidMfaToken, PrincipalNotFound, MfaNotEnabled, InvalidMfaCode (all 401) or StoreUnavailable (503)
*/
func (service *MfaService) CompleteChallenge(context context.Context, pendingToken, totpCode, backupCode string) (*LoginResult, error) {
	claims, err := service.tokens.Verify(pendingToken)
	if err != nil {
		return nil, service.reject(context, "", mfaFailure(errors.Join(ErrInvalidMfaToken, err)))
	}
	if claims.Type != sec.TokenTypeMfaPending {
		return nil, service.reject(context, claims.PrincipalID(), mfaFailure(ErrInvalidMfaToken))
	}

	admin, err := service.principals.FindByID(context, sec.RoleAdministrator, claims.PrincipalID())
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, service.reject(context, claims.PrincipalID(), mfaFailure(ErrPrincipalNotFound))
		}
		return nil, storeFailure(err)
	}
	if !admin.MfaEnabled() {
		return nil, service.reject(context, admin.ID, mfaFailure(ErrMfaNotEnabled))
	}

	switch {
	case totpCode != "":
		if !sec.VerifyTOTP(admin.Mfa.Secret, totpCode, service.settings.now()) {
			return nil, service.reject(context, admin.ID, mfaFailure(ErrInvalidMfaCode))
		}

	case backupCode != "":
		if err := service.consumeBackupCode(context, admin, backupCode); err != nil {
			return nil, err
		}

	default:
		return nil, service.reject(context, admin.ID, mfaFailure(ErrInvalidMfaCode))
	}

	accessToken, err := service.tokens.IssueAccessToken(admin.ID, admin.Email, admin.TokenRoles())
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("mfa_service_issue_token_failed: %w", err))
	}

	service.events.Publish(context, Event{
		Type:        EventMfaLoginSucceeded,
		PrincipalID: admin.ID,
		Role:        admin.Role,
		At:          service.settings.now(),
	})

	return &LoginResult{AccessToken: accessToken, Principal: admin.Profile()}, nil
}

func (service *MfaService) consumeBackupCode(context context.Context, admin *Principal, backupCode string) error {
	canonical := sec.CanonicalBackupCode(backupCode)

	for _, codeHash := range admin.Mfa.BackupCodes {
		if !service.hasher.Verify(canonical, codeHash) {
			continue
		}

		removed, remaining, err := service.principals.RemoveBackupCode(context, admin.ID, codeHash)
		if err != nil {
			return storeFailure(err)
		}
		if !removed {
			// A concurrent request consumed the same code first
			return service.reject(context, admin.ID, mfaFailure(ErrInvalidMfaCode))
		}

		ctxutil.GetLogger(context).Info("backup_code_consumed",
			slog.String("principal_id", admin.ID),
			slog.Int("remaining", remaining),
		)
		service.events.Publish(context, Event{
			Type:        EventBackupCodeUsed,
			PrincipalID: admin.ID,
			Role:        admin.Role,
			At:          service.settings.now(),
			Attributes:  map[string]any{"remaining": remaining},
		})
		return nil
	}

	return service.reject(context, admin.ID, mfaFailure(ErrInvalidMfaCode))
}

// reject records a failed challenge and returns err unchanged.
func (service *MfaService) reject(context context.Context, principalID string, err error) error {
	service.events.Publish(context, Event{
		Type:        EventMfaLoginFailed,
		PrincipalID: principalID,
		Role:        sec.RoleAdministrator,
		At:          service.settings.now(),
	})
	return err
}

// # Enrollment

/*
Setup generates a new TOTP secret for an administrator and stores it disabled
until [MfaService.Enable] confirms a code. Calling Setup again replaces a
secret that was never confirmed.

Parameters:
  - context: context.Context
  - adminID: string

Returns:
  - *MfaSetup: Secret and otpauth:// provisioning URI
  - error: PrincipalNotFound (404), MfaAlreadyEnabled (409), StoreUnavailable (503)
*/
func (service *MfaService) Setup(context context.Context, adminID string) (*MfaSetup, error) {
	admin, err := service.loadAdministrator(context, adminID)
	if err != nil {
		return nil, err
	}
	if admin.MfaEnabled() {
		return nil, mfaConflict()
	}

	secret, err := sec.GenerateTOTPSecret()
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("mfa_service_secret_failed: %w", err))
	}

	if err := service.principals.SaveMfa(context, admin.ID, &MfaState{Secret: secret}); err != nil {
		return nil, storeFailure(err)
	}

	return &MfaSetup{
		Secret:          secret,
		ProvisioningURI: sec.TOTPProvisioningURI(service.settings.mfaIssuer, admin.Email, secret),
	}, nil
}

/*
Enable confirms the pending secret with a TOTP code, turns MFA on and issues
a fresh set of backup codes.

Parameters:
  - context: context.Context
  - adminID: string
  - totpCode: string

Returns:
  - []string: Plaintext backup codes, shown once
  - error: PrincipalNotFound (404), MfaAlreadyEnabled (409), setup missing (422), InvalidMfaCode (401), StoreUnavailable (503)
*/
func (service *MfaService) Enable(context context.Context, adminID, totpCode string) ([]string, error) {
	admin, err := service.loadAdministrator(context, adminID)
	if err != nil {
		return nil, err
	}
	if admin.MfaEnabled() {
		return nil, mfaConflict()
	}
	if admin.Mfa == nil || admin.Mfa.Secret == "" {
		return nil, apperr.Unprocessable("MFA setup has not been started").WithCause(ErrMfaNotEnabled)
	}

	if !sec.VerifyTOTP(admin.Mfa.Secret, totpCode, service.settings.now()) {
		return nil, mfaFailure(ErrInvalidMfaCode)
	}

	codes, err := sec.GenerateBackupCodes(sec.BackupCodeCount)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("mfa_service_backup_codes_failed: %w", err))
	}

	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		codeHash, err := service.hasher.Hash(sec.CanonicalBackupCode(code))
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("mfa_service_hash_failed: %w", err))
		}
		hashes = append(hashes, codeHash)
	}

	state := &MfaState{Enabled: true, Secret: admin.Mfa.Secret, BackupCodes: hashes}
	if err := service.principals.SaveMfa(context, admin.ID, state); err != nil {
		return nil, storeFailure(err)
	}

	service.events.Publish(context, Event{
		Type:        EventMfaEnabled,
		PrincipalID: admin.ID,
		Role:        admin.Role,
		At:          service.settings.now(),
	})

	return codes, nil
}

/*
Disable turns MFA off after re-checking the administrator's password, and
discards the secret and all backup codes.

Parameters:
  - context: context.Context
  - adminID: string
  - currentPassword: string

Returns:
  - error: PrincipalNotFound (404), MFA not enabled (422), InvalidCredential (401), StoreUnavailable (503)
*/
func (service *MfaService) Disable(context context.Context, adminID, currentPassword string) error {
	admin, err := service.loadAdministrator(context, adminID)
	if err != nil {
		return err
	}
	if !admin.MfaEnabled() {
		return apperr.Unprocessable("MFA is not enabled").WithCause(ErrMfaNotEnabled)
	}

	if !service.hasher.Verify(currentPassword, admin.Credential.PasswordHash) {
		return invalidCredential()
	}

	if err := service.principals.SaveMfa(context, admin.ID, nil); err != nil {
		return storeFailure(err)
	}

	service.events.Publish(context, Event{
		Type:        EventMfaDisabled,
		PrincipalID: admin.ID,
		Role:        admin.Role,
		At:          service.settings.now(),
	})

	return nil
}

func (service *MfaService) loadAdministrator(context context.Context, adminID string) (*Principal, error) {
	admin, err := service.principals.FindByID(context, sec.RoleAdministrator, adminID)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, principalNotFound()
		}
		return nil, storeFailure(err)
	}
	return admin, nil
}
