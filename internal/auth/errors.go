// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"

	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/dberr"
)

// # Error Kinds
//
// Service methods return *apperr.AppError values whose cause chain carries one
// of these sentinels, so callers branch with errors.Is while the HTTP layer
// renders only the client-safe message.

var (
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrDuplicateEmail    = errors.New("auth: duplicate email")
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	ErrInvalidMfaToken   = errors.New("auth: invalid mfa token")
	ErrMfaNotEnabled     = errors.New("auth: mfa not enabled")
	ErrMfaAlreadyEnabled = errors.New("auth: mfa already enabled")
	ErrInvalidMfaCode    = errors.New("auth: invalid mfa code")
	ErrStoreUnavailable  = errors.New("auth: store unavailable")
)

// Client messages. The MFA message is shared by every second-factor failure
// so a response never reveals which factor was attempted.
const (
	msgInvalidCredential = "Invalid credentials"
	msgDuplicateEmail    = "Registration could not be completed"
	msgPrincipalNotFound = "Principal"
	msgMfaFailed         = "Invalid or expired MFA verification"
	msgStoreUnavailable  = "Service temporarily unavailable, please retry"
)

func invalidCredential() error {
	return apperr.Unauthorized(msgInvalidCredential).WithCause(ErrInvalidCredential)
}

func duplicateEmail(cause error) error {
	return apperr.Conflict(msgDuplicateEmail).WithCause(errors.Join(ErrDuplicateEmail, cause))
}

func principalNotFound() error {
	return apperr.NotFound(msgPrincipalNotFound).WithCause(ErrPrincipalNotFound)
}

func mfaFailure(kind error) error {
	return apperr.Unauthorized(msgMfaFailed).WithCause(kind)
}

func mfaConflict() error {
	return apperr.Conflict("MFA is already enabled").WithCause(ErrMfaAlreadyEnabled)
}

// storeFailure maps an error from the repository or revocation store.
// Outages become a retryable 503; anything else is an internal error.
func storeFailure(err error) error {
	if dberr.IsUnavailable(err) || errors.Is(err, ErrStoreUnavailable) {
		return apperr.ServiceUnavailable(msgStoreUnavailable).WithCause(errors.Join(ErrStoreUnavailable, err))
	}
	return apperr.Internal(err)
}

// revocationFailure maps a revocation store error. The store has a single
// failure mode from the caller's point of view: its state is unknown.
func revocationFailure(err error) error {
	return apperr.ServiceUnavailable(msgStoreUnavailable).WithCause(errors.Join(ErrStoreUnavailable, err))
}
