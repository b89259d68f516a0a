// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Revocation Contracts

// Revocation reasons recorded alongside each entry.
const (
	ReasonLogout         = "logout"
	ReasonPasswordChange = "password_change"
)

// RevocationRecord is one entry of the revocation store. Exactly one of
// TokenID and PrincipalID is set.
//
// TokenID is the hex SHA-256 of the raw token string, so the claim set needs
// no dedicated identifier.
type RevocationRecord struct {
	TokenID     string
	PrincipalID string
	Reason      string
	RevokedAt   time.Time
}

// RevocationStore persists revocation records with a time to live. Writes
// are independent upserts keyed by token or principal id; reads are single
// key lookups.
type RevocationStore interface {

	// RevokeToken stores the record unless one already exists for the token.
	// It reports whether this call created the entry.
	RevokeToken(context context.Context, record RevocationRecord, ttl time.Duration) (bool, error)

	// IsTokenRevoked reports whether a live entry exists for the token id.
	IsTokenRevoked(context context.Context, tokenID string) (bool, error)

	// RevokePrincipal stores or replaces the principal's revoked-since record.
	RevokePrincipal(context context.Context, record RevocationRecord, ttl time.Duration) error

	// PrincipalRevokedSince returns the principal's revoked-since time, if any.
	PrincipalRevokedSince(context context.Context, principalID string) (time.Time, bool, error)
}

// TokenVerifier is the subset of [sec.TokenService] the blacklist needs to
// read a token's expiry.
type TokenVerifier interface {
	Verify(token string) (*sec.Claims, error)
}

// # Blacklist

// Blacklist revokes single tokens and every token of a principal.
//
// Store errors are returned wrapped with [ErrStoreUnavailable]. Callers must
// treat them as "unknown" and reject the request rather than let it through.
type Blacklist struct {
	store      RevocationStore
	verifier   TokenVerifier
	sessionTTL time.Duration
	now        func() time.Time
}

// BlacklistOption customises a [Blacklist].
type BlacklistOption func(*Blacklist)

// WithBlacklistClock overrides the time source.
func WithBlacklistClock(now func() time.Time) BlacklistOption {
	return func(blacklist *Blacklist) { blacklist.now = now }
}

// NewBlacklist creates a Blacklist. sessionTTL bounds how long a
// principal-wide revocation has to be kept: after that, every token it
// could match has expired on its own.
func NewBlacklist(store RevocationStore, verifier TokenVerifier, sessionTTL time.Duration, options ...BlacklistOption) *Blacklist {
	blacklist := &Blacklist{
		store:      store,
		verifier:   verifier,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
	for _, option := range options {
		option(blacklist)
	}
	return blacklist
}

/*
Revoke marks one token unusable for the rest of its natural lifetime.

Description: Tokens that are expired, malformed or wrongly signed are a no-op
because they are already unusable. Revoking the same token twice succeeds and
reports false the second time.

Parameters:
  - context: context.Context
  - rawToken: string
  - reason: string

Returns:
  - bool: true if this call created the revocation entry
  - error: ErrStoreUnavailable when the store could not be written
*/
func (blacklist *Blacklist) Revoke(context context.Context, rawToken, reason string) (bool, error) {
	claims, err := blacklist.verifier.Verify(rawToken)
	if err != nil {
		return false, nil
	}

	now := blacklist.now()
	remaining := claims.ExpiresAtTime().Sub(now)
	if remaining <= 0 {
		return false, nil
	}

	record := RevocationRecord{
		TokenID:   sec.HashToken(rawToken),
		Reason:    reason,
		RevokedAt: now,
	}

	created, err := blacklist.store.RevokeToken(context, record, remaining)
	if err != nil {
		return false, fmt.Errorf("%w: revoke_token: %w", ErrStoreUnavailable, err)
	}
	return created, nil
}

/*
RevokeAllForPrincipal invalidates every token issued to the principal up to
and including the current second.

Parameters:
  - context: context.Context
  - principalID: string
  - reason: string

Returns:
  - error: ErrStoreUnavailable when the store could not be written
*/
func (blacklist *Blacklist) RevokeAllForPrincipal(context context.Context, principalID, reason string) error {
	record := RevocationRecord{
		PrincipalID: principalID,
		Reason:      reason,
		RevokedAt:   blacklist.now().Truncate(time.Second),
	}

	if err := blacklist.store.RevokePrincipal(context, record, blacklist.sessionTTL); err != nil {
		return fmt.Errorf("%w: revoke_principal: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token itself has been revoked.
func (blacklist *Blacklist) IsRevoked(context context.Context, rawToken string) (bool, error) {
	revoked, err := blacklist.store.IsTokenRevoked(context, sec.HashToken(rawToken))
	if err != nil {
		return false, fmt.Errorf("%w: is_token_revoked: %w", ErrStoreUnavailable, err)
	}
	return revoked, nil
}

// IsPrincipalRevoked reports whether a token issued at issuedAt predates the
// principal's revoked-since time. A token issued in the same second as the
// revocation counts as revoked.
func (blacklist *Blacklist) IsPrincipalRevoked(context context.Context, principalID string, issuedAt time.Time) (bool, error) {
	since, found, err := blacklist.store.PrincipalRevokedSince(context, principalID)
	if err != nil {
		return false, fmt.Errorf("%w: principal_revoked_since: %w", ErrStoreUnavailable, err)
	}
	if !found {
		return false, nil
	}
	return !issuedAt.After(since), nil
}
