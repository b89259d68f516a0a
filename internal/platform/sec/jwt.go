// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, JWT signing, TOTP)
// from the domain logic. It is injected into the auth service through small
// interfaces so the service can be tested with a fixed clock.
package sec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Lifetimes

const (
	// SessionTokenTTL matches the 7-day maxAge of the auth cookie.
	SessionTokenTTL = 7 * 24 * time.Hour

	// PendingMfaTokenTTL bounds the window to finish a second-factor challenge.
	PendingMfaTokenTTL = 5 * time.Minute

	// minHMACSecretLength is the shortest accepted HS256 secret, in bytes.
	minHMACSecretLength = 32
)

// TokenType distinguishes full sessions from MFA-pending tokens.
type TokenType string

const (
	TokenTypeSession    TokenType = "session"
	TokenTypeMfaPending TokenType = "mfa_pending"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens and unknown types.
	ErrInvalidToken = errors.New("sec: invalid token")

	// ErrExpiredToken is returned once `exp` is in the past.
	ErrExpiredToken = errors.New("sec: expired token")

	// ErrRevokedToken marks a well-formed token that was revoked, either on its
	// own or by a principal-wide revocation.
	ErrRevokedToken = errors.New("sec: revoked token")
)

// Claims is the payload embedded inside every token.
//
// The wire shape is {sub, email, roles, type, iat, exp}; the web client and
// older services decode it directly, so no other registered claim is set.
type Claims struct {
	Email string    `json:"email"`
	Roles []string  `json:"roles,omitempty"`
	Type  TokenType `json:"type"`

	jwt.RegisteredClaims
}

// PrincipalID returns the `sub` claim.
func (claims *Claims) PrincipalID() string {
	return claims.Subject
}

// IssuedAtTime returns the `iat` claim, or the zero time if it is absent.
func (claims *Claims) IssuedAtTime() time.Time {
	if claims.IssuedAt == nil {
		return time.Time{}
	}
	return claims.IssuedAt.Time
}

// ExpiresAtTime returns the `exp` claim, or the zero time if it is absent.
func (claims *Claims) ExpiresAtTime() time.Time {
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// TokenService issues and verifies signed tokens.
//
// It is a pure function of signing key, clock and claims, so one instance is
// shared by every request.
type TokenService struct {
	method        jwt.SigningMethod
	signingKey    any
	verifyKey     any
	sessionTTL    time.Duration
	pendingMfaTTL time.Duration
	now           func() time.Time
}

// TokenOption customizes a [TokenService].
type TokenOption func(*TokenService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(service *TokenService) { service.now = now }
}

// WithSessionTTL overrides [SessionTokenTTL].
func WithSessionTTL(ttl time.Duration) TokenOption {
	return func(service *TokenService) { service.sessionTTL = ttl }
}

// WithPendingMfaTTL overrides [PendingMfaTokenTTL].
func WithPendingMfaTTL(ttl time.Duration) TokenOption {
	return func(service *TokenService) { service.pendingMfaTTL = ttl }
}

// NewHMACTokenService creates a TokenService signing with HS256.
func NewHMACTokenService(secret []byte, options ...TokenOption) (*TokenService, error) {
	if len(secret) < minHMACSecretLength {
		return nil, fmt.Errorf("sec: jwt secret must be at least %d bytes", minHMACSecretLength)
	}
	return newTokenService(jwt.SigningMethodHS256, secret, secret, options), nil
}

// NewRSATokenService creates a TokenService signing with RS256.
// It reads RSA keys from the provided filesystem paths.
func NewRSATokenService(privateKeyPath, publicKeyPath string, options ...TokenOption) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return NewRSATokenServiceFromKeys(privateKey, publicKey, options...), nil
}

// NewRSATokenServiceFromKeys is [NewRSATokenService] for already parsed keys.
func NewRSATokenServiceFromKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, options ...TokenOption) *TokenService {
	return newTokenService(jwt.SigningMethodRS256, privateKey, publicKey, options)
}

func newTokenService(method jwt.SigningMethod, signingKey, verifyKey any, options []TokenOption) *TokenService {
	service := &TokenService{
		method:        method,
		signingKey:    signingKey,
		verifyKey:     verifyKey,
		sessionTTL:    SessionTokenTTL,
		pendingMfaTTL: PendingMfaTokenTTL,
		now:           time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// # Issuance

// IssueAccessToken creates a session token carrying the principal's role set.
func (service *TokenService) IssueAccessToken(principalID, email string, roles []string) (string, error) {
	return service.issue(principalID, email, roles, TokenTypeSession, service.sessionTTL)
}

// IssuePendingMfaToken creates a short-lived token that can only be used to
// complete a second-factor challenge. It carries no role claims.
func (service *TokenService) IssuePendingMfaToken(principalID, email string) (string, error) {
	return service.issue(principalID, email, nil, TokenTypeMfaPending, service.pendingMfaTTL)
}

// SessionTTL reports the lifetime of session tokens.
func (service *TokenService) SessionTTL() time.Duration {
	return service.sessionTTL
}

func (service *TokenService) issue(principalID, email string, roles []string, tokenType TokenType, timeToLive time.Duration) (string, error) {
	currentTime := service.now()
	claims := Claims{
		Email: email,
		Roles: roles,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
	}

	token := jwt.NewWithClaims(service.method, claims)
	signedToken, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// # Verification

// Verify checks the signature and validity window of a token.
//
// Failures wrap either [ErrInvalidToken] or [ErrExpiredToken]. Callers reject
// both the same way; the distinction exists for logs.
func (service *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return service.verifyKey, nil
	},
		jwt.WithValidMethods([]string{service.method.Alg()}),
		jwt.WithTimeFunc(service.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing subject or iat", ErrInvalidToken)
	}

	switch claims.Type {
	case TokenTypeSession, TokenTypeMfaPending:
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}

	return claims, nil
}
