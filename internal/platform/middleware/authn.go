// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/campus/internal/platform/request"
	"github.com/taibuivan/campus/internal/platform/respond"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// Defining it here decouples the middleware from [sec.TokenService], allowing
// stubs during unit testing.
type TokenVerifier interface {
	Verify(token string) (*sec.Claims, error)
}

// RevocationChecker answers the two revocation questions asked on every
// authenticated request.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, rawToken string) (bool, error)
	IsPrincipalRevoked(ctx context.Context, principalID string, issuedAt time.Time) (bool, error)
}

var (
	errInvalidToken = apperr.Unauthorized("Invalid or expired token")
	errRevokedToken = apperr.Unauthorized("Token has been revoked")
	errWrongType    = apperr.Unauthorized("Token cannot be used for this request")
	errStoreDown    = apperr.ServiceUnavailable("Authentication temporarily unavailable")
)

// Authenticate resolves the session presented with the request.
//
// # Flow
//  1. Read the token from 'Authorization: Bearer <token>' or the auth cookie.
//  2. If absent, request proceeds as anonymous.
//  3. Verify signature and expiry via [TokenVerifier]; only session tokens pass.
//  4. Reject tokens revoked individually or issued before a principal-wide revocation.
//  5. Inject [*sec.Claims] into the request context.
//
// A token that fails any step does not abort the request. The failure is
// stored in the context and rendered by [RequireAuth], so a stale cookie never
// blocks public routes such as login. Revocation store errors fail closed.
func Authenticate(verifier TokenVerifier, revocations RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			rawToken, present := requestutil.BearerToken(request)

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if !present {
				next.ServeHTTP(writer, request)
				return
			}

			ctx := request.Context()
			claims, failure := resolveSession(ctx, verifier, revocations, rawToken)
			if failure != nil {
				ctxutil.GetLogger(ctx).DebugContext(ctx, "auth_token_rejected",
					slog.String("reason", failure.Message),
					slog.Any("cause", failure.Cause),
				)
				next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthFailure(ctx, failure)))
				return
			}

			// ── 5. Context Injection ──────────────────────────────────────────
			if recorder, ok := writer.(principalRecorder); ok {
				recorder.recordPrincipal(claims.PrincipalID())
			}
			ctx = ctxutil.WithLogger(ctx, ctxutil.GetLogger(ctx).With(slog.String("principal_id", claims.PrincipalID())))
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithClaims(ctx, claims)))
		})
	}
}

func resolveSession(ctx context.Context, verifier TokenVerifier, revocations RevocationChecker, rawToken string) (*sec.Claims, *apperr.AppError) {
	if rawToken == "" {
		return nil, apperr.Unauthorized("Invalid authorization format")
	}

	// ── 3. Token Verification ─────────────────────────────────────────────
	claims, err := verifier.Verify(rawToken)
	if err != nil {
		return nil, errInvalidToken.WithCause(err)
	}
	if claims.Type != sec.TokenTypeSession {
		return nil, errWrongType
	}

	// ── 4. Revocation Checks ──────────────────────────────────────────────
	revoked, err := revocations.IsRevoked(ctx, rawToken)
	if err != nil {
		return nil, errStoreDown.WithCause(err)
	}
	if revoked {
		return nil, errRevokedToken.WithCause(fmt.Errorf("token revoked: %w", sec.ErrRevokedToken))
	}

	revoked, err = revocations.IsPrincipalRevoked(ctx, claims.PrincipalID(), claims.IssuedAtTime())
	if err != nil {
		return nil, errStoreDown.WithCause(err)
	}
	if revoked {
		return nil, errRevokedToken.WithCause(fmt.Errorf("principal %s revoked: %w", claims.PrincipalID(), sec.ErrRevokedToken))
	}

	return claims, nil
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
//
// # Flow
//  1. Check if [*sec.Claims] exists in context.
//  2. If missing, abort with the stored token failure, or 401 when no token was sent.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if rejectAnonymous(writer, request) {
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose session does not carry any of the roles.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It implies
// [RequireAuth] so you don't need to mount both.
func RequireRole(roles ...sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Authentication Check ───────────────────────────────────────
			if rejectAnonymous(writer, request) {
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			claims := ctxutil.GetClaims(request.Context())
			for _, role := range roles {
				if sec.HasRole(claims.Roles, role) {
					next.ServeHTTP(writer, request)
					return
				}
			}

			respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
		})
	}
}

func rejectAnonymous(writer http.ResponseWriter, request *http.Request) bool {
	if ctxutil.GetClaims(request.Context()) != nil {
		return false
	}

	failure := ctxutil.GetAuthFailure(request.Context())
	var appError *apperr.AppError
	if !errors.As(failure, &appError) {
		appError = apperr.Unauthorized("Authentication required")
	}

	respond.Error(writer, request, appError)
	return true
}
