// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/campus/internal/platform/constants"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	"github.com/taibuivan/campus/internal/platform/middleware"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// stubRevocations answers revocation checks from fixed fields.
type stubRevocations struct {
	revokedTokens map[string]bool
	revokedSince  map[string]time.Time
	err           error
}

func (stub *stubRevocations) IsRevoked(_ context.Context, rawToken string) (bool, error) {
	if stub.err != nil {
		return false, stub.err
	}
	return stub.revokedTokens[rawToken], nil
}

func (stub *stubRevocations) IsPrincipalRevoked(_ context.Context, principalID string, issuedAt time.Time) (bool, error) {
	if stub.err != nil {
		return false, stub.err
	}
	since, found := stub.revokedSince[principalID]
	return found && !issuedAt.After(since), nil
}

type authFixture struct {
	tokens      *sec.TokenService
	revocations *stubRevocations
	handler     http.Handler
	now         time.Time
}

func newAuthFixture(t *testing.T, guard func(http.Handler) http.Handler) *authFixture {
	t.Helper()

	now := time.Unix(1_700_000_000, 0)
	tokens, err := sec.NewHMACTokenService([]byte("0123456789abcdef0123456789abcdef"), sec.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	revocations := &stubRevocations{revokedTokens: map[string]bool{}, revokedSince: map[string]time.Time{}}

	protected := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetClaims(request.Context())
		writer.Header().Set("X-Principal", claims.PrincipalID())
		writer.WriteHeader(http.StatusOK)
	})

	return &authFixture{
		tokens:      tokens,
		revocations: revocations,
		handler:     middleware.Authenticate(tokens, revocations)(guard(protected)),
		now:         now,
	}
}

func (fixture *authFixture) do(configure func(*http.Request)) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
	configure(request)
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	return recorder
}

func bearer(token string) func(*http.Request) {
	return func(request *http.Request) {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	}
}

/*
TestAuthenticate_ValidSession accepts a session token from the header or the cookie.
*/
func TestAuthenticate_ValidSession(t *testing.T) {
	fixture := newAuthFixture(t, middleware.RequireAuth)

	token, err := fixture.tokens.IssueAccessToken("g-1", "ana@example.com", []string{"guardian"})
	require.NoError(t, err)

	recorder := fixture.do(bearer(token))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "g-1", recorder.Header().Get("X-Principal"))

	recorder = fixture.do(func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: constants.AuthCookieName, Value: token})
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestAuthenticate_Rejections covers every way a presented token is refused.
*/
func TestAuthenticate_Rejections(t *testing.T) {
	fixture := newAuthFixture(t, middleware.RequireAuth)

	session, err := fixture.tokens.IssueAccessToken("g-1", "ana@example.com", []string{"guardian"})
	require.NoError(t, err)
	pending, err := fixture.tokens.IssuePendingMfaToken("a-1", "root@example.com")
	require.NoError(t, err)
	revokedToken, err := fixture.tokens.IssueAccessToken("g-2", "bob@example.com", []string{"guardian"})
	require.NoError(t, err)
	oldToken, err := fixture.tokens.IssueAccessToken("g-3", "eve@example.com", []string{"guardian"})
	require.NoError(t, err)

	fixture.revocations.revokedTokens[revokedToken] = true
	fixture.revocations.revokedSince["g-3"] = fixture.now

	tests := []struct {
		name      string
		configure func(*http.Request)
		status    int
	}{
		{"anonymous", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage", bearer("garbage"), http.StatusUnauthorized},
		{"basic_scheme", func(r *http.Request) { r.Header.Set(constants.HeaderAuthorization, "Basic abc") }, http.StatusUnauthorized},
		{"pending_mfa_token", bearer(pending), http.StatusUnauthorized},
		{"revoked_token", bearer(revokedToken), http.StatusUnauthorized},
		{"revoked_principal_same_second", bearer(oldToken), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := fixture.do(tt.configure)
			assert.Equal(t, tt.status, recorder.Code)
			assert.Empty(t, recorder.Header().Get("X-Principal"))
		})
	}

	// The untouched session still works.
	assert.Equal(t, http.StatusOK, fixture.do(bearer(session)).Code)
}

/*
TestAuthenticate_RevokedCause tags revoked tokens with [sec.ErrRevokedToken]
so they can be told apart from invalid ones.
*/
func TestAuthenticate_RevokedCause(t *testing.T) {
	fixture := newAuthFixture(t, middleware.RequireAuth)

	revokedToken, err := fixture.tokens.IssueAccessToken("g-2", "bob@example.com", []string{"guardian"})
	require.NoError(t, err)
	oldToken, err := fixture.tokens.IssueAccessToken("g-3", "eve@example.com", []string{"guardian"})
	require.NoError(t, err)

	fixture.revocations.revokedTokens[revokedToken] = true
	fixture.revocations.revokedSince["g-3"] = fixture.now

	var failure error
	handler := middleware.Authenticate(fixture.tokens, fixture.revocations)(http.HandlerFunc(
		func(writer http.ResponseWriter, request *http.Request) {
			failure = ctxutil.GetAuthFailure(request.Context())
			writer.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name    string
		token   string
		revoked bool
	}{
		{"revoked_token", revokedToken, true},
		{"revoked_principal", oldToken, true},
		{"garbage", "garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure = nil
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			bearer(tt.token)(request)
			handler.ServeHTTP(httptest.NewRecorder(), request)

			require.Error(t, failure)
			assert.Equal(t, tt.revoked, errors.Is(failure, sec.ErrRevokedToken))
			assert.Equal(t, !tt.revoked, errors.Is(failure, sec.ErrInvalidToken))
		})
	}
}

/*
TestAuthenticate_StoreFailure fails closed with 503 when revocation state is unknown.
*/
func TestAuthenticate_StoreFailure(t *testing.T) {
	fixture := newAuthFixture(t, middleware.RequireAuth)
	fixture.revocations.err = errors.New("redis: connection refused")

	token, err := fixture.tokens.IssueAccessToken("g-1", "ana@example.com", []string{"guardian"})
	require.NoError(t, err)

	recorder := fixture.do(bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "connection refused")
}

/*
TestAuthenticate_PublicRouteIgnoresBadToken lets a stale cookie through to
routes that do not require a session.
*/
func TestAuthenticate_PublicRouteIgnoresBadToken(t *testing.T) {
	fixture := newAuthFixture(t, func(next http.Handler) http.Handler { return next })

	called := false
	fixture.handler = middleware.Authenticate(fixture.tokens, fixture.revocations)(http.HandlerFunc(
		func(writer http.ResponseWriter, request *http.Request) {
			called = true
			assert.Nil(t, ctxutil.GetClaims(request.Context()))
			assert.Error(t, ctxutil.GetAuthFailure(request.Context()))
			writer.WriteHeader(http.StatusOK)
		}))

	recorder := fixture.do(func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: constants.AuthCookieName, Value: "expired-or-garbage"})
	})
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestRequireRole allows any of the listed roles and forbids the rest.
*/
func TestRequireRole(t *testing.T) {
	fixture := newAuthFixture(t, middleware.RequireRole(sec.RoleAdministrator))

	admin, err := fixture.tokens.IssueAccessToken("a-1", "root@example.com", []string{"administrator"})
	require.NoError(t, err)
	guardian, err := fixture.tokens.IssueAccessToken("g-1", "ana@example.com", []string{"guardian"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, fixture.do(bearer(admin)).Code)
	assert.Equal(t, http.StatusForbidden, fixture.do(bearer(guardian)).Code)
	assert.Equal(t, http.StatusUnauthorized, fixture.do(func(*http.Request) {}).Code)
}
