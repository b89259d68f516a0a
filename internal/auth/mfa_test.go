// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/platform/sec"
)

const totpSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

// pendingToken runs the first login step and returns the MFA token.
func (fixture *fixture) pendingToken(t *testing.T, email, password string) string {
	t.Helper()
	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: email, Password: password})
	require.NoError(t, err)
	require.True(t, result.RequiresMfa)
	return result.MfaToken
}

func (fixture *fixture) totp(t *testing.T, offset time.Duration) string {
	t.Helper()
	code, err := sec.TOTPCode(totpSecret, fixture.clock.Now().Add(offset))
	require.NoError(t, err)
	return code
}

/*
TestMfa_BackupCode consumes a backup code once; replaying it fails while the
other codes keep working.
*/
func TestMfa_BackupCode(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret, "ABC123", "DEF456", "GHJ789")

	pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

	result, err := fixture.service.CompleteMfaLogin(ctx, auth.MfaLoginInput{MfaToken: pending, BackupCode: "def456"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, admin.ID, result.Principal.ID)

	stored := fixture.principal(t, sec.RoleAdministrator, admin.ID)
	require.Len(t, stored.Mfa.BackupCodes, 2)
	assert.Equal(t, admin.Mfa.BackupCodes[0], stored.Mfa.BackupCodes[0])
	assert.Equal(t, admin.Mfa.BackupCodes[2], stored.Mfa.BackupCodes[1])

	_, err = fixture.service.CompleteMfaLogin(ctx, auth.MfaLoginInput{MfaToken: pending, BackupCode: "DEF456"})
	requireStatus(t, err, http.StatusUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidMfaCode)

	_, err = fixture.service.CompleteMfaLogin(ctx, auth.MfaLoginInput{MfaToken: pending, BackupCode: "GHJ-789"})
	require.NoError(t, err)

	assert.Contains(t, fixture.events.Types(), auth.EventBackupCodeUsed)
}

/*
TestMfa_Totp accepts one step of drift either way and nothing beyond.
*/
func TestMfa_Totp(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current_step", 0, true},
		{"previous_step", -30 * time.Second, true},
		{"next_step", 30 * time.Second, true},
		{"two_steps_behind", -60 * time.Second, false},
		{"two_steps_ahead", 60 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newFixture(t)
			fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret)
			pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

			result, err := fixture.service.CompleteMfaLogin(context.Background(), auth.MfaLoginInput{
				MfaToken: pending,
				TotpCode: fixture.totp(t, tt.offset),
			})

			if !tt.valid {
				assert.ErrorIs(t, err, auth.ErrInvalidMfaCode)
				return
			}
			require.NoError(t, err)

			claims, err := fixture.tokens.Verify(result.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, sec.TokenTypeSession, claims.Type)
			assert.Equal(t, []string{"administrator"}, claims.Roles)
		})
	}
}

/*
TestMfa_TotpWinsOverBackupCode leaves the backup code unused when both are
supplied.
*/
func TestMfa_TotpWinsOverBackupCode(t *testing.T) {
	fixture := newFixture(t)
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret, "ABC123")
	pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

	_, err := fixture.service.CompleteMfaLogin(context.Background(), auth.MfaLoginInput{
		MfaToken:   pending,
		TotpCode:   fixture.totp(t, 0),
		BackupCode: "ABC123",
	})
	require.NoError(t, err)

	assert.Len(t, fixture.principal(t, sec.RoleAdministrator, admin.ID).Mfa.BackupCodes, 1)
}

/*
TestMfa_Rejections covers every failure path and checks they all share one
client message.
*/
func TestMfa_Rejections(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret, "ABC123")
	fixture.seedAdministrator(t, "plain@x.com", "Admin123!", "")
	pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

	sessionToken, err := fixture.tokens.IssueAccessToken(admin.ID, admin.Email, []string{"administrator"})
	require.NoError(t, err)

	plain, err := fixture.store.FindByEmail(ctx, sec.RoleAdministrator, "plain@x.com")
	require.NoError(t, err)
	plainPending, err := fixture.tokens.IssuePendingMfaToken(plain.ID, plain.Email)
	require.NoError(t, err)

	ghostPending, err := fixture.tokens.IssuePendingMfaToken("ghost", "ghost@x.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input auth.MfaLoginInput
		kind  error
	}{
		{"garbage_token", auth.MfaLoginInput{MfaToken: "garbage", TotpCode: fixture.totp(t, 0)}, auth.ErrInvalidMfaToken},
		{"session_token", auth.MfaLoginInput{MfaToken: sessionToken, TotpCode: fixture.totp(t, 0)}, auth.ErrInvalidMfaToken},
		{"mfa_not_enabled", auth.MfaLoginInput{MfaToken: plainPending, TotpCode: fixture.totp(t, 0)}, auth.ErrMfaNotEnabled},
		{"unknown_admin", auth.MfaLoginInput{MfaToken: ghostPending, TotpCode: fixture.totp(t, 0)}, auth.ErrPrincipalNotFound},
		{"wrong_totp", auth.MfaLoginInput{MfaToken: pending, TotpCode: "000000"}, auth.ErrInvalidMfaCode},
		{"wrong_backup", auth.MfaLoginInput{MfaToken: pending, BackupCode: "ZZZ999"}, auth.ErrInvalidMfaCode},
		{"no_code", auth.MfaLoginInput{MfaToken: pending}, auth.ErrInvalidMfaCode},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fixture.service.CompleteMfaLogin(ctx, tt.input)
			requireStatus(t, err, http.StatusUnauthorized)
			assert.ErrorIs(t, err, tt.kind)
			messages = append(messages, err.Error())
		})
	}

	for _, message := range messages {
		assert.Equal(t, messages[0], message)
	}
	assert.Len(t, fixture.principal(t, sec.RoleAdministrator, admin.ID).Mfa.BackupCodes, 1)
}

/*
TestMfa_ExpiredPendingToken rejects a challenge finished after the pending
window.
*/
func TestMfa_ExpiredPendingToken(t *testing.T) {
	fixture := newFixture(t)
	fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret)
	pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

	fixture.clock.Advance(6 * time.Minute)

	_, err := fixture.service.CompleteMfaLogin(context.Background(), auth.MfaLoginInput{
		MfaToken: pending,
		TotpCode: fixture.totp(t, 0),
	})
	requireStatus(t, err, http.StatusUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidMfaToken)
}

/*
TestMfa_ConcurrentBackupCode lets exactly one of many simultaneous requests
spend the same code.
*/
func TestMfa_ConcurrentBackupCode(t *testing.T) {
	fixture := newFixture(t)
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret, "ABC123", "DEF456")
	pending := fixture.pendingToken(t, "root@x.com", "Admin123!")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fixture.service.CompleteMfaLogin(context.Background(), auth.MfaLoginInput{MfaToken: pending, BackupCode: "ABC123"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, fixture.principal(t, sec.RoleAdministrator, admin.ID).Mfa.BackupCodes, 1)
}

/*
TestMfa_Enrollment walks setup, enable and disable for an administrator.
*/
func TestMfa_Enrollment(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", "")

	_, err := fixture.mfa.Enable(ctx, admin.ID, "123456")
	requireStatus(t, err, http.StatusUnprocessableEntity)

	setup, err := fixture.mfa.Setup(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, setup.ProvisioningURI, "secret="+setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "issuer=Campus+Test")

	stored := fixture.principal(t, sec.RoleAdministrator, admin.ID)
	assert.False(t, stored.MfaEnabled())
	assert.Equal(t, setup.Secret, stored.Mfa.Secret)

	_, err = fixture.mfa.Enable(ctx, admin.ID, "000000")
	assert.ErrorIs(t, err, auth.ErrInvalidMfaCode)

	code, err := sec.TOTPCode(setup.Secret, fixture.clock.Now())
	require.NoError(t, err)
	backupCodes, err := fixture.mfa.Enable(ctx, admin.ID, code)
	require.NoError(t, err)
	require.Len(t, backupCodes, sec.BackupCodeCount)

	stored = fixture.principal(t, sec.RoleAdministrator, admin.ID)
	assert.True(t, stored.MfaEnabled())
	assert.Len(t, stored.Mfa.BackupCodes, sec.BackupCodeCount)
	assert.NotContains(t, stored.Mfa.BackupCodes, backupCodes[0])

	_, err = fixture.mfa.Setup(ctx, admin.ID)
	requireStatus(t, err, http.StatusConflict)
	assert.ErrorIs(t, err, auth.ErrMfaAlreadyEnabled)

	// The issued codes work on the next login
	result, err := fixture.service.Login(ctx, auth.LoginInput{Email: "root@x.com", Password: "Admin123!"})
	require.NoError(t, err)
	require.True(t, result.RequiresMfa)
	_, err = fixture.service.CompleteMfaLogin(ctx, auth.MfaLoginInput{MfaToken: result.MfaToken, BackupCode: strings.ToLower(backupCodes[3])})
	require.NoError(t, err)

	err = fixture.mfa.Disable(ctx, admin.ID, "wrong")
	requireStatus(t, err, http.StatusUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	require.NoError(t, fixture.mfa.Disable(ctx, admin.ID, "Admin123!"))
	stored = fixture.principal(t, sec.RoleAdministrator, admin.ID)
	assert.False(t, stored.MfaEnabled())
	assert.Empty(t, stored.Mfa.Secret)
	assert.Empty(t, stored.Mfa.BackupCodes)

	err = fixture.mfa.Disable(ctx, admin.ID, "Admin123!")
	requireStatus(t, err, http.StatusUnprocessableEntity)

	_, err = fixture.mfa.Setup(ctx, "missing")
	requireStatus(t, err, http.StatusNotFound)

	types := fixture.events.Types()
	assert.Contains(t, types, auth.EventMfaEnabled)
	assert.Contains(t, types, auth.EventMfaDisabled)
}
