// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/pkg/pointer"
)

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError, "expected *apperr.AppError, got %T", err)
	assert.Equal(t, status, appError.HTTPStatus)
}

/*
TestService_Register creates a guardian and rejects a second registration
with the same email, whatever its case.
*/
func TestService_Register(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	profile, err := fixture.service.Register(ctx, auth.RegisterInput{
		Email:      "a@x.com",
		Password:   "Secret123!",
		GivenName:  "Ana",
		FamilyName: "Lopez",
	})
	require.NoError(t, err)

	assert.Equal(t, sec.RoleGuardian, profile.Role)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, []string{"guardian"}, profile.Roles)
	assert.False(t, profile.MustChangePassword)
	assert.Contains(t, fixture.events.Types(), auth.EventRegistered)

	stored := fixture.principal(t, sec.RoleGuardian, profile.ID)
	assert.NotEqual(t, "Secret123!", stored.Credential.PasswordHash)
	assert.True(t, fixture.hasher.Verify("Secret123!", stored.Credential.PasswordHash))

	for _, email := range []string{"a@x.com", "A@X.com "} {
		_, err = fixture.service.Register(ctx, auth.RegisterInput{Email: email, Password: "Another123!", GivenName: "B", FamilyName: "C"})
		requireStatus(t, err, http.StatusConflict)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.NotContains(t, err.Error(), "email", "conflict message must stay generic")
	}
}

/*
TestService_Register_SameEmailOtherRole allows an email that already exists
in another principal table.
*/
func TestService_Register_SameEmailOtherRole(t *testing.T) {
	fixture := newFixture(t)
	fixture.seed(t, auth.Principal{Role: sec.RoleInstructor, Email: "shared@x.com"}, "Instructor123!")

	_, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Email: "shared@x.com", Password: "Secret123!", GivenName: "Ana", FamilyName: "Lopez",
	})
	assert.NoError(t, err)
}

/*
TestService_Login issues a session token whose claims match the principal and
whose profile reflects the must-change-password flag.
*/
func TestService_Login(t *testing.T) {
	fixture := newFixture(t)
	guardian := fixture.seed(t, auth.Principal{
		Role:       sec.RoleGuardian,
		Email:      "g@x.com",
		Credential: auth.Credential{MustChangePassword: true},
	}, "Secret123!")

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "G@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	require.False(t, result.RequiresMfa)
	require.NotEmpty(t, result.AccessToken)

	claims, err := fixture.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, guardian.ID, claims.PrincipalID())
	assert.Equal(t, "g@x.com", claims.Email)
	assert.Equal(t, []string{"guardian"}, claims.Roles)
	assert.Equal(t, sec.TokenTypeSession, claims.Type)

	assert.True(t, result.Principal.MustChangePassword)
	assert.Contains(t, fixture.events.Types(), auth.EventLoginSucceeded)
}

/*
TestService_Login_InvalidCredential answers an unknown email and a wrong
password with the same error.
*/
func TestService_Login_InvalidCredential(t *testing.T) {
	fixture := newFixture(t)
	fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "g@x.com"}, "Secret123!")

	_, wrongPassword := fixture.service.Login(context.Background(), auth.LoginInput{Email: "g@x.com", Password: "nope"})
	_, unknownEmail := fixture.service.Login(context.Background(), auth.LoginInput{Email: "ghost@x.com", Password: "Secret123!"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		requireStatus(t, err, http.StatusUnauthorized)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	}
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Contains(t, fixture.events.Types(), auth.EventLoginFailed)
}

/*
TestService_Login_ProbeOrder picks the guardian record when the same email
exists as guardian and instructor.
*/
func TestService_Login_ProbeOrder(t *testing.T) {
	fixture := newFixture(t)
	guardian := fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "dual@x.com"}, "Guardian123!")
	fixture.seed(t, auth.Principal{Role: sec.RoleInstructor, Email: "dual@x.com"}, "Instructor123!")

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "dual@x.com", Password: "Guardian123!"})
	require.NoError(t, err)
	assert.Equal(t, guardian.ID, result.Principal.ID)

	_, err = fixture.service.Login(context.Background(), auth.LoginInput{Email: "dual@x.com", Password: "Instructor123!"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

/*
TestService_Login_StoredRoles carries the stored role set in the token.
*/
func TestService_Login_StoredRoles(t *testing.T) {
	fixture := newFixture(t)
	fixture.seed(t, auth.Principal{
		Role:  sec.RoleInstructor,
		Email: "i@x.com",
		Roles: []sec.Role{sec.RoleInstructor, sec.RoleGuardian},
	}, "Instructor123!")

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "i@x.com", Password: "Instructor123!"})
	require.NoError(t, err)

	claims, err := fixture.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"instructor", "guardian"}, claims.Roles)
}

/*
TestService_Login_AdministratorWithMfa answers with a pending token and no
session.
*/
func TestService_Login_AdministratorWithMfa(t *testing.T) {
	fixture := newFixture(t)
	admin := fixture.seedAdministrator(t, "root@x.com", "Admin123!", totpSecret, "ABC123")

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "root@x.com", Password: "Admin123!"})
	require.NoError(t, err)

	assert.True(t, result.RequiresMfa)
	assert.Empty(t, result.AccessToken)
	assert.Nil(t, result.Principal)

	claims, err := fixture.tokens.Verify(result.MfaToken)
	require.NoError(t, err)
	assert.Equal(t, sec.TokenTypeMfaPending, claims.Type)
	assert.Equal(t, admin.ID, claims.PrincipalID())
	assert.Empty(t, claims.Roles)
	assert.Contains(t, fixture.events.Types(), auth.EventMfaChallengeIssued)
}

/*
TestService_Login_AdministratorWithoutMfa gets a session directly.
*/
func TestService_Login_AdministratorWithoutMfa(t *testing.T) {
	fixture := newFixture(t)
	fixture.seedAdministrator(t, "root@x.com", "Admin123!", "")

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "root@x.com", Password: "Admin123!"})
	require.NoError(t, err)
	assert.False(t, result.RequiresMfa)
	assert.NotEmpty(t, result.AccessToken)
	require.NotNil(t, result.Principal.MfaEnabled)
	assert.False(t, *result.Principal.MfaEnabled)
}

/*
TestService_LoginStudent authenticates by normalized username.
*/
func TestService_LoginStudent(t *testing.T) {
	fixture := newFixture(t)
	student := fixture.seed(t, auth.Principal{Role: sec.RoleStudent, Username: "jose.perez"}, "Student123!")

	result, err := fixture.service.LoginStudent(context.Background(), " José.Perez ", "Student123!")
	require.NoError(t, err)
	assert.Equal(t, student.ID, result.Principal.ID)
	assert.Equal(t, []string{"student"}, result.Principal.Roles)

	_, err = fixture.service.LoginStudent(context.Background(), "nobody", "Student123!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

/*
TestService_StoreUnavailable surfaces a store outage as a retryable 503, never
as an authentication failure.
*/
func TestService_StoreUnavailable(t *testing.T) {
	fixture := newFixture(t)
	fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "g@x.com"}, "Secret123!")
	fixture.store.FailWith(errors.New("connection refused"))

	_, err := fixture.service.Login(context.Background(), auth.LoginInput{Email: "g@x.com", Password: "Secret123!"})
	requireStatus(t, err, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredential)

	_, err = fixture.service.GetProfile(context.Background(), "any", sec.RoleGuardian)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

/*
TestService_StoreTimeout turns a store call that outlives the deadline into
StoreUnavailable.
*/
func TestService_StoreTimeout(t *testing.T) {
	fixture := newFixture(t)
	service := auth.NewService(slowRepository{fixture.store}, fixture.hasher, fixture.tokens, fixture.blacklist, fixture.mfa, fixture.events,
		auth.WithStoreTimeout(10*time.Millisecond))

	_, err := service.Login(context.Background(), auth.LoginInput{Email: "g@x.com", Password: "Secret123!"})
	requireStatus(t, err, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

// slowRepository blocks lookups until the caller's deadline.
type slowRepository struct {
	auth.PrincipalRepository
}

func (repository slowRepository) FindByEmail(ctx context.Context, role sec.Role, email string) (*auth.Principal, error) {
	<-ctx.Done()
	return repository.PrincipalRepository.FindByEmail(ctx, role, email)
}

/*
TestService_GetProfile dispatches on role and never exposes credential fields.
*/
func TestService_GetProfile(t *testing.T) {
	fixture := newFixture(t)
	student := fixture.seed(t, auth.Principal{
		Role:     sec.RoleStudent,
		Username: "kid",
		Credential: auth.Credential{
			TemporaryPassword:  pointer.To("Tmp-Kid-Pass"),
			MustChangePassword: true,
		},
	}, "Tmp-Kid-Pass")

	profile, err := fixture.service.GetProfile(context.Background(), student.ID, sec.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "kid", profile.Username)
	assert.Nil(t, profile.MfaEnabled)

	encoded, err := json.Marshal(profile)
	require.NoError(t, err)
	for _, forbidden := range []string{"Tmp-Kid-Pass", "password_hash", "temporary", "$2a$"} {
		assert.NotContains(t, string(encoded), forbidden)
	}
	assert.Contains(t, string(encoded), `"debe_cambiar_password":true`)

	_, err = fixture.service.GetProfile(context.Background(), student.ID, sec.RoleGuardian)
	requireStatus(t, err, http.StatusNotFound)
	assert.ErrorIs(t, err, auth.ErrPrincipalNotFound)
}

/*
TestService_ChangePassword_WrongCurrent rejects the change and leaves the
credential and the revocation store untouched.
*/
func TestService_ChangePassword_WrongCurrent(t *testing.T) {
	fixture := newFixture(t)
	student := fixture.seed(t, auth.Principal{
		Role:     sec.RoleStudent,
		Username: "kid",
		Credential: auth.Credential{
			TemporaryPassword:  pointer.To("1234"),
			MustChangePassword: true,
		},
	}, "1234")

	err := fixture.service.ChangePassword(context.Background(), student.ID, "0000", "NewSecret123!")
	requireStatus(t, err, http.StatusUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	after := fixture.principal(t, sec.RoleStudent, student.ID)
	assert.Equal(t, student.Credential.PasswordHash, after.Credential.PasswordHash)
	assert.Equal(t, pointer.To("1234"), after.Credential.TemporaryPassword)
	assert.True(t, after.Credential.MustChangePassword)
	assert.Zero(t, fixture.revocations.Len())
}

/*
TestService_ChangePassword clears the temporary password and the flag
together, and revokes every token issued before the change.
*/
func TestService_ChangePassword(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	student := fixture.seed(t, auth.Principal{
		Role:     sec.RoleStudent,
		Username: "kid",
		Credential: auth.Credential{
			TemporaryPassword:  pointer.To("1234"),
			MustChangePassword: true,
		},
	}, "1234")

	before, err := fixture.service.LoginStudent(ctx, "kid", "1234")
	require.NoError(t, err)
	fixture.clock.Advance(time.Minute)

	require.NoError(t, fixture.service.ChangePassword(ctx, student.ID, "1234", "NewSecret123!"))

	after := fixture.principal(t, sec.RoleStudent, student.ID)
	assert.Nil(t, after.Credential.TemporaryPassword)
	assert.False(t, after.Credential.MustChangePassword)
	require.NotNil(t, after.Credential.LastChangedAt)
	assert.Equal(t, fixture.clock.Now().UTC(), *after.Credential.LastChangedAt)
	assert.True(t, fixture.hasher.Verify("NewSecret123!", after.Credential.PasswordHash))

	claims, err := fixture.tokens.Verify(before.AccessToken)
	require.NoError(t, err)
	revoked, err := fixture.blacklist.IsPrincipalRevoked(ctx, student.ID, claims.IssuedAtTime())
	require.NoError(t, err)
	assert.True(t, revoked, "token issued before the change must be revoked")

	fixture.clock.Advance(time.Second)
	fresh, err := fixture.service.LoginStudent(ctx, "kid", "NewSecret123!")
	require.NoError(t, err)
	assert.False(t, fresh.Principal.MustChangePassword)

	freshClaims, err := fixture.tokens.Verify(fresh.AccessToken)
	require.NoError(t, err)
	revoked, err = fixture.blacklist.IsPrincipalRevoked(ctx, student.ID, freshClaims.IssuedAtTime())
	require.NoError(t, err)
	assert.False(t, revoked, "token issued after the change must stay valid")

	_, err = fixture.service.LoginStudent(ctx, "kid", "1234")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	assert.Contains(t, fixture.events.Types(), auth.EventPasswordChanged)
}

/*
TestService_ChangePassword_LocatesAnyRole finds principals in every table.
*/
func TestService_ChangePassword_LocatesAnyRole(t *testing.T) {
	fixture := newFixture(t)
	principals := []*auth.Principal{
		fixture.seed(t, auth.Principal{Role: sec.RoleStudent, Username: "s"}, "Old12345!"),
		fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "g@x.com"}, "Old12345!"),
		fixture.seed(t, auth.Principal{Role: sec.RoleInstructor, Email: "i@x.com"}, "Old12345!"),
		fixture.seedAdministrator(t, "a@x.com", "Old12345!", ""),
	}

	for _, principal := range principals {
		t.Run(string(principal.Role), func(t *testing.T) {
			require.NoError(t, fixture.service.ChangePassword(context.Background(), principal.ID, "Old12345!", "New12345!"))
			after := fixture.principal(t, principal.Role, principal.ID)
			assert.True(t, fixture.hasher.Verify("New12345!", after.Credential.PasswordHash))
		})
	}

	err := fixture.service.ChangePassword(context.Background(), "missing", "Old12345!", "New12345!")
	requireStatus(t, err, http.StatusNotFound)
	assert.ErrorIs(t, err, auth.ErrPrincipalNotFound)
}

/*
TestService_ChangePassword_RevocationFailure aborts the change when old
sessions cannot be revoked.
*/
func TestService_ChangePassword_RevocationFailure(t *testing.T) {
	fixture := newFixtureWithRevocations(t, failingRevocationStore{})
	guardian := fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "g@x.com"}, "Old12345!")

	err := fixture.service.ChangePassword(context.Background(), guardian.ID, "Old12345!", "New12345!")
	requireStatus(t, err, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)

	after := fixture.principal(t, sec.RoleGuardian, guardian.ID)
	assert.True(t, fixture.hasher.Verify("Old12345!", after.Credential.PasswordHash))
}

// failingRevocationStore fails every call.
type failingRevocationStore struct{}

var errRevocationDown = errors.New("revocation store down")

func (failingRevocationStore) RevokeToken(context.Context, auth.RevocationRecord, time.Duration) (bool, error) {
	return false, errRevocationDown
}

func (failingRevocationStore) IsTokenRevoked(context.Context, string) (bool, error) {
	return false, errRevocationDown
}

func (failingRevocationStore) RevokePrincipal(context.Context, auth.RevocationRecord, time.Duration) error {
	return errRevocationDown
}

func (failingRevocationStore) PrincipalRevokedSince(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errRevocationDown
}

/*
TestService_Logout revokes the presented token once; repeated, empty and
garbage tokens are silent successes.
*/
func TestService_Logout(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	fixture.seed(t, auth.Principal{Role: sec.RoleGuardian, Email: "g@x.com"}, "Secret123!")

	result, err := fixture.service.Login(ctx, auth.LoginInput{Email: "g@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(ctx, result.AccessToken))
	require.NoError(t, fixture.service.Logout(ctx, result.AccessToken))
	require.NoError(t, fixture.service.Logout(ctx, ""))
	require.NoError(t, fixture.service.Logout(ctx, "not-a-jwt"))

	revoked, err := fixture.blacklist.IsRevoked(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, fixture.revocations.Len())

	loggedOut := 0
	for _, eventType := range fixture.events.Types() {
		if eventType == auth.EventLoggedOut {
			loggedOut++
		}
	}
	assert.Equal(t, 1, loggedOut)
}

/*
TestService_Logout_StoreFailure fails closed.
*/
func TestService_Logout_StoreFailure(t *testing.T) {
	fixture := newFixtureWithRevocations(t, failingRevocationStore{})
	token, err := fixture.tokens.IssueAccessToken("p-1", "g@x.com", []string{"guardian"})
	require.NoError(t, err)

	err = fixture.service.Logout(context.Background(), token)
	requireStatus(t, err, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

/*
TestService_Provision generates a temporary password that works once and is
cleared by the first password change.
*/
func TestService_Provision(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	result, err := fixture.service.Provision(ctx, auth.ProvisionInput{
		Role:       sec.RoleStudent,
		Username:   "Nuevo.Alumno",
		GivenName:  "Nuevo",
		FamilyName: "Alumno",
	})
	require.NoError(t, err)
	require.Len(t, result.TemporaryPassword, sec.TemporaryPasswordLength)
	assert.Equal(t, "nuevo.alumno", result.Profile.Username)
	assert.True(t, result.Profile.MustChangePassword)

	stored := fixture.principal(t, sec.RoleStudent, result.Profile.ID)
	assert.Equal(t, pointer.To(result.TemporaryPassword), stored.Credential.TemporaryPassword)

	login, err := fixture.service.LoginStudent(ctx, "nuevo.alumno", result.TemporaryPassword)
	require.NoError(t, err)
	assert.True(t, login.Principal.MustChangePassword)

	_, err = fixture.service.Provision(ctx, auth.ProvisionInput{Role: sec.RoleStudent, Username: "nuevo.alumno", GivenName: "X", FamilyName: "Y"})
	requireStatus(t, err, http.StatusConflict)

	_, err = fixture.service.Provision(ctx, auth.ProvisionInput{Role: sec.RoleInstructor, GivenName: "X", FamilyName: "Y"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = fixture.service.Provision(ctx, auth.ProvisionInput{Role: "janitor", Email: "j@x.com"})
	requireStatus(t, err, http.StatusBadRequest)
}

/*
TestService_Provision_GivenPassword keeps the operator's password and sets
only the must-change flag.
*/
func TestService_Provision_GivenPassword(t *testing.T) {
	fixture := newFixture(t)

	result, err := fixture.service.Provision(context.Background(), auth.ProvisionInput{
		Role:       sec.RoleAdministrator,
		Email:      "Ops@X.com",
		GivenName:  "Ops",
		FamilyName: "Team",
		Password:   "Bootstrap123!",
	})
	require.NoError(t, err)
	assert.Empty(t, result.TemporaryPassword)

	stored := fixture.principal(t, sec.RoleAdministrator, result.Profile.ID)
	assert.Equal(t, "ops@x.com", stored.Email)
	assert.Nil(t, stored.Credential.TemporaryPassword)
	assert.True(t, stored.Credential.MustChangePassword)
	assert.True(t, fixture.hasher.Verify("Bootstrap123!", stored.Credential.PasswordHash))
}
