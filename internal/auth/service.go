// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/constants"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	"github.com/taibuivan/campus/internal/platform/dberr"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/pkg/normalize"
	"github.com/taibuivan/campus/pkg/uuid"
)

// # Contracts & Types

// PasswordHasher is implemented by [sec.PasswordHasher].
type PasswordHasher interface {
	Hash(plainText string) (string, error)
	Verify(plainText, existingHash string) bool
	VerifyDummy(plainText string) bool
}

// TokenIssuer is implemented by [sec.TokenService].
type TokenIssuer interface {
	IssueAccessToken(principalID, email string, roles []string) (string, error)
	IssuePendingMfaToken(principalID, email string) (string, error)
	Verify(token string) (*sec.Claims, error)
}

// loginProbeOrder is the order email logins search the principal tables.
// Students sign in by username on their own route.
var loginProbeOrder = []sec.Role{sec.RoleGuardian, sec.RoleInstructor, sec.RoleAdministrator}

// settings are shared by [Service] and [MfaService].
type settings struct {
	storeTimeout time.Duration
	now          func() time.Time
	mfaIssuer    string
}

// Option customises a [Service] or an [MfaService].
type Option func(*settings)

// WithStoreTimeout bounds every repository call.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(settings *settings) { settings.storeTimeout = timeout }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(settings *settings) { settings.now = now }
}

// WithMfaIssuer sets the issuer label shown by authenticator apps.
func WithMfaIssuer(issuer string) Option {
	return func(settings *settings) { settings.mfaIssuer = issuer }
}

func newSettings(options []Option) settings {
	result := settings{
		storeTimeout: constants.DefaultStoreTimeout,
		now:          time.Now,
		mfaIssuer:    constants.DefaultMfaIssuer,
	}
	for _, option := range options {
		option(&result)
	}
	return result
}

// LoginResult is the outcome of a credential check. Either AccessToken and
// Principal are set, or RequiresMfa and MfaToken are.
type LoginResult struct {
	AccessToken string
	Principal   *Profile
	RequiresMfa bool
	MfaToken    string
}

// Service orchestrates registration, login, profile, password change and
// logout for every principal kind.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, login
// dispatch or revocation ordering must be reviewed by the security team.
type Service struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	blacklist  *Blacklist
	mfa        *MfaService
	events     EventPublisher
	settings   settings
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	principals PrincipalRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	blacklist *Blacklist,
	mfa *MfaService,
	events EventPublisher,
	options ...Option,
) *Service {
	settings := newSettings(options)
	return &Service{
		principals: BoundPrincipalRepository(principals, settings.storeTimeout),
		hasher:     hasher,
		tokens:     tokens,
		blacklist:  blacklist,
		mfa:        mfa,
		events:     events,
		settings:   settings,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new guardian.
type RegisterInput struct {
	Email      string
	Password   string
	GivenName  string
	FamilyName string
	Phone      string
}

/*
Register hashes the password and persists a new guardian.

Description: Self-registration is open to guardians only; the other roles
are provisioned by operators. The conflict message never says which field
collided.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Profile: Created principal without credential fields
  - error: DuplicateEmail (409), StoreUnavailable (503) or internal failures
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Profile, error) {
	email := normalize.Email(input.Email)

	// Cheap pre-check; the unique constraint still decides under races
	_, err := service.principals.FindByEmail(context, sec.RoleGuardian, email)
	if err == nil {
		return nil, duplicateEmail(nil)
	}
	if !dberr.IsNotFound(err) {
		return nil, storeFailure(err)
	}

	passwordHash, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_hash_failed: %w", err))
	}

	now := service.settings.now().UTC()
	principal := &Principal{
		ID:         uuid.New(),
		Role:       sec.RoleGuardian,
		Email:      email,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
		Roles:      []sec.Role{sec.RoleGuardian},
		Phone:      input.Phone,
		Credential: Credential{PasswordHash: passwordHash},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := service.principals.Create(context, principal); err != nil {
		if dberr.IsConflict(err) {
			return nil, duplicateEmail(err)
		}
		return nil, storeFailure(err)
	}

	service.events.Publish(context, Event{
		Type:        EventRegistered,
		PrincipalID: principal.ID,
		Role:        principal.Role,
		At:          now,
	})

	return principal.Profile(), nil
}

// ProvisionInput describes an account created by an operator on someone's
// behalf. Students are identified by Username, every other role by Email.
type ProvisionInput struct {
	Role       sec.Role
	Email      string
	Username   string
	GivenName  string
	FamilyName string
	GuardianID *string
	Phone      string
	Title      string

	// Password is the initial password. When empty a temporary one is
	// generated and returned once.
	Password string
}

// ProvisionResult carries the created profile and, when one was generated,
// the temporary password to hand over to the principal.
type ProvisionResult struct {
	Profile           *Profile
	TemporaryPassword string
}

/*
Provision creates a principal of any role whose first password must be
changed on first sign-in.

Parameters:
  - context: context.Context
  - input: ProvisionInput

Returns:
  - *ProvisionResult: Created profile and optional temporary password
  - error: Validation (400), DuplicateEmail (409), StoreUnavailable (503)
*/
func (service *Service) Provision(context context.Context, input ProvisionInput) (*ProvisionResult, error) {
	if !input.Role.Valid() {
		return nil, apperr.ValidationError("Unknown role", apperr.FieldError{Field: "role", Message: "must be a known role"})
	}

	principal := &Principal{
		ID:         uuid.New(),
		Role:       input.Role,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
		Roles:      []sec.Role{input.Role},
	}

	switch input.Role {
	case sec.RoleStudent:
		principal.Username = normalize.Username(input.Username)
		principal.Email = normalize.Email(input.Email)
		principal.GuardianID = input.GuardianID
		if principal.Username == "" {
			return nil, apperr.ValidationError("Username is required", apperr.FieldError{Field: FieldUsername, Message: "is required"})
		}
	default:
		principal.Email = normalize.Email(input.Email)
		principal.Phone = input.Phone
		principal.Title = input.Title
		if principal.Email == "" {
			return nil, apperr.ValidationError("Email is required", apperr.FieldError{Field: FieldEmail, Message: "is required"})
		}
	}

	result := &ProvisionResult{}
	password := input.Password
	if password == "" {
		generated, err := sec.GenerateTemporaryPassword()
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("auth_service_temporary_password_failed: %w", err))
		}
		password = generated
		result.TemporaryPassword = generated
		principal.Credential.TemporaryPassword = &generated
	}

	passwordHash, err := service.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_hash_failed: %w", err))
	}
	principal.Credential.PasswordHash = passwordHash
	principal.Credential.MustChangePassword = true

	now := service.settings.now().UTC()
	principal.CreatedAt, principal.UpdatedAt = now, now

	if err := service.principals.Create(context, principal); err != nil {
		if dberr.IsConflict(err) {
			return nil, duplicateEmail(err)
		}
		return nil, storeFailure(err)
	}

	service.events.Publish(context, Event{
		Type:        EventProvisioned,
		PrincipalID: principal.ID,
		Role:        principal.Role,
		At:          now,
	})

	result.Profile = principal.Profile()
	return result, nil
}

// # Authentication Flow

// LoginInput defines credentials for an email login attempt.
type LoginInput struct {
	Email    string
	Password string
}

/*
Login authenticates a guardian, instructor or administrator by email.

Description: Tables are probed guardian, instructor, administrator; the first
match is the only candidate. Unknown emails still pay for one bcrypt compare
so response timing does not reveal whether the account exists. An
administrator with MFA enabled receives a pending token instead of a session.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Session or pending MFA challenge
  - error: InvalidCredential (401), StoreUnavailable (503)
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	email := normalize.Email(input.Email)

	var principal *Principal
	for _, role := range loginProbeOrder {
		found, err := service.principals.FindByEmail(context, role, email)
		if err == nil {
			principal = found
			break
		}
		if !dberr.IsNotFound(err) {
			return nil, storeFailure(err)
		}
	}

	return service.authenticate(context, principal, input.Password)
}

/*
LoginStudent authenticates a student by username.

Parameters:
  - context: context.Context
  - username: string
  - password: string

Returns:
  - *LoginResult: Session
  - error: InvalidCredential (401), StoreUnavailable (503)
*/
func (service *Service) LoginStudent(context context.Context, username, password string) (*LoginResult, error) {
	principal, err := service.principals.FindStudentByUsername(context, normalize.Username(username))
	if err != nil && !dberr.IsNotFound(err) {
		return nil, storeFailure(err)
	}

	return service.authenticate(context, principal, password)
}

// authenticate checks the password of a located principal, or burns an
// equivalent compare when none was found, and issues the outcome.
func (service *Service) authenticate(context context.Context, principal *Principal, password string) (*LoginResult, error) {
	if principal == nil {
		service.hasher.VerifyDummy(password)
		service.events.Publish(context, Event{Type: EventLoginFailed, At: service.settings.now()})
		return nil, invalidCredential()
	}

	if !service.hasher.Verify(password, principal.Credential.PasswordHash) {
		service.events.Publish(context, Event{
			Type:        EventLoginFailed,
			PrincipalID: principal.ID,
			Role:        principal.Role,
			At:          service.settings.now(),
		})
		return nil, invalidCredential()
	}

	if principal.Role == sec.RoleAdministrator && principal.MfaEnabled() {
		mfaToken, err := service.tokens.IssuePendingMfaToken(principal.ID, principal.Email)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("auth_service_issue_pending_failed: %w", err))
		}

		service.events.Publish(context, Event{
			Type:        EventMfaChallengeIssued,
			PrincipalID: principal.ID,
			Role:        principal.Role,
			At:          service.settings.now(),
		})
		return &LoginResult{RequiresMfa: true, MfaToken: mfaToken}, nil
	}

	accessToken, err := service.tokens.IssueAccessToken(principal.ID, principal.Email, principal.TokenRoles())
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_issue_token_failed: %w", err))
	}

	service.events.Publish(context, Event{
		Type:        EventLoginSucceeded,
		PrincipalID: principal.ID,
		Role:        principal.Role,
		At:          service.settings.now(),
	})

	return &LoginResult{AccessToken: accessToken, Principal: principal.Profile()}, nil
}

/*
CompleteMfaLogin finishes an administrator login started by [Service.Login].

Parameters:
  - context: context.Context
  - input: MfaLoginInput

Returns:
  - *LoginResult: Session
  - error: see [MfaService.CompleteChallenge]
*/
func (service *Service) CompleteMfaLogin(context context.Context, input MfaLoginInput) (*LoginResult, error) {
	return service.mfa.CompleteChallenge(context, input.MfaToken, input.TotpCode, input.BackupCode)
}

// # Profile

/*
GetProfile returns the client projection of a principal.

Parameters:
  - context: context.Context
  - principalID: string
  - role: sec.Role

Returns:
  - *Profile: Principal without credential fields
  - error: PrincipalNotFound (404), StoreUnavailable (503)
*/
func (service *Service) GetProfile(context context.Context, principalID string, role sec.Role) (*Profile, error) {
	principal, err := service.principals.FindByID(context, role, principalID)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, principalNotFound()
		}
		return nil, storeFailure(err)
	}
	return principal.Profile(), nil
}

// # Credential Management

/*
ChangePassword replaces a principal's password and revokes every token issued
to it so far.

Description: The owner is located by probing the tables in [sec.SearchOrder].
Revocation happens after the current password is verified and before the new
hash is persisted: if revocation fails the password is left unchanged, and
if persisting fails the principal only has to sign in again with the old
password.

Parameters:
  - context: context.Context
  - principalID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: PrincipalNotFound (404), InvalidCredential (401), StoreUnavailable (503)
*/
func (service *Service) ChangePassword(context context.Context, principalID, currentPassword, newPassword string) error {
	principal, err := service.locate(context, principalID)
	if err != nil {
		return err
	}

	if !service.hasher.Verify(currentPassword, principal.Credential.PasswordHash) {
		return invalidCredential()
	}

	passwordHash, err := service.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(fmt.Errorf("auth_service_hash_failed: %w", err))
	}

	if err := service.blacklist.RevokeAllForPrincipal(context, principal.ID, ReasonPasswordChange); err != nil {
		return revocationFailure(err)
	}

	now := service.settings.now().UTC()
	update := CredentialUpdate{PasswordHash: passwordHash, ChangedAt: now}
	if err := service.principals.UpdateCredential(context, principal.Role, principal.ID, update); err != nil {
		if dberr.IsNotFound(err) {
			return principalNotFound()
		}
		return storeFailure(err)
	}

	service.events.Publish(context, Event{
		Type:        EventPasswordChanged,
		PrincipalID: principal.ID,
		Role:        principal.Role,
		At:          now,
		Attributes:  map[string]any{"had_temporary_password": principal.Credential.TemporaryPassword != nil},
	})

	return nil
}

// locate finds the table owning principalID. First match wins.
func (service *Service) locate(context context.Context, principalID string) (*Principal, error) {
	for _, role := range sec.SearchOrder {
		principal, err := service.principals.FindByID(context, role, principalID)
		if err == nil {
			return principal, nil
		}
		if !dberr.IsNotFound(err) {
			return nil, storeFailure(err)
		}
	}
	return nil, principalNotFound()
}

/*
Logout revokes the presented token for the rest of its lifetime.

Description: An empty, expired or undecodable token is a silent no-op, and so
is a second logout with the same token.

Parameters:
  - context: context.Context
  - rawToken: string

Returns:
  - error: StoreUnavailable (503)
*/
func (service *Service) Logout(context context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}

	created, err := service.blacklist.Revoke(context, rawToken, ReasonLogout)
	if err != nil {
		return revocationFailure(err)
	}

	if !created {
		ctxutil.GetLogger(context).Debug("logout_token_already_unusable",
			slog.String("token_id", sec.HashToken(rawToken)[:12]),
		)
		return nil
	}

	event := Event{Type: EventLoggedOut, At: service.settings.now()}
	if claims, err := service.tokens.Verify(rawToken); err == nil {
		event.PrincipalID = claims.PrincipalID()
	}
	service.events.Publish(context, event)

	return nil
}
