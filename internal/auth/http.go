// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/campus/internal/platform/constants"
	"github.com/taibuivan/campus/internal/platform/middleware"
	requestutil "github.com/taibuivan/campus/internal/platform/request"
	"github.com/taibuivan/campus/internal/platform/respond"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
//
// # Scope
//
// Credential entry points for every principal kind, the administrator MFA
// challenge and enrollment, and session teardown. Token verification for
// protected routes is done upstream by [middleware.Authenticate].
type Handler struct {
	authService   *Service
	mfaService    *MfaService
	secureCookies bool
	loginLimiter  func(http.Handler) http.Handler
}

// NewHandler constructs a new [Handler].
//
// secureCookies sets the Secure attribute on the session cookie and should be
// true in production. loginLimiter throttles the credential routes; nil
// disables it.
func NewHandler(service *Service, mfa *MfaService, secureCookies bool, loginLimiter func(http.Handler) http.Handler) *Handler {
	if loginLimiter == nil {
		loginLimiter = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		authService:   service,
		mfaService:    mfa,
		secureCookies: secureCookies,
		loginLimiter:  loginLimiter,
	}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register           : Creates a guardian account.
//   - POST /login              : Email login; may answer with an MFA challenge.
//   - POST /student/login      : Username login for students.
//   - POST /complete-mfa-login : Exchanges a pending MFA token for a session.
//   - GET  /profile            : Current principal.
//   - POST /change-password    : Replaces the password and revokes all sessions.
//   - POST /logout             : Revokes the presented token.
//   - POST /mfa/{setup,enable,disable} : Administrator MFA enrollment.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/logout", handler.logout)

	// Credential endpoints, throttled per IP
	router.Group(func(r chi.Router) {
		r.Use(handler.loginLimiter)
		r.Post("/login", handler.login)
		r.Post("/student/login", handler.loginStudent)
		r.Post("/complete-mfa-login", handler.completeMfaLogin)
	})

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/profile", handler.profile)
		r.Post("/change-password", handler.changePassword)
	})

	// Administrator MFA enrollment
	router.Route("/mfa", func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleAdministrator))
		r.Post("/setup", handler.mfaSetup)
		r.Post("/enable", handler.mfaEnable)
		r.Post("/disable", handler.mfaDisable)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Phone      string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type studentLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type completeMfaLoginRequest struct {
	MfaToken   string `json:"mfa_token"`
	TotpCode   string `json:"totp_code"`
	BackupCode string `json:"backup_code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type mfaEnableRequest struct {
	TotpCode string `json:"totp_code"`
}

type mfaDisableRequest struct {
	Password string `json:"password"`
}

// # Response Payloads

type sessionResponse struct {
	AccessToken string   `json:"access_token"`
	User        *Profile `json:"user"`
}

type mfaChallengeResponse struct {
	RequiresMfa bool   `json:"requires_mfa"`
	MfaToken    string `json:"mfa_token"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

/*
Register handles guardian self-registration.

POST /api/v1/auth/register

Request:
  - Body: registerRequest (Email, Password, GivenName, FamilyName, Phone)

Response:
  - 201: Profile: Created guardian
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Registration could not be completed
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password).
		Required(FieldGivenName, input.GivenName).
		MaxLen(FieldGivenName, input.GivenName, 100).
		Required(FieldFamilyName, input.FamilyName).
		MaxLen(FieldFamilyName, input.FamilyName, 100).
		MaxLen(FieldPhone, input.Phone, 32)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:      input.Email,
		Password:   input.Password,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
		Phone:      input.Phone,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, profile)
}

/*
Login authenticates a guardian, instructor or administrator by email.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: sessionResponse + auth cookie, or mfaChallengeResponse for administrators with MFA
  - 401: ErrUnauthorized: Invalid credentials
  - 429: ErrRateLimited: Too many attempts from this IP
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeLoginResult(writer, result)
}

/*
LoginStudent authenticates a student by username.

POST /api/v1/auth/student/login

Request:
  - Body: studentLoginRequest (Username, Password)

Response:
  - 200: sessionResponse + auth cookie
  - 401: ErrUnauthorized: Invalid credentials
*/
func (handler *Handler) loginStudent(writer http.ResponseWriter, request *http.Request) {
	var input studentLoginRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.LoginStudent(request.Context(), input.Username, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeLoginResult(writer, result)
}

/*
CompleteMfaLogin verifies the second factor of an administrator login.

POST /api/v1/auth/complete-mfa-login

Request:
  - Body: completeMfaLoginRequest (MfaToken, TotpCode | BackupCode)

Response:
  - 200: sessionResponse + auth cookie
  - 401: ErrUnauthorized: Invalid or expired MFA verification
*/
func (handler *Handler) completeMfaLogin(writer http.ResponseWriter, request *http.Request) {
	var input completeMfaLoginRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldMfaToken, input.MfaToken).
		Custom(FieldTotpCode, input.TotpCode == "" && input.BackupCode == "", "totp_code or backup_code is required")
	if input.TotpCode != "" {
		validator.Digits(FieldTotpCode, input.TotpCode, sec.TOTPDigits)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.CompleteMfaLogin(request.Context(), MfaLoginInput{
		MfaToken:   input.MfaToken,
		TotpCode:   input.TotpCode,
		BackupCode: input.BackupCode,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeLoginResult(writer, result)
}

/*
Profile returns the authenticated principal.

GET /api/v1/auth/profile

Description: The principal table is taken from the role claim. When a token
carries several roles they are tried in order.

Response:
  - 200: Profile
  - 401: ErrUnauthorized: Missing, invalid or revoked token
  - 404: ErrNotFound: Principal no longer exists
*/
func (handler *Handler) profile(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = principalNotFound()
	for _, value := range claims.Roles {
		role, parseErr := sec.ParseRole(value)
		if parseErr != nil {
			continue
		}

		var profile *Profile
		profile, err = handler.authService.GetProfile(request.Context(), claims.PrincipalID(), role)
		if err == nil {
			respond.OK(writer, profile)
			return
		}
		if !errors.Is(err, ErrPrincipalNotFound) {
			break
		}
	}

	respond.Error(writer, request, err)
}

/*
ChangePassword replaces the caller's password.

POST /api/v1/auth/change-password

Description: On success every token issued to the caller so far is revoked,
the presented one included, and the auth cookie is cleared.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Message
  - 400: ErrValidation: New password does not meet the policy
  - 401: ErrUnauthorized: Wrong current password
  - 404: ErrNotFound: Principal not found
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ChangePassword(request.Context(), claims.PrincipalID(), input.CurrentPassword, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookie(writer)
	respond.Message(writer, "Password changed successfully")
}

/*
Logout revokes the presented token and clears the auth cookie.

POST /api/v1/auth/logout

Description: Idempotent. A request without a token, or with a token that is
already expired or revoked, still succeeds.

Response:
  - 200: Message
  - 503: ErrServiceUnavailable: Revocation store unreachable
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	rawToken, _ := requestutil.BearerToken(request)

	if err := handler.authService.Logout(request.Context(), rawToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookie(writer)
	respond.Message(writer, "Logged out successfully")
}

/*
MfaSetup starts MFA enrollment for the calling administrator.

POST /api/v1/auth/mfa/setup

Response:
  - 200: MfaSetup: Secret and provisioning URI
  - 409: ErrConflict: MFA already enabled
*/
func (handler *Handler) mfaSetup(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setup, err := handler.mfaService.Setup(request.Context(), claims.PrincipalID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, setup)
}

/*
MfaEnable confirms enrollment with a TOTP code.

POST /api/v1/auth/mfa/enable

Request:
  - Body: mfaEnableRequest (TotpCode)

Response:
  - 200: backupCodesResponse: Plaintext backup codes, shown once
  - 401: ErrUnauthorized: Code does not match
  - 422: ErrUnprocessable: Setup was not started
*/
func (handler *Handler) mfaEnable(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input mfaEnableRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldTotpCode, input.TotpCode).
		Digits(FieldTotpCode, input.TotpCode, sec.TOTPDigits)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.mfaService.Enable(request.Context(), claims.PrincipalID(), input.TotpCode)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, backupCodesResponse{BackupCodes: codes})
}

/*
MfaDisable turns MFA off after re-checking the password.

POST /api/v1/auth/mfa/disable

Request:
  - Body: mfaDisableRequest (Password)

Response:
  - 200: Message
  - 401: ErrUnauthorized: Wrong password
  - 422: ErrUnprocessable: MFA not enabled
*/
func (handler *Handler) mfaDisable(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input mfaDisableRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.mfaService.Disable(request.Context(), claims.PrincipalID(), input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, "MFA disabled")
}

// # Session Cookie

func (handler *Handler) writeLoginResult(writer http.ResponseWriter, result *LoginResult) {
	if result.RequiresMfa {
		respond.OK(writer, mfaChallengeResponse{RequiresMfa: true, MfaToken: result.MfaToken})
		return
	}

	handler.setSessionCookie(writer, result.AccessToken)
	respond.OK(writer, sessionResponse{AccessToken: result.AccessToken, User: result.Principal})
}

func (handler *Handler) setSessionCookie(writer http.ResponseWriter, token string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AuthCookieName,
		Value:    token,
		Path:     constants.AuthCookiePath,
		MaxAge:   int(constants.AuthCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (handler *Handler) clearSessionCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AuthCookieName,
		Value:    "",
		Path:     constants.AuthCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
