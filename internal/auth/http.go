// Copyright (c) 2026 Cathedra. All rights reserved.

// HTTP delivery layer for the auth core.
//
// # Architecture
//
// Handlers act as the "gatekeepers" to the system. They are responsible for:
//   - JSON request parsing and strict input validation.
//   - Mapping HTTP contexts to service layer method calls.
//   - Standardizing JSON response formats via the [respond] package.
//
// They contain NO business logic or database queries.

package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
	"github.com/cathedra-app/cathedra/internal/platform/constants"
	"github.com/cathedra-app/cathedra/internal/platform/ctxutil"
	"github.com/cathedra-app/cathedra/internal/platform/middleware"
	"github.com/cathedra-app/cathedra/internal/platform/respond"
	"github.com/cathedra-app/cathedra/internal/platform/validate"
)

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService *Service

	// secureCookies marks refresh cookies Secure; disabled only in local dev.
	secureCookies bool
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{authService: service, secureCookies: secureCookies}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /login               : Password step; returns tokens or an OTP gate.
//   - POST /otp/verify          : Completes a 2FA-gated login.
//   - POST /refresh             : Rotates the refresh token pair.
//   - POST /logout              : Revokes the presented refresh token.
//   - POST /logout-all          : Revokes every session (authenticated).
//   - POST /email/request-code  : Issues an email verification code.
//   - POST /email/verify        : Confirms an email verification code.
//   - POST /password/forgot     : Issues a reset token (enumeration-masked).
//   - POST /password/reset      : Consumes a reset token.
//   - POST /2fa/enable|confirm|disable : TOTP enrollment (authenticated).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/login", handler.login)
	router.Post("/otp/verify", handler.verifyOtp)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	router.Post("/email/request-code", handler.requestEmailCode)
	router.Post("/email/verify", handler.verifyEmailCode)

	router.Post("/password/forgot", handler.forgotPassword)
	router.Post("/password/reset", handler.resetPassword)

	router.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth)
		protected.Post("/logout-all", handler.logoutAll)
		protected.Post("/2fa/enable", handler.enableTwoFactor)
		protected.Post("/2fa/confirm", handler.confirmTwoFactor)
		protected.Post("/2fa/disable", handler.disableTwoFactor)
	})

	return router
}

// ── Login & Session ──────────────────────────────────────────────────────────

// loginRequest represents the JSON payload expected for authentication.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login handles POST /api/v1/auth/login requests.
//
// # Returns
//   - HTTP 200 with tokens and profile on success.
//   - HTTP 200 with {"otp_required": true} when a 2FA challenge was issued.
//   - HTTP 401 for bad credentials, without leaking which part was wrong.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input loginRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.Required("email", input.Email).
		Email("email", input.Email).
		Required("password", input.Password)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	if result.OtpRequired {
		respond.OK(writer, map[string]any{"otp_required": true})
		return
	}

	handler.writeSession(writer, result.Session)
}

// otpVerifyRequest completes a pending 2FA login.
type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// verifyOtp handles POST /api/v1/auth/otp/verify requests.
func (handler *Handler) verifyOtp(writer http.ResponseWriter, request *http.Request) {
	var input otpVerifyRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).
		Code("code", input.Code)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	session, err := handler.authService.CompleteOtpLogin(request.Context(), input.Email, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

// refreshRequest optionally carries the refresh token when no cookie is set
// (native clients).
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh handles POST /api/v1/auth/refresh requests, rotating the pair.
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := handler.readRefreshToken(request)
	if refreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Refresh token is required"))
		return
	}

	session, err := handler.authService.RefreshSession(request.Context(), refreshToken)
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

// logout handles POST /api/v1/auth/logout requests. Always succeeds:
// revoking an unknown token is a successful logout.
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if refreshToken := handler.readRefreshToken(request); refreshToken != "" {
		if err := handler.authService.Logout(request.Context(), refreshToken); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// logoutAll handles POST /api/v1/auth/logout-all requests, terminating every
// session of the authenticated account.
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	count, err := handler.authService.LogoutAll(request.Context(), claims.UserID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.OK(writer, map[string]any{"sessions_revoked": count})
}

// ── Email Verification ───────────────────────────────────────────────────────

// emailCodeRequest asks for a fresh verification code.
type emailCodeRequest struct {
	Email string `json:"email"`
}

// requestEmailCode handles POST /api/v1/auth/email/request-code requests.
func (handler *Handler) requestEmailCode(writer http.ResponseWriter, request *http.Request) {
	var input emailCodeRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).Email("email", input.Email)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	if _, err := handler.authService.GenerateEmailVerificationCode(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"message": "Verification code sent"})
}

// emailVerifyRequest confirms a delivered code.
type emailVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// verifyEmailCode handles POST /api/v1/auth/email/verify requests.
func (handler *Handler) verifyEmailCode(writer http.ResponseWriter, request *http.Request) {
	var input emailVerifyRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).Code("code", input.Code)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	verified, err := handler.authService.VerifyEmailCode(request.Context(), input.Email, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if !verified {
		// Wrong, expired, and consumed codes are indistinguishable here.
		respond.Error(writer, request, apperr.Unauthorized("Invalid or expired verification code"))
		return
	}

	respond.OK(writer, map[string]any{"verified": true})
}

// ── Password Reset ───────────────────────────────────────────────────────────

// forgotPasswordRequest starts a reset flow.
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// forgotPassword handles POST /api/v1/auth/password/forgot requests.
//
// # Enumeration Masking
//
// The response is identical whether or not an account owns the email. The
// core's NotFound is deliberately translated into the generic success shape;
// everything else (delivery failure, storage outage) still surfaces as an
// error, because those are server faults, not probes.
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).Email("email", input.Email)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	_, err := handler.authService.CreatePasswordResetToken(request.Context(), input.Email)
	if err != nil && !isNotFound(err) {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"message": "If that email is registered, a reset link has been sent",
	})
}

// resetPasswordRequest consumes a reset token.
type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// resetPassword handles POST /api/v1/auth/password/reset requests.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError("token", "is required"))
		return
	}

	newPassword, err := NewPassword(input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, newPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"message": "Password updated"})
}

// ── Two-Factor Enrollment ────────────────────────────────────────────────────

// enableTwoFactor handles POST /api/v1/auth/2fa/enable requests.
func (handler *Handler) enableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	enrollment, err := handler.authService.EnableTwoFactorAuth(request.Context(), claims.UserID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, enrollment)
}

// twoFactorCodeRequest carries an authenticator-app code.
type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

// confirmTwoFactor handles POST /api/v1/auth/2fa/confirm requests.
func (handler *Handler) confirmTwoFactor(writer http.ResponseWriter, request *http.Request) {
	var input twoFactorCodeRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Code("code", input.Code)
	if validator.HasErrors() {
		respond.Error(writer, request, validator.Err())
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	if err := handler.authService.ConfirmTwoFactorAuth(request.Context(), claims.UserID(), input.Code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"two_factor_enabled": true})
}

// disableTwoFactor handles POST /api/v1/auth/2fa/disable requests.
func (handler *Handler) disableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	user, err := handler.authService.DisableTwoFactorAuth(request.Context(), claims.UserID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// ── Cookie Helpers ───────────────────────────────────────────────────────────

// writeSession sets the refresh cookie and returns the session payload.
func (handler *Handler) writeSession(writer http.ResponseWriter, session *Session) {
	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)

	respond.OK(writer, map[string]any{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"expires_at":    session.RefreshTokenExpiresAt,
		"user":          session.User,
	})
}

// readRefreshToken prefers the scoped cookie and falls back to the JSON body
// for native clients that do not keep a cookie jar.
func (handler *Handler) readRefreshToken(request *http.Request) string {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var input refreshRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		return ""
	}
	return input.RefreshToken
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
