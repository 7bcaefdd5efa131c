package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/config"
	"github.com/janseva/gateway/internal/models"
)

const refreshCookieName = "refresh_token"

// OtpSender delivers a login code to the account's email address.
// Delivery failures abort the login step (fail closed).
type OtpSender interface {
	Send(ctx context.Context, email, code string) error
}

// LogOtpSender writes codes to the process log. Development only.
type LogOtpSender struct{}

func (LogOtpSender) Send(_ context.Context, email, code string) error {
	log.Printf("[AUTH] (dev sender) OTP for %s: %s", email, code)
	return nil
}

// AuthService owns the multi-step login flow: credentials, email OTP, and
// the optional face step-up, plus registration, refresh rotation and logout.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	otp       *OtpIssuer
	tokens    *TokenService
	passwords *PasswordChecker
	face      *FaceService
	sender    OtpSender
	config    *config.AuthConfig
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, otp *OtpIssuer, tokens *TokenService,
	passwords *PasswordChecker, face *FaceService, sender OtpSender, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		otp:       otp,
		tokens:    tokens,
		passwords: passwords,
		face:      face,
		sender:    sender,
		config:    cfg,
	}
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required,min=8" example:"correct-horse-battery"`
	Name     string `json:"name" validate:"required,min=2" example:"Varun Patel"`
	Phone    string `json:"phone" validate:"required,e164" example:"+919812345678"`
}

// LoginRequest represents the first-factor login payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required" example:"correct-horse-battery"`
}

// VerifyOtpRequest carries the emailed code for the second login step
type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric"`
}

// ResendOtpRequest asks for a fresh code against the live challenge
type ResendOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// FaceLoginRequest completes a face step-up with a live capture
type FaceLoginRequest struct {
	FaceToken string `json:"faceToken" validate:"required"`
	Image     string `json:"image" validate:"required"` // base64-encoded capture
}

// AuthResponse is a completed login
// @Description Authentication response structure
type AuthResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account,omitempty"`
}

// PendingResponse reports an incomplete login step
type PendingResponse struct {
	PendingOtp  bool   `json:"pendingOtp,omitempty"`
	PendingFace bool   `json:"pendingFace,omitempty"`
	FaceToken   string `json:"faceToken,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// readJSON decodes a single bounded JSON object into dst and validates it.
// On failure the response has already been written.
func (s *AuthService) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[AUTH] Invalid request body: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// Register handles account creation
// @Summary Register a new account
// @Description Create an account after the password passes the security checks
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request or weak password"
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	verdict := s.passwords.Check(r.Context(), req.Password, PasswordProfile{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if !verdict.Safe {
		log.Printf("[AUTH] Registration rejected for %s: weak password (%d reasons)", req.Email, len(verdict.Reasons))
		details := map[string]string{}
		for i, reason := range verdict.Reasons {
			details[fmt.Sprintf("reason_%d", i+1)] = reason
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Password does not meet the security requirements",
			Code:    CodeValidation,
			Details: details,
		})
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed: %v", err)
		s.sendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	account := &models.Account{
		Email: strings.ToLower(req.Email),
		Name:  req.Name,
		Phone: req.Phone,
		Role:  authz.RoleCitizen,
	}
	err = s.db.QueryRowContext(r.Context(), `
		INSERT INTO accounts (email, name, phone, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, account.Email, account.Name, account.Phone, hashed, account.Role).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			s.sendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] Registration insert failed: %v", err)
		s.sendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	pair, err := s.tokens.Issue(r.Context(), account, r.UserAgent(), clientIP(r))
	if err != nil {
		log.Printf("[AUTH] Token issue failed for new account %d: %v", account.ID, err)
		s.sendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account %d registered (%s)", account.ID, account.Email)
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusCreated, AuthResponse{Token: pair.AccessToken, Account: account})
}

// Login handles the first factor and starts the email OTP step
// @Summary Start a login
// @Description Verify credentials and send a one-time code to the account email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} PendingResponse "Code sent, OTP step pending"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 502 {object} ErrorResponse "Code delivery failed"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	account, hashed, err := s.loadAccountByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		verifyPassword(req.Password, dummyHash)
		SendFlowError(w, NewFlowError(CodeAuthentication, "Invalid email or password"))
		return
	}
	if !verifyPassword(req.Password, hashed) || account.Disabled {
		log.Printf("[AUTH] Failed credential check for account %d", account.ID)
		SendFlowError(w, NewFlowError(CodeAuthentication, "Invalid email or password"))
		return
	}

	if s.config.DirectLogin {
		// Audited fallback for deployments without a mail path.
		log.Printf("[AUTH] AUDIT: direct login (OTP step disabled) for account %d from %s", account.ID, clientIP(r))
		s.completeLogin(w, r, account)
		return
	}

	code, err := s.otp.Issue(r.Context(), account.Email)
	if err != nil {
		log.Printf("[AUTH] Challenge issue failed for %s: %v", account.Email, err)
		s.sendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	if err := s.sender.Send(r.Context(), account.Email, code); err != nil {
		log.Printf("[AUTH] OTP delivery failed for %s: %v", account.Email, err)
		s.redis.Del(r.Context(), s.otp.key(account.Email))
		SendFlowError(w, NewFlowError(CodeUpstream, "Could not deliver the verification code"))
		return
	}

	log.Printf("[AUTH] OTP issued for account %d", account.ID)
	writeJSON(w, http.StatusOK, PendingResponse{
		PendingOtp: true,
		Message:    "A verification code has been sent to your email",
	})
}

// VerifyLoginOtp handles the emailed-code step
// @Summary Verify the login code
// @Description Complete the OTP step; face-enrolled accounts receive a step-up token instead of a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyOtpRequest true "Code verification request"
// @Success 200 {object} AuthResponse "Login complete"
// @Failure 401 {object} ErrorResponse "Wrong or expired code"
// @Failure 429 {object} ErrorResponse "Attempt budget exhausted"
// @Router /auth/login/verify [post]
func (s *AuthService) VerifyLoginOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	email := strings.ToLower(req.Email)
	switch err := s.otp.Verify(r.Context(), email, req.Code); {
	case err == nil:
	case errors.Is(err, ErrOtpExpired):
		SendFlowError(w, NewFlowError(CodeExpired, "Verification code expired, log in again"))
		return
	case errors.Is(err, ErrOtpExhausted):
		SendFlowError(w, NewFlowError(CodeRateLimited, "Too many wrong codes, log in again"))
		return
	case errors.Is(err, ErrOtpMismatch):
		SendFlowError(w, NewFlowError(CodeAuthentication, "Invalid verification code"))
		return
	default:
		log.Printf("[AUTH] OTP verification error for %s: %v", email, err)
		s.sendErrorResponse(w, "Verification failed", http.StatusInternalServerError, nil)
		return
	}

	account, _, err := s.loadAccountByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[AUTH] Account lookup failed after OTP for %s: %v", email, err)
		s.sendErrorResponse(w, "Verification failed", http.StatusInternalServerError, nil)
		return
	}

	if account.FaceEnrolled && s.face.Enabled() {
		faceToken, err := s.tokens.IssueFaceToken(account.ID, account.Email)
		if err != nil {
			log.Printf("[AUTH] Face token issue failed for account %d: %v", account.ID, err)
			s.sendErrorResponse(w, "Verification failed", http.StatusInternalServerError, nil)
			return
		}
		if err := s.otp.BeginFaceStep(r.Context(), email); err != nil {
			log.Printf("[AUTH] Face step record failed for account %d: %v", account.ID, err)
			s.sendErrorResponse(w, "Verification failed", http.StatusInternalServerError, nil)
			return
		}
		log.Printf("[AUTH] Account %d passed OTP, face step-up required", account.ID)
		writeJSON(w, http.StatusOK, PendingResponse{
			PendingFace: true,
			FaceToken:   faceToken,
			Message:     "Face verification required",
		})
		return
	}

	s.completeLogin(w, r, account)
}

// ResendLoginOtp handles the resend budget
// @Summary Resend the login code
// @Description Send a fresh code for the live challenge, consuming one resend
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResendOtpRequest true "Resend request"
// @Success 200 {object} map[string]int "Resends remaining"
// @Failure 429 {object} ErrorResponse "Cooldown active or budget exhausted"
// @Router /auth/login/resend [post]
func (s *AuthService) ResendLoginOtp(w http.ResponseWriter, r *http.Request) {
	var req ResendOtpRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	email := strings.ToLower(req.Email)
	code, remaining, cooldown, err := s.otp.Resend(r.Context(), email)
	switch {
	case err == nil:
	case errors.Is(err, ErrResendCooldown):
		fe := NewFlowError(CodeRateLimited, "Please wait before requesting another code")
		fe.RetryAfter = cooldown
		SendFlowError(w, fe)
		return
	case errors.Is(err, ErrResendBudget):
		SendFlowError(w, NewFlowError(CodeRateLimited, "Resend limit reached, log in again"))
		return
	case errors.Is(err, ErrNoChallenge):
		SendFlowError(w, NewFlowError(CodeAuthentication, "No login in progress"))
		return
	default:
		log.Printf("[AUTH] Resend failed for %s: %v", email, err)
		s.sendErrorResponse(w, "Resend failed", http.StatusInternalServerError, nil)
		return
	}

	if err := s.sender.Send(r.Context(), email, code); err != nil {
		log.Printf("[AUTH] OTP redelivery failed for %s: %v", email, err)
		SendFlowError(w, NewFlowError(CodeUpstream, "Could not deliver the verification code"))
		return
	}

	log.Printf("[AUTH] OTP resent for %s, %d resends remaining", email, remaining)
	writeJSON(w, http.StatusOK, map[string]int{"resendsRemaining": remaining})
}

// CompleteFaceLogin handles the face step-up
// @Summary Complete a face-verified login
// @Description Match a live capture against the enrolled template and finish the login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body FaceLoginRequest true "Face step-up request"
// @Success 200 {object} AuthResponse "Login complete"
// @Failure 401 {object} ErrorResponse "Face did not match or step-up token invalid"
// @Failure 429 {object} ErrorResponse "Verification locked"
// @Router /auth/login/face [post]
func (s *AuthService) CompleteFaceLogin(w http.ResponseWriter, r *http.Request) {
	var req FaceLoginRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	accountID, email, err := s.tokens.VerifyFaceToken(req.FaceToken)
	if err != nil {
		SendFlowError(w, NewFlowError(CodeExpired, "Face verification session expired, log in again"))
		return
	}

	// The face step must be the recorded state of this login attempt; the
	// token alone is not proof the OTP step was passed in this attempt.
	if state, err := s.otp.State(r.Context(), email); err != nil || state != LoginStateFacePending {
		SendFlowError(w, NewFlowError(CodeExpired, "Face verification session expired, log in again"))
		return
	}

	sample, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		s.sendErrorResponse(w, "Invalid image encoding", http.StatusBadRequest, nil)
		return
	}

	result, err := s.face.Verify(r.Context(), accountID, sample)
	if err != nil {
		var fe *FlowError
		if errors.As(err, &fe) {
			SendFlowError(w, fe)
			return
		}
		if errors.Is(err, ErrFaceNotEnrolled) {
			SendFlowError(w, NewFlowError(CodeAuthentication, "Face verification unavailable"))
			return
		}
		log.Printf("[AUTH] Face verification error for account %d: %v", accountID, err)
		SendFlowError(w, NewFlowError(CodeUpstream, "Face verification unavailable"))
		return
	}
	if !result.Verified {
		log.Printf("[AUTH] Face mismatch for account %d (similarity %.2f)", accountID, result.Similarity)
		SendFlowError(w, NewFlowError(CodeAuthentication, "Face did not match"))
		return
	}

	if err := s.otp.ConsumeFaceStep(r.Context(), email); err != nil {
		SendFlowError(w, NewFlowError(CodeExpired, "Face verification session expired, log in again"))
		return
	}

	account, _, err := s.loadAccountByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[AUTH] Account lookup failed after face step for %d: %v", accountID, err)
		s.sendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	s.completeLogin(w, r, account)
}

// Refresh handles refresh-token rotation
// @Summary Rotate the session
// @Description Exchange the refresh cookie for a new access token and cookie
// @Tags auth
// @Produce json
// @Success 200 {object} AuthResponse "New tokens issued"
// @Failure 401 {object} ErrorResponse "Missing, expired or already-rotated token"
// @Router /auth/refresh [post]
func (s *AuthService) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		SendFlowError(w, NewFlowError(CodeAuthentication, "No session"))
		return
	}

	pair, err := s.tokens.Rotate(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			s.clearRefreshCookie(w)
			SendFlowError(w, NewFlowError(CodeAuthentication, "Session expired, log in again"))
			return
		}
		log.Printf("[AUTH] Refresh rotation failed: %v", err)
		s.sendErrorResponse(w, "Refresh failed", http.StatusInternalServerError, nil)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, AuthResponse{Token: pair.AccessToken})
}

// Logout revokes the presented session
// @Summary Log out
// @Description Revoke the refresh session and clear the cookie
// @Tags auth
// @Success 204 "Session revoked"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := s.tokens.Revoke(r.Context(), cookie.Value); err != nil {
			log.Printf("[AUTH] Logout revoke failed: %v", err)
		}
	}
	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetMe returns the authenticated account
// @Summary Current account
// @Tags auth
// @Produce json
// @Success 200 {object} models.Account
// @Failure 401 {object} ErrorResponse "Not authenticated"
// @Security BearerAuth
// @Router /auth/me [get]
func (s *AuthService) GetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		SendFlowError(w, NewFlowError(CodeAuthentication, "Not authenticated"))
		return
	}

	account, _, err := s.loadAccountByEmail(r.Context(), principal.Email)
	if err != nil {
		s.sendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ChangePasswordRequest rotates the credential and revokes all sessions
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// ChangePassword handles credential rotation
// @Summary Change password
// @Description Replace the password after re-authentication; all sessions are revoked
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Password change request"
// @Success 204 "Password changed"
// @Failure 401 {object} ErrorResponse "Current password wrong"
// @Security BearerAuth
// @Router /auth/password [put]
func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		SendFlowError(w, NewFlowError(CodeAuthentication, "Not authenticated"))
		return
	}

	var req ChangePasswordRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	account, hashed, err := s.loadAccountByEmail(r.Context(), principal.Email)
	if err != nil {
		s.sendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if !verifyPassword(req.CurrentPassword, hashed) {
		SendFlowError(w, NewFlowError(CodeAuthentication, "Current password is incorrect"))
		return
	}

	verdict := s.passwords.Check(r.Context(), req.NewPassword, PasswordProfile{
		Email: account.Email,
		Name:  account.Name,
		Phone: account.Phone,
	})
	if !verdict.Safe {
		s.sendErrorResponse(w, "Password does not meet the security requirements", http.StatusBadRequest, nil)
		return
	}

	newHash, err := hashPassword(req.NewPassword)
	if err != nil {
		s.sendErrorResponse(w, "Password change failed", http.StatusInternalServerError, nil)
		return
	}
	_, err = s.db.ExecContext(r.Context(),
		`UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		newHash, account.ID)
	if err != nil {
		log.Printf("[AUTH] Password update failed for account %d: %v", account.ID, err)
		s.sendErrorResponse(w, "Password change failed", http.StatusInternalServerError, nil)
		return
	}

	if err := s.tokens.RevokeAll(r.Context(), account.ID); err != nil {
		log.Printf("[AUTH] Session revocation after password change failed for account %d: %v", account.ID, err)
	}

	log.Printf("[AUTH] Password changed for account %d, all sessions revoked", account.ID)
	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// completeLogin issues the session pair and writes the final auth response.
func (s *AuthService) completeLogin(w http.ResponseWriter, r *http.Request, account *models.Account) {
	pair, err := s.tokens.Issue(r.Context(), account, r.UserAgent(), clientIP(r))
	if err != nil {
		log.Printf("[AUTH] Token issue failed for account %d: %v", account.ID, err)
		s.sendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account %d logged in from %s", account.ID, clientIP(r))
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, AuthResponse{Token: pair.AccessToken, Account: account})
}

func (s *AuthService) loadAccountByEmail(ctx context.Context, email string) (*models.Account, string, error) {
	var account models.Account
	var hashed string
	var sector sql.NullString
	var masked sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, password_hash, role, assigned_sector,
		       kyc_level, face_enrolled, aadhaar_masked, disabled, created_at, updated_at
		FROM accounts WHERE email = $1
	`, strings.ToLower(email)).Scan(
		&account.ID, &account.Email, &account.Name, &account.Phone, &hashed,
		&account.Role, &sector, &account.KycLevel, &account.FaceEnrolled,
		&masked, &account.Disabled, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, "", err
	}
	account.AssignedSector = authz.Sector(sector.String)
	account.AadhaarMasked = masked.String
	return &account, hashed, nil
}

func (s *AuthService) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.config.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *AuthService) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// dummyHash keeps the credential check roughly constant-time when the email
// is unknown: a well-formed salt$hash value that never matches.
const dummyHash = "MDEyMzQ1Njc4OWFiY2RlZg==$MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
