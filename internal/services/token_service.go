package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/config"
	"github.com/janseva/gateway/internal/models"
	"github.com/spf13/viper"
)

const (
	tokenTypeAccess     = "access"
	tokenTypeFaceVerify = "face_verify"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// AccessClaims is the self-contained payload of an access token. Role and
// sector travel in the token so downstream services authorize without a
// server-side lookup.
type AccessClaims struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	AssignedSector string `json:"assignedSector,omitempty"`
	KycLevel       int    `json:"kycLevel"`
	TokenType      string `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenService issues short-lived signed access tokens and long-lived opaque
// refresh tokens, and maintains the bounded per-account session set.
type TokenService struct {
	db     *sql.DB
	config *config.AuthConfig
	secret []byte
}

func NewTokenService(db *sql.DB, cfg *config.AuthConfig) *TokenService {
	return &TokenService{
		db:     db,
		config: cfg,
		secret: []byte(viper.GetString("jwt.secret_key")),
	}
}

// TokenPair bundles the two credentials returned by a completed login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Issue creates an access/refresh pair for the account and records the
// refresh session tagged with device and IP. If the account already holds
// the maximum number of live sessions the least-recently-issued one is
// evicted in the same transaction.
func (s *TokenService) Issue(ctx context.Context, account *models.Account, device, ip string) (*TokenPair, error) {
	access, err := s.signAccessToken(account)
	if err != nil {
		return nil, err
	}

	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Make room under the cap before inserting, keeping the newest cap-1.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM refresh_sessions
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM refresh_sessions
			WHERE account_id = $1
			ORDER BY issued_at DESC, id DESC
			LIMIT $2
		)
	`, account.ID, s.config.MaxSessions-1)
	if err != nil {
		return nil, fmt.Errorf("failed to prune sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_sessions (account_id, token_hash, device, ip, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), $5)
	`, account.ID, hashToken(refresh), device, ip, time.Now().Add(s.config.RefreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges a live refresh token for a new access token and a new
// refresh value. The stored hash is replaced in a single guarded UPDATE, so
// of two concurrent rotations of the same token exactly one succeeds and the
// other sees ErrInvalidRefreshToken.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	newRefresh, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	var accountID int
	err = s.db.QueryRowContext(ctx, `
		UPDATE refresh_sessions
		SET token_hash = $1, issued_at = NOW(), expires_at = $2
		WHERE token_hash = $3 AND expires_at > NOW()
		RETURNING account_id
	`, hashToken(newRefresh), time.Now().Add(s.config.RefreshTokenTTL), hashToken(refreshToken)).Scan(&accountID)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	access, err := s.signAccessToken(account)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Revoke removes the session owning the presented refresh token (logout).
// Revoking an unknown token is not an error.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE token_hash = $1`, hashToken(refreshToken))
	return err
}

// RevokeAll removes every session for the account. Forced on password
// change; this is the only operation allowed to invalidate sessions it does
// not own individually.
func (s *TokenService) RevokeAll(ctx context.Context, accountID int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[AUTH] Revoked %d sessions for account %d", n, accountID)
	}
	return nil
}

// VerifyAccess validates an access token statelessly and returns its claims.
func (s *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, errors.New("invalid token type")
	}
	return claims, nil
}

// IssueFaceToken mints the short-lived step-up token handed out after
// factors 1+2 succeed. Face verification is never reachable without it.
func (s *TokenService) IssueFaceToken(accountID int, email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		Email:     email,
		TokenType: tokenTypeFaceVerify,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", accountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.FaceTokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

// VerifyFaceToken validates a face-verification token and returns the
// account it was minted for.
func (s *TokenService) VerifyFaceToken(tokenString string) (int, string, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	if claims.TokenType != tokenTypeFaceVerify {
		return 0, "", errors.New("invalid token type")
	}
	var accountID int
	if _, err := fmt.Sscanf(claims.Subject, "%d", &accountID); err != nil {
		return 0, "", errors.New("invalid token subject")
	}
	return accountID, claims.Email, nil
}

// SessionCount reports the number of live sessions for an account.
func (s *TokenService) SessionCount(ctx context.Context, accountID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_sessions WHERE account_id = $1 AND expires_at > NOW()`,
		accountID).Scan(&count)
	return count, err
}

func (s *TokenService) signAccessToken(account *models.Account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		Email:          account.Email,
		Role:           string(account.Role),
		AssignedSector: string(account.AssignedSector),
		KycLevel:       account.KycLevel,
		TokenType:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", account.ID),
			Issuer:    "janseva-gateway",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *TokenService) loadAccount(ctx context.Context, accountID int) (*models.Account, error) {
	var account models.Account
	var sector sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, COALESCE(assigned_sector, ''), kyc_level
		FROM accounts WHERE id = $1 AND disabled = FALSE
	`, accountID).Scan(&account.ID, &account.Email, &account.Role, &sector, &account.KycLevel)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	account.AssignedSector = authz.Sector(sector.String)
	return &account, nil
}

func generateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
