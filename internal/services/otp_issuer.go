package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/janseva/gateway/internal/config"
)

// LoginState tags how far a login attempt has escalated. The pending
// challenge record carries the state explicitly instead of inferring it from
// which token happens to be present.
type LoginState string

const (
	LoginStateEmailPending LoginState = "email_pending"
	LoginStateFacePending  LoginState = "face_pending"
)

var (
	ErrOtpMismatch    = errors.New("otp mismatch")
	ErrOtpExpired     = errors.New("otp expired")
	ErrOtpExhausted   = errors.New("otp attempts exhausted")
	ErrNoChallenge    = errors.New("no challenge pending")
	ErrResendCooldown = errors.New("resend cooldown active")
	ErrResendBudget   = errors.New("resend budget exhausted")
)

// verifyScript consumes a challenge in one atomic step: a matching code
// deletes the record (one-shot), a mismatch bumps the attempt counter, and
// hitting the attempt cap deletes the record so the flow restarts from
// credentials. Returns 1 match, -1 mismatch/missing, -2 expired, -3 capped.
var verifyScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'otp_hash', 'expires_at')
if not v[1] then return -1 end
local now = tonumber(ARGV[2])
if now > tonumber(v[2]) then
  redis.call('DEL', KEYS[1])
  return -2
end
if v[1] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  return -3
end
return -1
`)

// resendScript performs the atomic check-and-decrement of the resend budget
// and restarts the cooldown window, so two concurrent resends can never both
// pass the budget. Returns {1, remaining}, {-1} missing, {-2, secs} cooldown,
// {-3} budget exhausted.
var resendScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'resend_count', 'cooldown_until')
if not v[1] then return {-1, 0} end
local now = tonumber(ARGV[2])
local cd = tonumber(v[2])
if cd > now then return {-2, cd - now} end
local count = tonumber(v[1])
local budget = tonumber(ARGV[3])
if count >= budget then return {-3, 0} end
redis.call('HSET', KEYS[1], 'otp_hash', ARGV[1], 'attempts', 0, 'resend_count', count + 1, 'cooldown_until', now + tonumber(ARGV[4]), 'expires_at', now + tonumber(ARGV[5]))
redis.call('EXPIRE', KEYS[1], ARGV[5])
return {1, budget - count - 1}
`)

// consumeFaceScript retires the face_pending record in one atomic step, so
// a face token can complete at most one login even when presented twice
// concurrently. Returns 1 consumed, -1 missing or wrong state.
var consumeFaceScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'state')
if s ~= ARGV[1] then return -1 end
redis.call('DEL', KEYS[1])
return 1
`)

// OtpIssuer owns the email step-up challenge lifecycle. At most one live
// challenge exists per email; issuing replaces any prior one (last write
// wins).
type OtpIssuer struct {
	redis  *redis.Client
	config *config.AuthConfig
	prefix string
}

func NewOtpIssuer(redisClient *redis.Client, cfg *config.AuthConfig) *OtpIssuer {
	return &OtpIssuer{
		redis:  redisClient,
		config: cfg,
		prefix: "login_otp",
	}
}

func (o *OtpIssuer) key(email string) string {
	return fmt.Sprintf("%s:%s", o.prefix, strings.ToLower(email))
}

// Issue creates a fresh challenge for the email, replacing any existing one,
// and returns the plaintext code for delivery. Only the hash is stored.
func (o *OtpIssuer) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateOTP(o.config.OtpLength)
	if err != nil {
		return "", err
	}

	now := time.Now()
	key := o.key(email)
	ttl := o.config.OtpTTL

	pipe := o.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"otp_hash", hashOTP(code),
		"expires_at", now.Add(ttl).Unix(),
		"attempts", 0,
		"resend_count", 0,
		"cooldown_until", 0,
		"state", string(LoginStateEmailPending),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	return code, nil
}

// Verify consumes the challenge for the email. A match is one-shot: replaying
// the same code afterwards fails. Mismatch and missing-challenge are
// deliberately indistinguishable.
func (o *OtpIssuer) Verify(ctx context.Context, email, code string) error {
	res, err := verifyScript.Run(ctx, o.redis, []string{o.key(email)},
		hashOTP(code), time.Now().Unix(), o.config.OtpMaxAttempts).Int()
	if err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -2:
		return ErrOtpExpired
	case -3:
		log.Printf("[AUTH] OTP attempt cap reached for %s, challenge destroyed", email)
		return ErrOtpExhausted
	default:
		return ErrOtpMismatch
	}
}

// Resend re-hashes a fresh code against the existing challenge, consuming one
// budget unit and restarting the cooldown. It returns the new plaintext code
// and the resends remaining. Cooldown violations report the seconds left.
func (o *OtpIssuer) Resend(ctx context.Context, email string) (code string, remaining, cooldownSecs int, err error) {
	code, err = generateOTP(o.config.OtpLength)
	if err != nil {
		return "", 0, 0, err
	}

	res, err := resendScript.Run(ctx, o.redis, []string{o.key(email)},
		hashOTP(code),
		time.Now().Unix(),
		o.config.ResendBudget,
		int(o.config.ResendCooldown.Seconds()),
		int(o.config.OtpTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return "", 0, 0, fmt.Errorf("challenge store unavailable: %w", err)
	}

	switch res[0] {
	case 1:
		return code, int(res[1]), 0, nil
	case -2:
		return "", 0, int(res[1]), ErrResendCooldown
	case -3:
		return "", 0, 0, ErrResendBudget
	default:
		return "", 0, 0, ErrNoChallenge
	}
}

// BeginFaceStep records that the email step has been passed and a face
// verification is now pending. The record lives exactly as long as the face
// token, so the state and the token expire together.
func (o *OtpIssuer) BeginFaceStep(ctx context.Context, email string) error {
	key := o.key(email)

	pipe := o.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "state", string(LoginStateFacePending))
	pipe.Expire(ctx, key, o.config.FaceTokenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record face step: %w", err)
	}
	return nil
}

// ConsumeFaceStep retires the face_pending record. One-shot: a second
// consume for the same login attempt fails with ErrNoChallenge.
func (o *OtpIssuer) ConsumeFaceStep(ctx context.Context, email string) error {
	res, err := consumeFaceScript.Run(ctx, o.redis, []string{o.key(email)},
		string(LoginStateFacePending)).Int()
	if err != nil {
		return fmt.Errorf("challenge store unavailable: %w", err)
	}
	if res != 1 {
		return ErrNoChallenge
	}
	return nil
}

// State reports the recorded state of the live challenge, if any.
func (o *OtpIssuer) State(ctx context.Context, email string) (LoginState, error) {
	state, err := o.redis.HGet(ctx, o.key(email), "state").Result()
	if err == redis.Nil {
		return "", ErrNoChallenge
	}
	if err != nil {
		return "", fmt.Errorf("challenge store unavailable: %w", err)
	}
	return LoginState(state), nil
}

func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateOTP(length int) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	max := uint64(1)
	for i := 0; i < length; i++ {
		max *= 10
	}
	return fmt.Sprintf("%0*d", length, binary.BigEndian.Uint64(b)%max), nil
}
