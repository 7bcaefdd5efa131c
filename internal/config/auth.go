package config

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	OtpLength        int
	OtpTTL           time.Duration
	OtpMaxAttempts   int
	ResendBudget     int
	ResendCooldown   time.Duration
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	FaceTokenTTL     time.Duration
	MaxSessions      int
	DirectLogin      bool // audited fallback: skip the email OTP step entirely
	SecureCookies    bool
	BreachLookupURL  string
	BreachLookupTime time.Duration
}

func LoadAuthConfig() *AuthConfig {
	return &AuthConfig{
		OtpLength:        getEnvAsInt("AUTH_OTP_LENGTH", 6),
		OtpTTL:           getEnvAsDuration("AUTH_OTP_TTL", 5*time.Minute),
		OtpMaxAttempts:   getEnvAsInt("AUTH_OTP_MAX_ATTEMPTS", 5),
		ResendBudget:     getEnvAsInt("AUTH_OTP_RESEND_BUDGET", 3),
		ResendCooldown:   getEnvAsDuration("AUTH_OTP_RESEND_COOLDOWN", 60*time.Second),
		AccessTokenTTL:   getEnvAsDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getEnvAsDuration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		FaceTokenTTL:     getEnvAsDuration("AUTH_FACE_TOKEN_TTL", 5*time.Minute),
		MaxSessions:      getEnvAsInt("AUTH_MAX_SESSIONS", 5),
		DirectLogin:      getEnvAsBool("AUTH_DIRECT_LOGIN", false),
		SecureCookies:    getEnvAsBool("AUTH_SECURE_COOKIES", os.Getenv("ENV") == "production"),
		BreachLookupURL:  getEnv("AUTH_BREACH_LOOKUP_URL", "https://api.pwnedpasswords.com/range"),
		BreachLookupTime: getEnvAsDuration("AUTH_BREACH_LOOKUP_TIMEOUT", 5*time.Second),
	}
}

type FaceConfig struct {
	ServiceURL          string
	Enabled             bool
	SimilarityThreshold float64
	MinQuality          float64
	RequiredSamples     int
	MinCaptureSpacing   time.Duration
	MinSampleBytes      int
	MaxAttempts         int
	LockDuration        time.Duration
	RequestTimeout      time.Duration
}

func LoadFaceConfig() *FaceConfig {
	return &FaceConfig{
		ServiceURL:          getEnv("FACE_SERVICE_URL", "http://localhost:5001"),
		Enabled:             getEnvAsBool("FACE_AUTH_ENABLED", true),
		SimilarityThreshold: getEnvAsFloat("FACE_AUTH_THRESHOLD", 0.50),
		MinQuality:          getEnvAsFloat("FACE_MIN_QUALITY", 0.35),
		RequiredSamples:     getEnvAsInt("FACE_REQUIRED_SAMPLES", 5),
		MinCaptureSpacing:   getEnvAsDuration("FACE_MIN_CAPTURE_SPACING", 350*time.Millisecond),
		MinSampleBytes:      getEnvAsInt("FACE_MIN_SAMPLE_BYTES", 4*1024),
		MaxAttempts:         getEnvAsInt("FACE_MAX_ATTEMPTS", 5),
		LockDuration:        getEnvAsDuration("FACE_LOCK_DURATION", 15*time.Minute),
		RequestTimeout:      getEnvAsDuration("FACE_REQUEST_TIMEOUT", 30*time.Second),
	}
}

type KycConfig struct {
	ChallengeTTL       time.Duration
	NameMatchThreshold int
	ProviderTimeout    time.Duration
}

func LoadKycConfig() *KycConfig {
	return &KycConfig{
		ChallengeTTL:       getEnvAsDuration("KYC_CHALLENGE_TTL", 10*time.Minute),
		NameMatchThreshold: getEnvAsInt("KYC_NAME_MATCH_THRESHOLD", 85),
		ProviderTimeout:    getEnvAsDuration("KYC_PROVIDER_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
