package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                  = "8080"
	DefaultAccessTokenExpiryMin  = 15
	DefaultRefreshTokenExpiryMin = 10080 // 7 days

	// LegacyAccessTokenExpiryMin is the long-lived tier kept only for clients
	// that cannot refresh yet; selected with ACCESS_TOKEN_TIER=legacy.
	//
	// Deprecated: new integrations must use the default short tier.
	LegacyAccessTokenExpiryMin = 720

	DefaultLoginMaxAttempts   = 5
	DefaultLockoutMinutes     = 30
	DefaultRateLimitMax       = 5
	DefaultRateLimitWindowSec = 60
	DefaultMaxActiveSessions  = 5
	DefaultMaxActiveTokens    = 15

	DefaultTOTPIssuer         = "auth-service"
	DefaultChallengeTTLSec    = 300
	DefaultBreachAPIBase      = "https://api.pwnedpasswords.com"
	DefaultBreachTimeoutSec   = 2
	DefaultRPID               = "localhost"
	DefaultRPOrigin           = "http://localhost:8080"
	DefaultNocturnalStartHour = 1
	DefaultNocturnalEndHour   = 5
)

type Config struct {
	Env               string
	Port              string
	DBURL             string
	AccessTokenSecret string
	AccessExpiryMin   int
	RefreshExpiryMin  int

	LoginMaxAttempts   int
	LockoutMinutes     int
	RateLimitMax       int
	RateLimitWindowSec int
	MaxActiveSessions  int
	MaxActiveTokens    int

	TOTPIssuer        string
	TOTPEncryptionKey string // hex, 32 bytes; empty disables 2FA enrollment
	ChallengeTTLSec   int
	BreachAPIBase     string
	BreachTimeoutSec  int

	RPDisplayName string
	RPID          string
	RPOrigin      string

	NocturnalStartHour int
	NocturnalEndHour   int
}

// Load reads config/.env.dev or config/.env.prod depending on ENV, then lets
// real environment variables win. Required keys are fatal when absent.
func Load() *Config {
	env := getEnv("ENV", "development")

	envFile := "config/.env.dev"
	if env == "production" {
		envFile = "config/.env.prod"
	}
	// godotenv never overrides variables that are already set, which gives
	// the env-over-file precedence the tests rely on.
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("no env file at %s, relying on environment", envFile)
	}

	accessExpiry := getEnvAsInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin)
	if getEnv("ACCESS_TOKEN_TIER", "") == "legacy" {
		log.Printf("ACCESS_TOKEN_TIER=legacy, using the deprecated %d minute access tier", LegacyAccessTokenExpiryMin)
		accessExpiry = LegacyAccessTokenExpiryMin
	}

	return &Config{
		Env:               env,
		Port:              getEnv("PORT", DefaultPort),
		DBURL:             mustGetEnv("DB_URL"),
		AccessTokenSecret: mustGetEnv("ACCESS_TOKEN_SECRET"),
		AccessExpiryMin:   accessExpiry,
		RefreshExpiryMin:  getEnvAsInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),

		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LockoutMinutes:     getEnvAsInt("LOCKOUT_MINUTES", DefaultLockoutMinutes),
		RateLimitMax:       getEnvAsInt("RATE_LIMIT_MAX", DefaultRateLimitMax),
		RateLimitWindowSec: getEnvAsInt("RATE_LIMIT_WINDOW_SEC", DefaultRateLimitWindowSec),
		MaxActiveSessions:  getEnvAsInt("MAX_ACTIVE_SESSIONS", DefaultMaxActiveSessions),
		MaxActiveTokens:    getEnvAsInt("MAX_ACTIVE_REFRESH_TOKENS", DefaultMaxActiveTokens),

		TOTPIssuer:        getEnv("TOTP_ISSUER", DefaultTOTPIssuer),
		TOTPEncryptionKey: getEnv("TOTP_ENCRYPTION_KEY", ""),
		ChallengeTTLSec:   getEnvAsInt("CHALLENGE_TTL_SEC", DefaultChallengeTTLSec),
		BreachAPIBase:     getEnv("BREACH_API_BASE", DefaultBreachAPIBase),
		BreachTimeoutSec:  getEnvAsInt("BREACH_TIMEOUT_SEC", DefaultBreachTimeoutSec),

		RPDisplayName: getEnv("WEBAUTHN_RP_DISPLAY_NAME", "Auth Service"),
		RPID:          getEnv("WEBAUTHN_RP_ID", DefaultRPID),
		RPOrigin:      getEnv("WEBAUTHN_RP_ORIGIN", DefaultRPOrigin),

		NocturnalStartHour: getEnvAsInt("NOCTURNAL_START_HOUR", DefaultNocturnalStartHour),
		NocturnalEndHour:   getEnvAsInt("NOCTURNAL_END_HOUR", DefaultNocturnalEndHour),
	}
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatal(fmt.Sprintf("Missing required config: %s", key))
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}
