package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/config"
	"github.com/danukusuma/auth-service/db"
	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/auth/handler"
	"github.com/danukusuma/auth-service/internal/auth/ratelimit"
	repo "github.com/danukusuma/auth-service/internal/auth/repository/postgres"
	"github.com/danukusuma/auth-service/internal/auth/service"
	"github.com/danukusuma/auth-service/internal/crypto"
)

const tokenSweepInterval = time.Hour

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()
	if cfg.Env == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()

	if err := db.Migrate(ctx, cfg.DBURL); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	repos := repo.New(pool)
	clock := domain.SystemClock()
	sink := audit.NewZerologSink(log)

	var cipher crypto.Cipher
	if cfg.TOTPEncryptionKey != "" {
		c, err := crypto.NewAESCipher(cfg.TOTPEncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid TOTP encryption key")
		}
		cipher = c
	} else {
		log.Warn().Msg("TOTP_ENCRYPTION_KEY not set, 2FA enrollment disabled")
	}

	tokenService := service.NewTokenService(cfg.AccessTokenSecret,
		cfg.AccessExpiryMin, cfg.RefreshExpiryMin, repos.Tokens, clock)
	passwordService := service.NewPasswordService(cfg.BreachAPIBase,
		time.Duration(cfg.BreachTimeoutSec)*time.Second, log)
	lockoutService := service.NewLockoutService(repos.Accounts, repos.Security,
		sink, clock, cfg.LoginMaxAttempts, cfg.LockoutMinutes, log)
	networkPolicy := service.NewNetworkPolicy(repos.Accounts, sink, log)
	limiter := ratelimit.NewSlidingWindow(cfg.RateLimitMax,
		time.Duration(cfg.RateLimitWindowSec)*time.Second, clock)
	twoFactorService := service.NewTwoFactorService(cfg.TOTPIssuer, cipher, clock)
	sessionManager := service.NewSessionManager(repos.Sessions, repos.Security,
		sink, clock, cfg.MaxActiveSessions,
		time.Duration(cfg.RefreshExpiryMin)*time.Minute, log)

	detectorCfg := service.DefaultDetectorConfig()
	detectorCfg.NightStartHour = cfg.NocturnalStartHour
	detectorCfg.NightEndHour = cfg.NocturnalEndHour
	detector := service.NewIntrusionDetector(repos.Security, sink, clock, detectorCfg, log)

	challenges := service.NewChallengeStore(
		time.Duration(cfg.ChallengeTTLSec)*time.Second, clock)
	webauthnService, err := service.NewWebAuthnService(cfg.RPDisplayName, cfg.RPID,
		cfg.RPOrigin, repos.WebAuthn, repos.Security, sink, challenges, clock, log)
	if err != nil {
		log.Fatal().Err(err).Msg("webauthn setup failed")
	}

	userService := service.NewUserService(service.UserServiceDeps{
		Accounts:        repos.Accounts,
		Security:        repos.Security,
		TokenStore:      repos.Tokens,
		Passwords:       passwordService,
		Tokens:          tokenService,
		Lockout:         lockoutService,
		Network:         networkPolicy,
		Limiter:         limiter,
		TwoFactor:       twoFactorService,
		Sessions:        sessionManager,
		Detector:        detector,
		Audit:           sink,
		Clock:           clock,
		MaxActiveTokens: cfg.MaxActiveTokens,
		Log:             log,
	})

	go func() {
		ticker := time.NewTicker(tokenSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			userService.SweepExpiredTokens(ctx)
			limiter.Sweep()
			challenges.SweepExpired()
		}
	}()

	authHandler := handler.NewAuthHandler(userService)
	twoFactorHandler := handler.NewTwoFactorHandler(userService)
	webauthnHandler := handler.NewWebAuthnHandler(userService, webauthnService)

	app := fiber.New()
	handler.RegisterRoutes(app, tokenService, authHandler, twoFactorHandler, webauthnHandler)

	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
