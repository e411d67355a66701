package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"feedgears/internal/config"
	"feedgears/internal/db"
	"feedgears/internal/domain"
	"feedgears/internal/email"
	apihttp "feedgears/internal/http"
	"feedgears/internal/repository"
	"feedgears/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	apiKeyRepo := repository.NewPgAPIKeyRepository(pool)
	roleRepo := repository.NewPgRoleRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS, cfg.AppURL)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	limiter := service.NewMemoryPrincipalRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitPerMinute)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory rate limiter", zap.Error(err))
		} else {
			limiter = service.NewRedisPrincipalRateLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitPerMinute)
		}
		cancel()
	}

	if cfg.TokenSecret == "" {
		logger.Warn("token secret not configured")
	}
	tokenSvc := service.NewTokenService(cfg.TokenSecret,
		service.WithMaxAge(domain.PurposeAppAuth, cfg.AppAuthMaxAge),
		service.WithMaxAge(domain.PurposeAppAuthRefresh, cfg.AppAuthRefreshMaxAge),
		service.WithMaxAge(domain.PurposePwAuth, cfg.PwAuthMaxAge),
		service.WithMaxAge(domain.PurposePwReset, cfg.PwResetMaxAge),
		service.WithMaxAge(domain.PurposeVerification, cfg.VerificationMaxAge),
	)
	claimSvc := service.NewClaimService(logger, userRepo, tokenSvc)
	authoritySvc := service.NewAuthorityService(roleRepo, cfg.DevMode)
	accountSvc := service.NewAccountService(logger, userRepo, apiKeyRepo, claimSvc, emailSender)

	if cfg.SingleUserMode {
		logger.Warn("single user mode enabled", zap.String("admin", cfg.AdminUsername))
	}
	filter := apihttp.NewAuthFilter(logger, apihttp.AuthFilterConfig{
		SingleUserMode:       cfg.SingleUserMode,
		AdminUsername:        cfg.AdminUsername,
		APIKeyHeader:         cfg.APIKeyHeader,
		APISecretHeader:      cfg.APISecretHeader,
		OpenPaths:            cfg.OpenPaths,
		OpenPathPrefixes:     cfg.OpenPathPrefixes,
		CurrentUserPath:      cfg.CurrentUserPath,
		PasswordUpdatePrefix: cfg.PasswordUpdatePrefix,
		SecureCookies:        !cfg.DevMode,
	}, userRepo, apiKeyRepo, claimSvc, authoritySvc)
	authHandler := apihttp.NewAuthHandler(logger, accountSvc, !cfg.DevMode)
	router := apihttp.NewRouter(logger, filter, limiter, authHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
