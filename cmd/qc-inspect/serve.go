package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/tendant/qc-inspect/internal/config"
	httpserver "github.com/tendant/qc-inspect/internal/http"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/internal/maintenance"
	"github.com/tendant/qc-inspect/internal/notification"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/ratelimit"
	"github.com/tendant/qc-inspect/pkg/repository"
	"github.com/tendant/qc-inspect/pkg/tenancy"
)

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, logger, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, logger *slog.Logger, migrate bool) error {
	cfg, db, err := openDB(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		if err := repository.MigrateUp(db); err != nil {
			return err
		}
	}

	limiterStore, closeStore, err := newRateLimitStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := newHandler(cfg, db, limiterStore, logger)
	if err != nil {
		return err
	}

	if cfg.Cleanup.Enabled() {
		// Redis windows expire by TTL and are not purged here.
		windows, _ := limiterStore.(maintenance.WindowPurger)
		scheduler, err := maintenance.NewScheduler(newPurger(db, windows), cfg.Cleanup.Schedule, cfg.Cleanup.Timeout, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr, "gate_policy", cfg.Gate.Policy, "rate_limit_store", cfg.RateLimit.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newHandler(cfg *config.Config, db *sql.DB, store ratelimit.Store, logger *slog.Logger) (http.Handler, error) {
	policy, ok := access.PolicyByName(cfg.Gate.Policy)
	if !ok {
		return nil, fmt.Errorf("unknown gate policy %q", cfg.Gate.Policy)
	}
	if cfg.Gate.Policy == "legacy" {
		logger.Warn("legacy role-area gate policy in use")
	}

	failurePolicy, err := ratelimit.ParseFailurePolicy(cfg.RateLimit.FailurePolicy)
	if err != nil {
		return nil, err
	}

	usersRepo := repository.NewUsersRepository(db)
	credsRepo := repository.NewCredentialsRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	tokensRepo := repository.NewVerificationTokensRepository(db)
	tenantsRepo := repository.NewTenantsRepository(db)
	membershipsRepo := repository.NewMembershipsRepository(db)
	invitationsRepo := repository.NewInvitationsRepository(db)

	var sender notification.Sender
	if cfg.SMTP.Enabled() {
		sender = notification.NewSMTPSender(notification.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
	} else {
		logger.Warn("SMTP not configured, emails will only be logged")
		sender = notification.NewLogSender(logger)
	}
	mailer := notification.NewEmailService(sender)

	passwordPolicy := &auth.PasswordPolicy{
		MinLength:        cfg.PasswordPolicy.MinLength,
		MaxLength:        auth.DefaultPasswordPolicy().MaxLength,
		RequireUppercase: cfg.PasswordPolicy.RequireUppercase,
		RequireLowercase: cfg.PasswordPolicy.RequireLowercase,
		RequireNumber:    cfg.PasswordPolicy.RequireNumber,
		RequireSpecial:   cfg.PasswordPolicy.RequireSpecial,
	}

	var breach auth.BreachChecker
	if cfg.BreachCheck.Enabled {
		breach = auth.NewRangeBreachChecker(cfg.BreachCheck.URL, cfg.BreachCheck.Timeout, logger)
	}

	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		Cookie: httputil.CookieConfig{
			Domain:   cfg.CookieDomain,
			Path:     "/",
			Secure:   cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
	}, sessionsRepo, usersRepo)
	passwordService := auth.NewPasswordService(db, usersRepo, credsRepo, sessionService, passwordPolicy, breach)
	verificationService := auth.NewVerificationService(auth.VerificationConfig{
		BaseURL: cfg.BaseURL,
	}, db, tokensRepo, usersRepo, credsRepo, passwordService, sessionService, mailer, logger)
	tenancyService := tenancy.NewService(tenancy.Config{
		BaseURL: cfg.BaseURL,
	}, db, tenantsRepo, membershipsRepo, invitationsRepo, mailer, logger)

	limiter := ratelimit.New(store, ratelimit.Config{
		FailurePolicy: failurePolicy,
		Logger:        logger,
	})

	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:              logger,
		Policy:              policy,
		PasswordService:     passwordService,
		SessionService:      sessionService,
		VerificationService: verificationService,
		PasswordPolicy:      passwordPolicy,
		TenancyService:      tenancyService,
		Limiter:             limiter,
		Memberships:         membershipsRepo,
		Health:              repository.NewHealth(db),
		GateConfig:          cfg.Gate,
		RateLimitConfig:     cfg.RateLimit,
		SecurityHeaders:     cfg.SecurityHeaders,
		MaxBodyBytes:        cfg.MaxBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})
}

// newRateLimitStore picks the attempt counter backend. The returned func
// releases any connection it opened.
func newRateLimitStore(ctx context.Context, cfg *config.Config, db *sql.DB) (ratelimit.Store, func(), error) {
	switch cfg.RateLimit.Store {
	case "", "postgres":
		return repository.NewRateLimitsRepository(db), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil
	case "memory":
		return ratelimit.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit store %q", cfg.RateLimit.Store)
	}
}
