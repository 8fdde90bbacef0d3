package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/background"
	"github.com/BradenHooton/springboard/internal/config"
	"github.com/BradenHooton/springboard/internal/database"
	"github.com/BradenHooton/springboard/internal/handlers"
	"github.com/BradenHooton/springboard/internal/oauth"
	"github.com/BradenHooton/springboard/internal/repositories"
	"github.com/BradenHooton/springboard/internal/routes"
	"github.com/BradenHooton/springboard/internal/services"
	pkgauth "github.com/BradenHooton/springboard/pkg/auth"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if cfg.Server.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Server.SentryDSN,
			Environment: cfg.Server.Env,
		}); err != nil {
			logger.Error("failed to initialize sentry", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.NewConnection(connectCtx, &cfg.Database, logger)
	cancelConnect()
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			return err
		}
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	projectRepo := repositories.NewProjectRepository(db)

	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost, 0)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)

	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.Email.Enabled {
		ses, err := services.NewSESNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.OAuth.FrontendURL, logger)
		if err != nil {
			return err
		}
		notifier = ses
	}

	providers := oauth.NewRegistry()
	if cfg.OAuth.GoogleEnabled() {
		providers.Register(oauth.NewGoogleProvider(cfg.OAuth))
	} else {
		logger.Info("google oauth not configured")
	}

	// Services
	userService := services.NewUserService(userRepo, hasher, logger)
	authService := services.NewAuthService(userRepo, revokeRepo, hasher, tokenManager, notifier, logger, auditLogger)
	oauthService := services.NewOAuthService(userRepo, providers, tokenManager, notifier, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, logger, auditLogger)
	projectService := services.NewProjectService(projectRepo, logger)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName)
		cancel()
		if err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
		} else if !created {
			logger.Info("admin user already exists")
		}
	}

	cookies := handlers.TokenCookies{
		Config: auth.CookieConfig{
			Domain:   cfg.Auth.CookieDomain,
			Secure:   cfg.Auth.SecureCookies,
			SameSite: "lax",
		},
		AccessTTL:  cfg.Auth.AccessTokenExpiry,
		RefreshTTL: cfg.Auth.RefreshTokenExpiry,
	}

	ipConfig, invalid := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	for _, cidr := range invalid {
		logger.Warn("ignoring invalid trusted proxy range", slog.String("cidr", cidr))
	}

	router := routes.NewRouter(
		routes.Handlers{
			Health:  handlers.NewHealthHandler(db, logger),
			Auth:    handlers.NewAuthHandler(authService, cookies),
			OAuth:   handlers.NewOAuthHandler(oauthService, cookies, cfg.OAuth.StateTTL, cfg.OAuth.FrontendURL, logger),
			Users:   handlers.NewUserHandler(userService),
			Admin:   handlers.NewAdminHandler(adminService),
			Project: handlers.NewProjectHandler(projectService),
		},
		tokenManager,
		userRepo,
		routes.Options{
			Env:            cfg.Server.Env,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			IPConfig:       ipConfig,
			AuthRateLimit:  cfg.Auth.AuthRateLimit,
		},
		logger,
	)

	var handler http.Handler = router
	if cfg.Server.SentryDSN != "" {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(router)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(revokeRepo, logger, cfg.Auth.CleanupInterval)
	go cleanupManager.Start(context.Background())

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		cleanupManager.Stop()
		return err
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	cleanupManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight welcome emails finish before the process exits.
	authService.Wait()
	oauthService.Wait()

	logger.Info("server stopped gracefully")
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
