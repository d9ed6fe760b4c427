package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	httpapi "github.com/aussiebroadwan/mediscan/internal/mediscan/http"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// Application owns every long lived dependency of the MediScan service.
type Application struct {
	cfg    Config
	logger *slog.Logger
	levels *slog.LevelVar

	db           store.Store
	integrations Integrations

	tokenService        *service.TokenService
	accountService      *service.AccountService
	profileService      *service.ProfileService
	userService         *service.UserService
	chatService         *service.ChatService
	healthService       *service.HealthService
	analyzeService      *service.AnalyzeService
	avatarService       *service.AvatarService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	watcher *ConfigWatcher // nil without a config file

	server  *http.Server
	router  *httpapi.Router
	started bool
}

// New validates cfg and builds the application. Nothing is started until
// Run.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	levels := new(slog.LevelVar)
	app := &Application{
		cfg:    cfg,
		levels: levels,
		logger: slogx.New(slogx.Config{
			Service: "mediscan",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
			Levels:  levels,
		}),
	}

	ctx := context.Background()

	db, err := OpenStore(ctx, cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	app.integrations, err = InitIntegrations(ctx, cfg, app.logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.ConfigFile != "" {
		w, err := NewConfigWatcher(cfg.ConfigFile, app.levels, app.logger)
		if err != nil {
			app.logger.Warn("config file will not be watched", "error", err)
		} else {
			app.watcher = w
		}
	}

	app.initHTTP()
	return app, nil
}

// Handler exposes the routed handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the background workers and the server and blocks until a
// shutdown signal or a server error.
func (app *Application) Run() error {
	app.started = true
	app.housekeepingService.Start()
	if app.watcher != nil {
		app.watcher.Start()
	}

	app.logger.Info("mediscan starting", "port", app.cfg.Port, "driver", app.cfg.StorageDriver, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP, stops background workers and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mediscan...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Workers only exist once Run has started them.
	if app.started {
		app.housekeepingService.Stop()
		if app.watcher != nil {
			app.watcher.Stop()
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("mediscan stopped")
	return nil
}

func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasher, err := cryptox.NewHasher(pepper, cryptox.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	app.tokenService, err = service.NewTokenService(service.TokenConfig{
		AccessSecret:  app.cfg.AccessTokenSecret,
		RefreshSecret: app.cfg.RefreshTokenSecret,
		AccessTTL:     app.cfg.AccessTokenTTL,
		RefreshTTL:    app.cfg.RefreshTokenTTL,
		Issuer:        app.cfg.TokenIssuer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	app.accountService = &service.AccountService{
		Store:    app.db,
		Hasher:   hasher,
		Tokens:   app.tokenService,
		External: app.integrations.External,
		Lockout: domain.LockoutPolicy{
			MaxAttempts: app.cfg.LockoutMaxAttempts,
			Duration:    app.cfg.LockoutDuration,
		},
	}
	app.profileService = &service.ProfileService{Store: app.db}
	app.userService = &service.UserService{Store: app.db}

	var responder service.Responder = service.CannedResponder{}
	if app.integrations.Model != nil {
		responder = service.GeminiResponder{Model: app.integrations.Model}
	}
	app.chatService = &service.ChatService{
		Store:     app.db,
		Responder: responder,
		Retention: app.cfg.ChatRetention,
	}
	app.healthService = &service.HealthService{Store: app.db}
	app.analyzeService = &service.AnalyzeService{Model: app.integrations.Model}
	app.avatarService = &service.AvatarService{Store: app.db, Objects: app.integrations.Objects}
	app.bootstrapService = &service.BootstrapService{
		Store:  app.db,
		Hasher: hasher,
		Token:  app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) initHTTP() {
	prod := app.cfg.Env == "prod"

	limits := httpapi.RateLimitsFromEnv()
	if limits.Login.Burst <= app.cfg.LockoutMaxAttempts {
		app.logger.Warn("login rate limit will answer 429 before the account locks",
			"login_burst", limits.Login.Burst,
			"lockout_max_attempts", app.cfg.LockoutMaxAttempts,
		)
	}

	router := httpapi.NewRouter(httpapi.Config{
		Cookie: httpx.RefreshCookie{
			Path:   "/",
			Secure: prod,
			MaxAge: app.tokenService.RefreshTTL(),
		},
		CORS:         httpx.CORSConfig{Origins: app.cfg.CORSOrigins, MaxAge: 10 * time.Minute},
		ErrorDetail:  app.cfg.Env == "dev",
		HSTS:         prod,
		BuildVersion: BuildVersion,
		Limits:       limits,
	}, app.db, app.logger)

	router.TokenService = app.tokenService
	router.AccountService = app.accountService
	router.ProfileService = app.profileService
	router.UserService = app.userService
	router.ChatService = app.chatService
	router.HealthService = app.healthService
	router.AnalyzeService = app.analyzeService
	router.AvatarService = app.avatarService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
