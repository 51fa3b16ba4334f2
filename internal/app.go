// Package internal contains core application functionality
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"viewtracker/internal/analytics"
	"viewtracker/internal/config"
	"viewtracker/internal/database"
	"viewtracker/internal/jobs"
	"viewtracker/internal/settings"
	"viewtracker/internal/tracking"
	"viewtracker/internal/views"
)

// Services are the long-lived domain objects shared by the HTTP routes, the
// background scheduler and the CLI.
type Services struct {
	Settings  *settings.Store
	Recorder  *views.Recorder
	Analytics *analytics.Engine
	Tokens    *tracking.Issuer
	Retention *jobs.RetentionJob
}

// NewServices wires the domain services on top of db.
func NewServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Services, error) {
	tokens, err := tracking.NewIssuer(cfg.GetSessionSecret(), cfg.GetTrackingTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	store := settings.NewStore(db, logger)
	return &Services{
		Settings:  store,
		Recorder:  views.NewRecorder(db, logger, store),
		Analytics: analytics.NewEngine(db, logger, analytics.WithShopHost(cfg.GetShopHost())),
		Tokens:    tokens,
		Retention: jobs.NewRetentionJob(db, logger, store),
	}, nil
}

// Application wraps cartridge.Application with the tracker's components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Services  *Services
}

// NewServerConfig returns the cartridge server configuration of the tracker.
// The global Sec-Fetch-Site check is off: it runs before any per-route
// override and would reject the storefront's server-to-server calls. Browser
// routes attach the check themselves (see MountRoutes).
func NewServerConfig() *cartridge.ServerConfig {
	cfg := cartridge.DefaultServerConfig()
	cfg.EnableSecFetchSite = false
	cfg.EnableStaticAssets = false
	return cfg
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountRoutes)
}

// NewAppWithRoutes creates a new application whose routes are mounted by
// routeMount with the application services.
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server, *Services)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := NewServices(cfg, dbManager.GetConnection(), logger)
	if err != nil {
		return nil, err
	}

	scheduler := jobs.NewScheduler(services.Retention, cfg.GetRetentionInterval(), logger)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		ServerConfig: NewServerConfig(),
		RouteMountFunc: func(srv *cartridge.Server) {
			routeMount(srv, services)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}
