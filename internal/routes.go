package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	v1 "viewtracker/api/v1"
	"viewtracker/internal/config"
	"viewtracker/internal/http"
	"viewtracker/internal/http/middleware"
	"viewtracker/internal/timeframe"
)

// SessionCookieName names the cookie carrying the visitor session, and with
// it the set of products already counted for that visitor.
const SessionCookieName = "viewtracker_session"

// BrowserSecFetchSites are the Sec-Fetch-Site values accepted on browser
// POST routes.
var BrowserSecFetchSites = []string{"cross-site", "same-site", "same-origin"}

// publicCORSConfig returns the CORS configuration for browser-facing
// endpoints. Credentials are only allowed when explicit origins are
// configured, since browsers refuse them together with a wildcard.
func publicCORSConfig(cfg *config.Config) *cors.Config {
	origins := cfg.GetPublicCORSOrigins()
	return &cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "POST,GET,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Referrer, User-Agent",
		AllowCredentials: origins != "*",
	}
}

// NewSessionStore creates the visitor session store holding viewed-sets.
func NewSessionStore(cfg *config.Config) *session.Store {
	sameSite := "Lax"
	if cfg.IsProduction() && cfg.GetPublicCORSOrigins() != "*" {
		// The tracking script posts cross-site from the storefront.
		sameSite = "None"
	}

	store := session.New(session.Config{
		Expiration:     cfg.GetSessionTTL(),
		KeyLookup:      "cookie:" + SessionCookieName,
		CookieHTTPOnly: true,
		CookieSecure:   cfg.IsProduction(),
		CookieSameSite: sameSite,
		KeyGenerator:   uuid.NewString,
	})
	store.RegisterType([]uint{})
	return store
}

// accessLog returns the access log middleware writing to a rotated file, or
// nil when access logging is off.
func accessLog(cfg *config.Config, logger *slog.Logger) fiber.Handler {
	if !cfg.AccessLogEnabled || cfg.IsTest() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.GetAccessLogPath()), 0o755); err != nil {
		logger.Warn("Access log disabled, cannot create logs directory", slog.Any("error", err))
		return nil
	}

	return fiberlogger.New(fiberlogger.Config{
		Format:     "${time} ${ip} ${status} ${method} ${path} ${latency}\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Output: &lumberjack.Logger{
			Filename:   cfg.GetAccessLogPath(),
			MaxSize:    cfg.LogsMaxSizeInMb,
			MaxBackups: cfg.LogsMaxBackups,
			MaxAge:     cfg.LogsMaxAgeInDays,
			Compress:   true,
		},
	})
}

// MountAppRoutes builds the services on the server's database and mounts
// every route. Used where no Application assembled the services, such as
// test servers.
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	services, err := NewServices(cfg, srv.GetDBManager().GetConnection(), srv.GetLogger())
	if err != nil {
		srv.GetLogger().Error("Failed to create services", slog.Any("error", err))
		panic(err)
	}
	MountRoutes(srv, services)
}

// MountRoutes mounts all application routes using cartridge's route API
func MountRoutes(srv *cartridge.Server, services *Services) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	if handler := accessLog(cfg, logger); handler != nil {
		srv.App().Use(handler)
	}

	sessions := NewSessionStore(cfg)

	// ============================================
	// PUBLIC ENDPOINT PROTECTION
	// All public endpoints get the following protection:
	// - Rate limiting (70 req/min, production only)
	// - CORS (for the tracking script running on the storefront)
	// - Sec-Fetch-Site validation on POST (browsers only, any site)
	// ============================================

	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// The tracking script posts from the storefront, usually another site.
	// Requests without the header (curl, scripts) are rejected.
	browserOnly := cartridgemiddleware.SecFetchSiteMiddleware(cartridgemiddleware.SecFetchSiteConfig{
		AllowedValues: BrowserSecFetchSites,
		Methods:       []string{fiber.MethodPost},
	})

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Browser-facing API: rate limiting + CORS + Sec-Fetch-Site.
	// CORS runs first ensuring 403 responses have CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter, browserOnly},
		CORSConfig:       publicCORSConfig(cfg),
	}

	// Tracking script delivery, GET only
	scriptConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig(cfg),
	}

	// Server-to-server API used by the storefront: no browser headers, a
	// bearer admin key instead.
	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.APIKeyAuth(services.Settings, logger),
		},
	}

	operationalConfig := &cartridge.RouteConfig{}

	viewsHandler := v1.NewViewsHandler(services.Recorder, services.Tokens, sessions)
	popularHandler := v1.NewPopularHandler(services.Analytics, services.Settings, &timeframe.DefaultTimeProvider{})
	renderHandler := http.NewRenderHandler(services.Recorder, services.Tokens, services.Settings, sessions)
	analyticsHandler := http.NewAnalyticsHandler(services.Analytics, services.Settings, timeframe.NewDateRangeParser())
	productsHandler := http.NewProductsHandler(services.Recorder)
	settingsHandler := http.NewSettingsHandler(services.Settings)

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === OPERATIONAL ROUTES ===
	srv.Get("/_health", http.HealthIndexAction, operationalConfig)
	srv.Head("/_health", http.HealthIndexAction, operationalConfig)

	metricsHandler := adaptor.HTTPHandler(promhttp.Handler())
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	}, operationalConfig)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/views", viewsHandler.RecordViewAction, publicAPIConfig)
	srv.Options("/x/api/v1/views", noContent, publicAPIConfig)
	srv.Get("/x/api/v1/products/popular", popularHandler.PopularProductsAction, publicAPIConfig)
	srv.Options("/x/api/v1/products/popular", noContent, publicAPIConfig)
	srv.Get("/x/api/v1/products/views", viewsHandler.BulkViewsAction, publicAPIConfig)
	srv.Options("/x/api/v1/products/views", noContent, publicAPIConfig)
	srv.Get("/x/api/v1/products/:id/views", viewsHandler.ProductViewsAction, publicAPIConfig)
	srv.Options("/x/api/v1/products/:id/views", noContent, publicAPIConfig)

	// === TRACKING SCRIPT ===
	srv.Get("/y/api/v1/tracker.js", v1.GetTrackerScriptAction, scriptConfig)

	// === SERVER-TO-SERVER API ===
	srv.Post("/api/v1/render", renderHandler.RenderAction, adminAPIConfig)

	srv.Get("/api/v1/analytics", analyticsHandler.SummaryAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/widget", analyticsHandler.WidgetAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/export", analyticsHandler.ExportAction, adminAPIConfig)
	srv.Get("/api/v1/products/:id/analytics", analyticsHandler.ProductAnalyticsAction, adminAPIConfig)

	srv.Post("/api/v1/products/:id/reset", productsHandler.ResetProductAction, adminAPIConfig)
	srv.Post("/api/v1/products/:id/updated", productsHandler.ProductUpdatedAction, adminAPIConfig)
	srv.Post("/api/v1/views/reset", productsHandler.ResetAllAction, adminAPIConfig)

	srv.Get("/api/v1/settings", settingsHandler.SettingsIndexAction, adminAPIConfig)
	srv.Post("/api/v1/settings", settingsHandler.SettingsUpdateAction, adminAPIConfig)
	srv.Post("/api/v1/settings/api-key", settingsHandler.RotateAPIKeyAction, adminAPIConfig)
}
