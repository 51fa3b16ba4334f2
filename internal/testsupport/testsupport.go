package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"viewtracker/internal"
	"viewtracker/internal/config"
	"viewtracker/internal/database"
	"viewtracker/internal/settings"
	"viewtracker/internal/tracking"
	"viewtracker/internal/views"
)

// SessionCookieName is the visitor session cookie set by the public routes.
const SessionCookieName = internal.SessionCookieName

func init() {
	if os.Getenv("VIEWTRACKER_ENV") == "" {
		os.Setenv("VIEWTRACKER_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all tracker tables migrated.
// Uses a named in-memory database with cache=shared so every connection sees
// the same data, limited to a single connection since shared-cache SQLite
// reports table locks instead of waiting on them. Caches the database by
// root test name so multiple calls within the same test return the same one.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closures capturing the
	// outer t while t.Run passes a subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set VIEWTRACKER_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	CleanTables(db, tableNames)
}

// CleanTables cleans the given tables
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		return
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestAPIKey generates an admin API key in db and returns it.
func CreateTestAPIKey(t *testing.T, db *gorm.DB) string {
	t.Helper()
	key, err := settings.NewStore(db, GetLogger()).GenerateAPIKey(context.Background())
	require.NoError(t, err)
	return key
}

// CreateTrackingToken issues a tracking token the test app will accept.
func CreateTrackingToken(t *testing.T, productID, userID uint, isAdmin bool) string {
	t.Helper()
	cfg := config.GetConfig()
	issuer, err := tracking.NewIssuer(cfg.GetSessionSecret(), cfg.GetTrackingTokenTTL())
	require.NoError(t, err)
	token, err := issuer.Issue(productID, userID, isAdmin)
	require.NoError(t, err)
	return token
}

// SetOptions stores tracker options directly, bypassing any options cache.
func SetOptions(t *testing.T, db *gorm.DB, update settings.OptionsUpdate) {
	t.Helper()
	_, err := settings.NewStore(db, GetLogger()).Update(context.Background(), update)
	require.NoError(t, err)
}

// CounterValue returns the stored all-time counter of productID, 0 when absent.
func CounterValue(t *testing.T, db *gorm.DB, productID uint) int64 {
	t.Helper()
	var counter views.ProductCounter
	err := db.Where("product_id = ?", productID).Limit(1).Find(&counter).Error
	require.NoError(t, err)
	return counter.Views
}

// SessionCookie returns the visitor session cookie set by resp, as a Cookie
// header value, or "" when none was set.
func SessionCookie(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie.Name + "=" + cookie.Value
		}
	}
	return ""
}

// CreateMinimalTestApp creates a test Fiber app with all routes, built on the
// production server configuration
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	// Same server configuration as production
	cfg := internal.NewServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
