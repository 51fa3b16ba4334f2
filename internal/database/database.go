package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"viewtracker/internal/config"
	"viewtracker/internal/settings"
	"viewtracker/internal/views"
)

// DBManager wraps cartridge's sqlite.Manager with the tracker's migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models lists every table the tracker owns, in migration order.
func Models() []any {
	return []any{
		&settings.Setting{},
		&views.ProductCounter{},
		&views.ProductView{},
	}
}

// Migrate creates or updates the tracker tables on db and inserts the
// default tracker options.
func Migrate(db *gorm.DB) error {
	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	}); err != nil {
		return err
	}
	return settings.SetupDefaultSettings(db)
}

// MigrateDatabase runs the tracker migrations on the managed connection.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := Migrate(db); err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
