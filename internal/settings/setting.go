package settings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys
const (
	KeyAjaxTracking        = "ajax_tracking"
	KeyExcludeAdmin        = "exclude_admin"
	KeyDuplicateProtection = "duplicate_protection"
	KeyDataRetention       = "data_retention"
	KeyWidgetCount         = "widget_count"
	KeyResetOnUpdate       = "reset_on_update"
	KeyThumbnailSize       = "thumbnail_size"
	KeyAdminAPIKeyHash     = "admin_api_key_hash"
)

// SettingResponse represents a setting key-value pair for API responses
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetupDefaultSettings inserts the default value of every tracker option
// that is not stored yet. Existing values are left alone.
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := DefaultOptions().values()
	now := time.Now().UTC()

	return sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, key := range optionKeys {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, key, defaults[key], now, now).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// upsertSettings writes every key/value pair inside tx, creating missing rows.
func upsertSettings(tx *gorm.DB, values map[string]string) error {
	now := time.Now().UTC()
	for key, value := range values {
		err := tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
		if err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}
	}
	return nil
}

const optionsCacheKey = "options"

// Store serves the tracker options from a short-lived cache backed by the
// settings table.
type Store struct {
	db       *gorm.DB
	logger   *slog.Logger
	cache    *cache.Cache[string, Options]
	verified verifiedKeys
}

// NewStore creates a Store reading and writing through db.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	s := &Store{db: db, logger: logger}
	s.cache = cache.NewCache[string, Options](logger, 5*time.Minute, func(string) (Options, error) {
		return s.load(context.Background())
	})
	return s
}

// Options returns the current tracker options.
func (s *Store) Options(ctx context.Context) (Options, error) {
	opts, err := s.cache.Get(optionsCacheKey)
	if err != nil {
		return DefaultOptions(), fmt.Errorf("failed to load options: %w", err)
	}
	return opts, nil
}

func (s *Store) load(ctx context.Context) (Options, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Where("key IN ?", optionKeys).Find(&rows).Error; err != nil {
		return Options{}, err
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return optionsFromValues(values), nil
}

// Update validates and persists the fields set in update, then returns the
// resulting options. Nothing is written when validation fails.
func (s *Store) Update(ctx context.Context, update OptionsUpdate) (Options, error) {
	current, err := s.load(ctx)
	if err != nil {
		return Options{}, fmt.Errorf("failed to load options: %w", err)
	}

	next, err := update.Apply(current)
	if err != nil {
		return Options{}, err
	}

	err = sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return upsertSettings(tx, next.values())
	})
	if err != nil {
		return Options{}, err
	}

	s.cache.Clear()
	s.logger.Info("Tracker options updated",
		slog.Bool("ajax_tracking", next.AjaxTracking),
		slog.Bool("duplicate_protection", next.DuplicateProtection),
		slog.Int("data_retention", next.RetentionDays))
	return next, nil
}

// All returns every stored setting with secrets masked.
func (s *Store) All(ctx context.Context) ([]SettingResponse, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	result := make([]SettingResponse, 0, len(rows))
	for _, row := range rows {
		value := row.Value
		if row.Key == KeyAdminAPIKeyHash && value != "" {
			value = "********"
		}
		result = append(result, SettingResponse{Key: row.Key, Value: value})
	}
	return result, nil
}

// ErrNoAPIKey is returned when no admin API key has been generated yet.
var ErrNoAPIKey = errors.New("admin api key not configured")

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}
