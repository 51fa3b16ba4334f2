package database_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"viewtracker/internal/database"
	"viewtracker/internal/settings"
	"viewtracker/internal/views"
)

func TestMigrate(t *testing.T) {
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db), "migrations are idempotent")

	for _, table := range []string{"settings", "product_counters", "product_views"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	for _, column := range []string{"ProductID", "UserID", "SessionID", "ViewedAt"} {
		assert.True(t, db.Migrator().HasIndex(&views.ProductView{}, column), "index on %s", column)
	}

	value, err := settings.GetSetting(db, settings.KeyWidgetCount)
	require.NoError(t, err)
	assert.Equal(t, "5", value)
}
