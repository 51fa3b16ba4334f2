package views

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterStore reads and writes the all-time product counters.
type CounterStore struct {
	db *gorm.DB
}

func NewCounterStore(db *gorm.DB) *CounterStore {
	return &CounterStore{db: db}
}

// Get returns the all-time views of productID, zero when no counter exists.
func (s *CounterStore) Get(ctx context.Context, productID uint) (int64, error) {
	var views int64
	err := s.db.WithContext(ctx).
		Model(&ProductCounter{}).
		Select("views").
		Where("product_id = ?", productID).
		Scan(&views).Error
	if err != nil {
		return 0, &StorageError{Op: "read counter", Err: err}
	}
	return views, nil
}

// GetMany returns the all-time views of each id in productIDs that has a
// counter. Ids without one are absent from the map.
func (s *CounterStore) GetMany(ctx context.Context, productIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(productIDs))
	if len(productIDs) == 0 {
		return counts, nil
	}

	var rows []ProductCounter
	err := s.db.WithContext(ctx).
		Select("product_id", "views").
		Where("product_id IN ?", productIDs).
		Find(&rows).Error
	if err != nil {
		return nil, &StorageError{Op: "read counters", Err: err}
	}
	for _, row := range rows {
		counts[row.ProductID] = row.Views
	}
	return counts, nil
}

// Increment adds one view to productID inside tx. The read-modify-write
// happens in a single statement so concurrent increments never lose updates.
func (s *CounterStore) Increment(tx *gorm.DB, productID uint, now time.Time) error {
	return s.Add(tx, productID, 1, now)
}

// Add adds n views to productID inside tx, creating the counter if needed.
func (s *CounterStore) Add(tx *gorm.DB, productID uint, n int64, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"views":      gorm.Expr("product_counters.views + ?", n),
			"updated_at": now,
		}),
	}).Create(&ProductCounter{ProductID: productID, Views: n, UpdatedAt: now}).Error
}

// Set overwrites the counter of productID inside tx.
func (s *CounterStore) Set(tx *gorm.DB, productID uint, views int64, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"views", "updated_at"}),
	}).Select("product_id", "views", "updated_at").
		Create(&ProductCounter{ProductID: productID, Views: views, UpdatedAt: now}).Error
}

// ZeroAll sets every counter to zero inside tx and returns how many changed.
func (s *CounterStore) ZeroAll(tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.Model(&ProductCounter{}).
		Where("views <> ?", 0).
		Updates(map[string]interface{}{"views": 0, "updated_at": now})
	return result.RowsAffected, result.Error
}

// DetailStore appends and prunes the per-view detail rows.
type DetailStore struct {
	db *gorm.DB
}

func NewDetailStore(db *gorm.DB) *DetailStore {
	return &DetailStore{db: db}
}

// Append inserts record inside tx.
func (s *DetailStore) Append(tx *gorm.DB, record *ProductView) error {
	return tx.Create(record).Error
}

// AppendBatch inserts records inside tx, batchSize rows per statement.
func (s *DetailStore) AppendBatch(tx *gorm.DB, records []ProductView, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	return tx.CreateInBatches(records, batchSize).Error
}

// DeleteProduct removes every detail row of productID inside tx.
func (s *DetailStore) DeleteProduct(tx *gorm.DB, productID uint) (int64, error) {
	result := tx.Where("product_id = ?", productID).Delete(&ProductView{})
	return result.RowsAffected, result.Error
}

// DeleteAll removes every detail row inside tx.
func (s *DetailStore) DeleteAll(tx *gorm.DB) (int64, error) {
	result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ProductView{})
	return result.RowsAffected, result.Error
}

// CountOlderThan returns how many detail rows were viewed before cutoff.
func (s *DetailStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ProductView{}).Where("viewed_at < ?", cutoff).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count expired views: %w", err)
	}
	return count, nil
}

// DeleteOlderThanBatch removes at most limit detail rows viewed before cutoff
// inside tx, oldest identifiers first.
func (s *DetailStore) DeleteOlderThanBatch(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	expired := tx.Session(&gorm.Session{NewDB: true}).
		Model(&ProductView{}).
		Select("id").
		Where("viewed_at < ?", cutoff).
		Order("id ASC").
		Limit(limit)
	result := tx.Where("id IN (?)", expired).Delete(&ProductView{})
	return result.RowsAffected, result.Error
}
