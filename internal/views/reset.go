package views

import (
	"context"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// ResetProductViews zeroes the counter of productID and deletes its detail rows.
func (r *Recorder) ResetProductViews(ctx context.Context, productID uint) error {
	if productID == 0 {
		return ErrInvalidProductID
	}

	var deleted int64
	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			n, err := r.details.DeleteProduct(tx, productID)
			if err != nil {
				return err
			}
			deleted = n
			return r.counters.Set(tx, productID, 0, r.clock().UTC())
		})
	})
	if err != nil {
		return &StorageError{Op: "reset product views", Err: err}
	}

	r.logger.Info("Product views reset",
		slog.Uint64("product_id", uint64(productID)),
		slog.Int64("details_deleted", deleted))
	return nil
}

// ResetAllViews zeroes every counter and empties the detail log.
func (r *Recorder) ResetAllViews(ctx context.Context) error {
	var deleted, zeroed int64
	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			n, err := r.details.DeleteAll(tx)
			if err != nil {
				return err
			}
			deleted = n
			zeroed, err = r.counters.ZeroAll(tx, r.clock().UTC())
			return err
		})
	})
	if err != nil {
		return &StorageError{Op: "reset all views", Err: err}
	}

	r.logger.Info("All product views reset",
		slog.Int64("details_deleted", deleted),
		slog.Int64("counters_zeroed", zeroed))
	return nil
}

// HandleProductUpdated resets the views of productID when the reset-on-update
// option is enabled. It reports whether a reset happened.
func (r *Recorder) HandleProductUpdated(ctx context.Context, productID uint) (bool, error) {
	if !r.currentOptions(ctx).ResetOnUpdate {
		return false, nil
	}
	if err := r.ResetProductViews(ctx, productID); err != nil {
		return false, err
	}
	return true, nil
}
