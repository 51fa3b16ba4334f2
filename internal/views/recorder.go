// Package views records product views: the duplicate guard, the atomic
// all-time counters and the per-view detail log.
package views

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"viewtracker/internal/metrics"
	"viewtracker/internal/pkg/clientip"
	"viewtracker/internal/pkg/device"
	"viewtracker/internal/settings"
)

// OptionsProvider supplies the current tracker options.
type OptionsProvider interface {
	Options(ctx context.Context) (settings.Options, error)
}

// ViewContext describes who viewed a product and from where. It is built by
// the HTTP adapters from the request.
type ViewContext struct {
	UserID    uint
	IsAdmin   bool
	SessionID string
	Session   SessionStore
	UserAgent string
	Referer   string
	ClientIP  string
}

// Recorder decides whether a view counts and persists it.
type Recorder struct {
	db       *gorm.DB
	logger   *slog.Logger
	options  OptionsProvider
	counters *CounterStore
	details  *DetailStore
	clock    func() time.Time
	policy   *bluemonday.Policy
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source used for viewed_at.
func WithClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.clock = clock
	}
}

func NewRecorder(db *gorm.DB, logger *slog.Logger, options OptionsProvider, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:       db,
		logger:   logger,
		options:  options,
		counters: NewCounterStore(db),
		details:  NewDetailStore(db),
		clock:    time.Now,
		policy:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordView counts a view of productID.
//
// It returns ErrInvalidProductID for a zero id, a *RejectedError when the
// view is excluded by policy, and a *StorageError when the counter could not
// be incremented. A failed detail insert alone is logged and does not fail
// the view.
func (r *Recorder) RecordView(ctx context.Context, productID uint, vc ViewContext) error {
	if productID == 0 {
		metrics.RecordView(metrics.OutcomeInvalid)
		return ErrInvalidProductID
	}

	opts := r.currentOptions(ctx)

	if opts.ExcludeAdmin && vc.IsAdmin {
		metrics.RecordView(metrics.OutcomeAdmin)
		return &RejectedError{Reason: RejectAdmin}
	}

	guard := NewGuard(opts.DuplicateProtection)
	if !guard.ShouldCount(vc.Session, productID) {
		metrics.RecordView(metrics.OutcomeDuplicate)
		return &RejectedError{Reason: RejectDuplicate}
	}

	record := r.buildRecord(productID, vc)
	if err := r.persist(ctx, record); err != nil {
		metrics.RecordView(metrics.OutcomeError)
		r.logger.Error("Failed to record product view",
			slog.Uint64("product_id", uint64(productID)),
			slog.Any("error", err))
		return err
	}

	guard.MarkCounted(vc.Session, productID)
	metrics.RecordView(metrics.OutcomeRecorded)

	r.logger.Debug("Product view recorded",
		slog.Uint64("product_id", uint64(productID)),
		slog.String("device_type", string(record.DeviceType)))
	return nil
}

// Views returns the all-time views of productID.
func (r *Recorder) Views(ctx context.Context, productID uint) (int64, error) {
	return r.counters.Get(ctx, productID)
}

// ViewsOf returns the all-time views of each product, in the order given.
// Products never viewed report zero.
func (r *Recorder) ViewsOf(ctx context.Context, productIDs []uint) ([]ProductCount, error) {
	counts, err := r.counters.GetMany(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	result := make([]ProductCount, len(productIDs))
	for i, id := range productIDs {
		result[i] = ProductCount{ProductID: id, Views: counts[id]}
	}
	return result, nil
}

func (r *Recorder) currentOptions(ctx context.Context) settings.Options {
	if r.options == nil {
		return settings.DefaultOptions()
	}
	opts, err := r.options.Options(ctx)
	if err != nil {
		r.logger.Warn("Failed to load tracker options, using defaults", slog.Any("error", err))
		return settings.DefaultOptions()
	}
	return opts
}

func (r *Recorder) buildRecord(productID uint, vc ViewContext) *ProductView {
	userAgent := r.clean(vc.UserAgent, MaxUserAgentLength)

	return &ProductView{
		ProductID:  productID,
		UserID:     vc.UserID,
		SessionID:  truncate(strings.TrimSpace(vc.SessionID), MaxSessionIDLength),
		IPAddress:  truncate(clientip.Anonymize(strings.TrimSpace(vc.ClientIP)), MaxIPLength),
		UserAgent:  userAgent,
		DeviceType: device.Classify(userAgent),
		Referer:    r.clean(vc.Referer, MaxRefererLength),
		ViewedAt:   r.clock().UTC(),
	}
}

// clean strips markup from a client supplied header and bounds its length.
// Values without a tag opener are kept verbatim, entities included; values
// with markup keep the policy's escaped output.
func (r *Recorder) clean(value string, max int) string {
	if strings.ContainsRune(value, '<') {
		value = r.policy.Sanitize(value)
	}
	return truncate(strings.TrimSpace(value), max)
}

func (r *Recorder) persist(ctx context.Context, record *ProductView) error {
	db := r.db.WithContext(ctx)

	var detailErr error
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		detailErr = nil
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := r.counters.Increment(tx, record.ProductID, record.ViewedAt); err != nil {
				return err
			}
			if err := r.details.Append(tx, record); err != nil {
				detailErr = err
				return err
			}
			return nil
		})
	})
	if err == nil {
		return nil
	}
	if detailErr == nil {
		return &StorageError{Op: "increment counter", Err: err}
	}

	// The counter is authoritative: keep counting without the detail row.
	metrics.RecordDetailInsertFailure()
	r.logger.Warn("Failed to store view detail, counting without it",
		slog.Uint64("product_id", uint64(record.ProductID)),
		slog.Any("error", detailErr))

	err = sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return r.counters.Increment(tx, record.ProductID, record.ViewedAt)
	})
	if err != nil {
		return &StorageError{Op: "increment counter", Err: err}
	}
	return nil
}

// ParseProductID parses a product identifier from a request value. Zero is
// returned for anything that is not a positive integer.
func ParseProductID(raw string) uint {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 || uint64(id) > uint64(^uint(0)) {
		return 0
	}
	return uint(id)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
