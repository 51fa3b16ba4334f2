package settings

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// RetentionChoices lists the accepted data retention horizons in days. Zero
// keeps detail rows forever.
var RetentionChoices = []int{0, 30, 90, 180, 365}

const (
	MinWidgetCount = 1
	MaxWidgetCount = 20
)

var optionKeys = []string{
	KeyAjaxTracking,
	KeyExcludeAdmin,
	KeyDuplicateProtection,
	KeyDataRetention,
	KeyWidgetCount,
	KeyResetOnUpdate,
	KeyThumbnailSize,
}

var thumbnailSizePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{0,64}$`)

// Options are the administrator-controlled switches of the tracker.
type Options struct {
	AjaxTracking        bool   `json:"ajax_tracking"`
	ExcludeAdmin        bool   `json:"exclude_admin"`
	DuplicateProtection bool   `json:"duplicate_protection"`
	RetentionDays       int    `json:"data_retention"`
	WidgetCount         int    `json:"widget_count"`
	ResetOnUpdate       bool   `json:"reset_on_update"`
	ThumbnailSize       string `json:"thumbnail_size"`
}

// DefaultOptions returns the options of a fresh installation.
func DefaultOptions() Options {
	return Options{
		AjaxTracking:        true,
		ExcludeAdmin:        true,
		DuplicateProtection: true,
		RetentionDays:       365,
		WidgetCount:         5,
		ResetOnUpdate:       false,
		ThumbnailSize:       "",
	}
}

func (o Options) values() map[string]string {
	return map[string]string{
		KeyAjaxTracking:        formatFlag(o.AjaxTracking),
		KeyExcludeAdmin:        formatFlag(o.ExcludeAdmin),
		KeyDuplicateProtection: formatFlag(o.DuplicateProtection),
		KeyDataRetention:       strconv.Itoa(o.RetentionDays),
		KeyWidgetCount:         strconv.Itoa(o.WidgetCount),
		KeyResetOnUpdate:       formatFlag(o.ResetOnUpdate),
		KeyThumbnailSize:       o.ThumbnailSize,
	}
}

// optionsFromValues builds Options from stored values, falling back to the
// default for anything missing or unreadable.
func optionsFromValues(values map[string]string) Options {
	opts := DefaultOptions()

	if v, ok := values[KeyAjaxTracking]; ok {
		opts.AjaxTracking = parseFlag(v, opts.AjaxTracking)
	}
	if v, ok := values[KeyExcludeAdmin]; ok {
		opts.ExcludeAdmin = parseFlag(v, opts.ExcludeAdmin)
	}
	if v, ok := values[KeyDuplicateProtection]; ok {
		opts.DuplicateProtection = parseFlag(v, opts.DuplicateProtection)
	}
	if v, ok := values[KeyResetOnUpdate]; ok {
		opts.ResetOnUpdate = parseFlag(v, opts.ResetOnUpdate)
	}
	if v, ok := values[KeyDataRetention]; ok {
		if days, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && slices.Contains(RetentionChoices, days) {
			opts.RetentionDays = days
		}
	}
	if v, ok := values[KeyWidgetCount]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= MinWidgetCount && n <= MaxWidgetCount {
			opts.WidgetCount = n
		}
	}
	if v, ok := values[KeyThumbnailSize]; ok && thumbnailSizePattern.MatchString(v) {
		opts.ThumbnailSize = v
	}

	return opts
}

func formatFlag(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseFlag(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1", "on":
		return true
	case "no", "false", "0", "off", "":
		return false
	default:
		return fallback
	}
}

// ValidationError reports an option value outside its accepted domain.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// OptionsUpdate carries a partial change of the options. Nil fields are left
// untouched.
type OptionsUpdate struct {
	AjaxTracking        *bool   `json:"ajax_tracking"`
	ExcludeAdmin        *bool   `json:"exclude_admin"`
	DuplicateProtection *bool   `json:"duplicate_protection"`
	RetentionDays       *int    `json:"data_retention"`
	WidgetCount         *int    `json:"widget_count"`
	ResetOnUpdate       *bool   `json:"reset_on_update"`
	ThumbnailSize       *string `json:"thumbnail_size"`
}

// Apply returns current with the update applied, or a *ValidationError.
func (u OptionsUpdate) Apply(current Options) (Options, error) {
	next := current

	if u.AjaxTracking != nil {
		next.AjaxTracking = *u.AjaxTracking
	}
	if u.ExcludeAdmin != nil {
		next.ExcludeAdmin = *u.ExcludeAdmin
	}
	if u.DuplicateProtection != nil {
		next.DuplicateProtection = *u.DuplicateProtection
	}
	if u.ResetOnUpdate != nil {
		next.ResetOnUpdate = *u.ResetOnUpdate
	}
	if u.RetentionDays != nil {
		if !slices.Contains(RetentionChoices, *u.RetentionDays) {
			return current, &ValidationError{
				Field:   KeyDataRetention,
				Message: fmt.Sprintf("must be one of %v, got %d", RetentionChoices, *u.RetentionDays),
			}
		}
		next.RetentionDays = *u.RetentionDays
	}
	if u.WidgetCount != nil {
		if *u.WidgetCount < MinWidgetCount || *u.WidgetCount > MaxWidgetCount {
			return current, &ValidationError{
				Field:   KeyWidgetCount,
				Message: fmt.Sprintf("must be between %d and %d, got %d", MinWidgetCount, MaxWidgetCount, *u.WidgetCount),
			}
		}
		next.WidgetCount = *u.WidgetCount
	}
	if u.ThumbnailSize != nil {
		size := strings.TrimSpace(*u.ThumbnailSize)
		if !thumbnailSizePattern.MatchString(size) {
			return current, &ValidationError{
				Field:   KeyThumbnailSize,
				Message: "only letters, digits, dashes and underscores are allowed",
			}
		}
		next.ThumbnailSize = size
	}

	return next, nil
}
