package views

import (
	"time"

	"viewtracker/internal/pkg/device"
)

// Column limits of the detail table.
const (
	MaxSessionIDLength = 255
	MaxIPLength        = 45
	MaxUserAgentLength = 255
	MaxRefererLength   = 255
)

// ProductView is one accepted view of a product page.
type ProductView struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ProductID  uint        `gorm:"not null;index" json:"product_id"`
	UserID     uint        `gorm:"not null;default:0;index" json:"user_id"`
	SessionID  string      `gorm:"type:varchar(255);not null;default:'';index" json:"session_id"`
	IPAddress  string      `gorm:"type:varchar(45);not null;default:''" json:"ip_address"`
	UserAgent  string      `gorm:"type:varchar(255);not null;default:''" json:"user_agent"`
	DeviceType device.Type `gorm:"type:varchar(20);not null;default:'desktop'" json:"device_type"`
	Referer    string      `gorm:"type:varchar(255);not null;default:''" json:"referer"`
	ViewedAt   time.Time   `gorm:"not null;index" json:"viewed_at"`
}

func (ProductView) TableName() string {
	return "product_views"
}

// ProductCounter is the running all-time view total of a product. A product
// without a row has zero views.
type ProductCounter struct {
	ProductID uint      `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	Views     int64     `gorm:"not null;default:0;index" json:"views"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProductCounter) TableName() string {
	return "product_counters"
}

// ProductCount pairs a product with its all-time views.
type ProductCount struct {
	ProductID uint  `json:"product_id"`
	Views     int64 `json:"views"`
}
