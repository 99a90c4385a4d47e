package models

import (
	"time"

	"github.com/google/uuid"
)

// StockGroup is a named classification of stock locations. Groups flagged as
// synchronizable participate in the external stock-sync pipeline.
type StockGroup struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string    `gorm:"column:name;not null;uniqueIndex:ux_stock_groups_name"`
	Synchronizable bool      `gorm:"column:synchronizable;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
