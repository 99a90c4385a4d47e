package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the denormalized total across all of its stock rows.
// TotalStock is a derived cache: the aggregation step inside the allocation
// transaction is the only writer, every other caller reads it as-is.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex:ux_products_sku"`
	Name       string    `gorm:"column:name;not null"`
	TotalStock int       `gorm:"column:total_stock;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
