package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductStock records how many units of one product sit at one location.
// At most one row exists per (product, location) pair.
type ProductStock struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_stocks_product_location"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_product_stocks_product_location"`
	Quantity   int       `gorm:"column:quantity;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
