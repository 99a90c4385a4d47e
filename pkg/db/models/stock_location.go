package models

import (
	"time"

	"github.com/google/uuid"
)

// StockLocation is a place where product units are held. The group reference
// is a weak link: deleting a group detaches its locations instead of removing
// them, while deleting a location removes its allocations.
type StockLocation struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string      `gorm:"column:name;not null;uniqueIndex:ux_stock_locations_name"`
	GroupID   *uuid.UUID  `gorm:"column:group_id;type:uuid"`
	Group     *StockGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
