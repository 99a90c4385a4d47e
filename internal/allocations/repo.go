package allocations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
)

// LocationSync describes a location's group link, used to decide whether a
// mutation on that location must be mirrored to the sync pipeline.
type LocationSync struct {
	LocationID     uuid.UUID  `gorm:"column:location_id"`
	GroupID        *uuid.UUID `gorm:"column:group_id"`
	Synchronizable bool       `gorm:"column:synchronizable"`
}

// PurgedAllocation records the location a purged stock row pointed at.
type PurgedAllocation struct {
	LocationID     uuid.UUID  `gorm:"column:location_id"`
	GroupID        *uuid.UUID `gorm:"column:group_id"`
	Synchronizable bool       `gorm:"column:synchronizable"`
}

// Repository defines allocation persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByPair(ctx context.Context, productID, locationID uuid.UUID) (*models.ProductStock, error)
	Upsert(ctx context.Context, productID, locationID uuid.UUID, quantity int) error
	DeleteByPair(ctx context.Context, productID, locationID uuid.UUID) (int64, error)
	PurgeByLocation(ctx context.Context, locationID uuid.UUID) ([]uuid.UUID, error)
	PurgeByProduct(ctx context.Context, productID uuid.UUID) ([]PurgedAllocation, error)
	DriftedProductIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.ProductStock, error)
	FindLocationSync(ctx context.Context, locationID uuid.UUID) (*LocationSync, error)
	ProductExists(ctx context.Context, productID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an allocations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByPair(ctx context.Context, productID, locationID uuid.UUID) (*models.ProductStock, error) {
	var row models.ProductStock
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert sets the absolute quantity for the pair, inserting the row when it
// does not exist yet. Quantities are replaced, never added.
func (r *repository) Upsert(ctx context.Context, productID, locationID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO product_stocks (id, product_id, location_id, quantity, created_at, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (product_id, location_id)
DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = CURRENT_TIMESTAMP`,
			uuid.New(), productID, locationID, quantity).
		Error
}

func (r *repository) DeleteByPair(ctx context.Context, productID, locationID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Delete(&models.ProductStock{})
	return result.RowsAffected, result.Error
}

// PurgeByLocation removes every stock row held at the location and returns
// the product IDs whose totals need a recompute.
func (r *repository) PurgeByLocation(ctx context.Context, locationID uuid.UUID) ([]uuid.UUID, error) {
	var productIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Distinct().
		Where("location_id = ?", locationID).
		Pluck("product_id", &productIDs).Error
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Delete(&models.ProductStock{}).Error
	if err != nil {
		return nil, err
	}
	return productIDs, nil
}

// PurgeByProduct removes every stock row of the product and reports which
// locations held stock, with their group sync flags.
func (r *repository) PurgeByProduct(ctx context.Context, productID uuid.UUID) ([]PurgedAllocation, error) {
	var purged []PurgedAllocation
	err := r.db.WithContext(ctx).
		Table("product_stocks ps").
		Select("ps.location_id AS location_id, sl.group_id AS group_id, COALESCE(sg.synchronizable, FALSE) AS synchronizable").
		Joins("JOIN stock_locations sl ON sl.id = ps.location_id").
		Joins("LEFT JOIN stock_groups sg ON sg.id = sl.group_id").
		Where("ps.product_id = ?", productID).
		Scan(&purged).Error
	if err != nil {
		return nil, err
	}
	if len(purged) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&models.ProductStock{}).Error
	if err != nil {
		return nil, err
	}
	return purged, nil
}

// DriftedProductIDs returns products whose cached total no longer matches the
// sum of their stock rows. A zero limit means no limit.
func (r *repository) DriftedProductIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error) {
	if tx == nil {
		tx = r.db
	}
	query := tx.WithContext(ctx).
		Table("products p").
		Joins("LEFT JOIN product_stocks ps ON ps.product_id = p.id").
		Group("p.id, p.total_stock").
		Having("p.total_stock <> COALESCE(SUM(ps.quantity), 0)").
		Order("p.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uuid.UUID
	if err := query.Pluck("p.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.ProductStock, error) {
	var rows []models.ProductStock
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindLocationSync loads a location's group link without importing the
// locations package.
func (r *repository) FindLocationSync(ctx context.Context, locationID uuid.UUID) (*LocationSync, error) {
	var row LocationSync
	err := r.db.WithContext(ctx).
		Table("stock_locations sl").
		Select("sl.id AS location_id, sl.group_id AS group_id, COALESCE(sg.synchronizable, FALSE) AS synchronizable").
		Joins("LEFT JOIN stock_groups sg ON sg.id = sl.group_id").
		Where("sl.id = ?", locationID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.LocationID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *repository) ProductExists(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
