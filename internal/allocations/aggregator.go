package allocations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
)

// Aggregator recomputes the denormalized product total from the stock rows.
// It always re-reads the full sum instead of applying deltas, so a recompute
// after any mutation converges on the correct value even if a previous total
// was wrong. It must run on the same transaction as the mutation it follows.
type Aggregator struct{}

// NewAggregator builds the stock aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Recompute locks the product row, sums its stock rows and stores the result
// in total_stock. A product that no longer exists is a no-op: the mutation
// that triggered the recompute raced a product delete and there is nothing
// left to update.
func (a *Aggregator) Recompute(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if productID == uuid.Nil {
		return 0, errors.New("product id required")
	}

	query := tx.WithContext(ctx).Model(&models.Product{}).Select("id")
	if tx.Dialector.Name() == "postgres" {
		// SQLite serializes writers on its own, the row lock is postgres-only.
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.Product
	if err := query.Where("id = ?", productID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var total int
	err := tx.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}

	err = tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("total_stock", total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
