package allocations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
)

// AllocationDTO is the transport-facing shape of one stock row.
type AllocationDTO struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"productId"`
	LocationID uuid.UUID `json:"locationId"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FromModel maps a stock row to its DTO.
func FromModel(row *models.ProductStock) *AllocationDTO {
	if row == nil {
		return nil
	}
	return &AllocationDTO{
		ID:         row.ID,
		ProductID:  row.ProductID,
		LocationID: row.LocationID,
		Quantity:   row.Quantity,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
