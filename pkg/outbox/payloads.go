package outbox

import "github.com/google/uuid"

// StockLevelChanged is emitted when an allocation mutation lands on a location
// whose group is flagged synchronizable. TotalStock is the recomputed product
// total after the mutation committed.
type StockLevelChanged struct {
	ProductID  uuid.UUID `json:"productId"`
	LocationID uuid.UUID `json:"locationId"`
	GroupID    uuid.UUID `json:"groupId"`
	Quantity   int       `json:"quantity"`
	TotalStock int       `json:"totalStock"`
}

// StockLocationDeleted is emitted when a synchronizable location is removed
// together with its allocation rows.
type StockLocationDeleted struct {
	LocationID uuid.UUID `json:"locationId"`
	GroupID    uuid.UUID `json:"groupId"`
}
