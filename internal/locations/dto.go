package locations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
)

// GroupDTO is the transport-facing shape of a stock group.
type GroupDTO struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Synchronizable bool      `json:"synchronizable"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LocationDTO is the transport-facing shape of a stock location.
type LocationDTO struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	GroupID   *uuid.UUID `json:"groupId,omitempty"`
	Group     *GroupDTO  `json:"group,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// GroupFromModel maps a group row to its DTO.
func GroupFromModel(group *models.StockGroup) *GroupDTO {
	if group == nil {
		return nil
	}
	return &GroupDTO{
		ID:             group.ID,
		Name:           group.Name,
		Synchronizable: group.Synchronizable,
		CreatedAt:      group.CreatedAt,
		UpdatedAt:      group.UpdatedAt,
	}
}

// LocationFromModel maps a location row, with its preloaded group when
// present, to its DTO.
func LocationFromModel(location *models.StockLocation) *LocationDTO {
	if location == nil {
		return nil
	}
	return &LocationDTO{
		ID:        location.ID,
		Name:      location.Name,
		GroupID:   location.GroupID,
		Group:     GroupFromModel(location.Group),
		CreatedAt: location.CreatedAt,
		UpdatedAt: location.UpdatedAt,
	}
}

// GroupPage is one cursor page of stock groups.
type GroupPage struct {
	Items      []GroupDTO `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
	Total      int64      `json:"total"`
}

// LocationPage is one cursor page of stock locations.
type LocationPage struct {
	Items      []LocationDTO `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
	Total      int64         `json:"total"`
}
