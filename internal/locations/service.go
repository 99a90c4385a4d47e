package locations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/internal/allocations"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes stock group and location operations.
type Service interface {
	CreateGroup(ctx context.Context, input CreateGroupInput) (*GroupDTO, error)
	RenameGroup(ctx context.Context, id uuid.UUID, name string) (*GroupDTO, error)
	SetSynchronizable(ctx context.Context, id uuid.UUID, synchronizable bool) (*GroupDTO, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	GetGroup(ctx context.Context, id uuid.UUID) (*GroupDTO, error)
	ListGroups(ctx context.Context, cursor string, limit int) (*GroupPage, error)

	CreateLocation(ctx context.Context, input CreateLocationInput) (*LocationDTO, error)
	RenameLocation(ctx context.Context, id uuid.UUID, name string) (*LocationDTO, error)
	DeleteLocation(ctx context.Context, id uuid.UUID) error
	GetLocation(ctx context.Context, id uuid.UUID) (*LocationDTO, error)
	ListLocations(ctx context.Context, groupID *uuid.UUID, cursor string, limit int) (*LocationPage, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	allocations allocations.Repository
	agg         *allocations.Aggregator
	outbox      outboxEmitter
}

// NewService builds a locations service with the required dependencies.
func NewService(repo Repository, tx txRunner, allocationsRepo allocations.Repository, agg *allocations.Aggregator, emitter outboxEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("locations repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if allocationsRepo == nil {
		return nil, fmt.Errorf("allocations repository required")
	}
	if agg == nil {
		return nil, fmt.Errorf("aggregator required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		allocations: allocationsRepo,
		agg:         agg,
		outbox:      emitter,
	}, nil
}

// CreateGroupInput captures the fields needed to register a stock group.
type CreateGroupInput struct {
	Name           string
	Synchronizable bool
}

// CreateLocationInput captures the fields needed to register a stock
// location. GroupID is optional, a location can live outside any group.
type CreateLocationInput struct {
	Name    string
	GroupID *uuid.UUID
}

func (s *service) CreateGroup(ctx context.Context, input CreateGroupInput) (*GroupDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	group := &models.StockGroup{Name: name, Synchronizable: input.Synchronizable}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		if db.IsUniqueViolation(err, "ux_stock_groups_name") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "group name already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group")
	}
	return GroupFromModel(group), nil
}

func (s *service) RenameGroup(ctx context.Context, id uuid.UUID, name string) (*GroupDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	affected, err := s.repo.UpdateGroupName(ctx, id, name)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_stock_groups_name") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "group name already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rename group")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
	}
	return s.GetGroup(ctx, id)
}

func (s *service) SetSynchronizable(ctx context.Context, id uuid.UUID, synchronizable bool) (*GroupDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	affected, err := s.repo.UpdateGroupSynchronizable(ctx, id, synchronizable)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
	}
	return s.GetGroup(ctx, id)
}

// DeleteGroup removes the group after detaching its locations. Locations and
// their stock rows are untouched, so no totals change. Deleting an absent
// group succeeds.
func (s *service) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.DetachGroupLocations(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach group locations")
		}
		if _, err := repo.DeleteGroup(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete group")
		}
		return nil
	})
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (*GroupDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	group, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return GroupFromModel(group), nil
}

func (s *service) ListGroups(ctx context.Context, cursor string, limit int) (*GroupPage, error) {
	rows, nextCursor, total, err := s.repo.ListGroups(ctx, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}
	items := make([]GroupDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *GroupFromModel(&rows[i]))
	}
	return &GroupPage{Items: items, NextCursor: nextCursor, Total: total}, nil
}

func (s *service) CreateLocation(ctx context.Context, input CreateLocationInput) (*LocationDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	if input.GroupID != nil {
		if _, err := s.repo.FindGroupByID(ctx, *input.GroupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
		}
	}

	location := &models.StockLocation{Name: name, GroupID: input.GroupID}
	if err := s.repo.CreateLocation(ctx, location); err != nil {
		if db.IsUniqueViolation(err, "ux_stock_locations_name") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "location name already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create location")
	}
	return s.GetLocation(ctx, location.ID)
}

func (s *service) RenameLocation(ctx context.Context, id uuid.UUID, name string) (*LocationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	affected, err := s.repo.UpdateLocationName(ctx, id, name)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_stock_locations_name") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "location name already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rename location")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
	}
	return s.GetLocation(ctx, id)
}

// DeleteLocation removes the location together with every stock row held
// there, recomputing each affected product inside the same transaction. When
// the location sat in a synchronizable group a deletion event is queued so
// the sync pipeline can drop its mirror. Deleting an absent location
// succeeds.
func (s *service) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		location, err := repo.FindLocationByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
		}

		allocationsRepo := s.allocations.WithTx(tx)
		productIDs, err := allocationsRepo.PurgeByLocation(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge location stock")
		}
		for _, productID := range productIDs {
			if _, err := s.agg.Recompute(ctx, tx, productID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute product total")
			}
		}

		if _, err := repo.DeleteLocation(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete location")
		}

		if location.Group != nil && location.Group.Synchronizable {
			event := outbox.DomainEvent{
				EventType:     enums.EventStockLocationDeleted,
				AggregateType: enums.AggregateStockLocation,
				AggregateID:   id,
				Version:       1,
				Data: outbox.StockLocationDeleted{
					LocationID: id,
					GroupID:    location.Group.ID,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync event")
			}
		}
		return nil
	})
}

func (s *service) GetLocation(ctx context.Context, id uuid.UUID) (*LocationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	location, err := s.repo.FindLocationByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
	}
	return LocationFromModel(location), nil
}

func (s *service) ListLocations(ctx context.Context, groupID *uuid.UUID, cursor string, limit int) (*LocationPage, error) {
	rows, nextCursor, total, err := s.repo.ListLocations(ctx, groupID, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locations")
	}
	items := make([]LocationDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *LocationFromModel(&rows[i]))
	}
	return &LocationPage{Items: items, NextCursor: nextCursor, Total: total}, nil
}
