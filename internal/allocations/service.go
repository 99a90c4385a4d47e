package allocations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// Service exposes allocation operations. Every mutation recomputes the
// product total inside the same transaction, so a committed mutation is never
// observable with a stale total.
type Service interface {
	Upsert(ctx context.Context, input UpsertInput) (*AllocationDTO, error)
	Delete(ctx context.Context, productID, locationID uuid.UUID) error
	DeleteAllByLocation(ctx context.Context, locationID uuid.UUID) error
	DeleteAllByProduct(ctx context.Context, productID uuid.UUID) error
	PurgeByProductTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
	Get(ctx context.Context, productID, locationID uuid.UUID) (*AllocationDTO, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]AllocationDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	agg    *Aggregator
	outbox outboxEmitter
}

// NewService builds an allocations service with the required dependencies.
func NewService(repo Repository, tx txRunner, agg *Aggregator, emitter outboxEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("allocations repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if agg == nil {
		return nil, fmt.Errorf("aggregator required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, agg: agg, outbox: emitter}, nil
}

// UpsertInput sets the absolute quantity of one (product, location) pair.
type UpsertInput struct {
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int
	ActorID    uuid.UUID
}

func (s *service) Upsert(ctx context.Context, input UpsertInput) (*AllocationDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	var dto *AllocationDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sync, err := repo.FindLocationSync(ctx, input.LocationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
		}
		ok, err := repo.ProductExists(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}

		if err := repo.Upsert(ctx, input.ProductID, input.LocationID, input.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert stock row")
		}

		total, err := s.agg.Recompute(ctx, tx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute product total")
		}

		if sync.Synchronizable {
			event := stockLevelChangedEvent(input.ProductID, sync, input.Quantity, total, input.ActorID)
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync event")
			}
		}

		row, err := repo.FindByPair(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload stock row")
		}
		dto = FromModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Delete removes the pair's stock row. Deleting an absent pair succeeds and
// leaves the total untouched.
func (s *service) Delete(ctx context.Context, productID, locationID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if locationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		deleted, err := repo.DeleteByPair(ctx, productID, locationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stock row")
		}
		if deleted == 0 {
			return nil
		}

		total, err := s.agg.Recompute(ctx, tx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute product total")
		}

		sync, err := repo.FindLocationSync(ctx, locationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
		}
		if sync.Synchronizable {
			event := stockLevelChangedEvent(productID, sync, 0, total, uuid.Nil)
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync event")
			}
		}
		return nil
	})
}

// DeleteAllByLocation clears every stock row at the location and recomputes
// each product that held stock there. An unknown location is a no-op, the
// same as the other delete paths.
func (s *service) DeleteAllByLocation(ctx context.Context, locationID uuid.UUID) error {
	if locationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sync, err := repo.FindLocationSync(ctx, locationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
		}

		productIDs, err := repo.PurgeByLocation(ctx, locationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge location stock")
		}

		for _, productID := range productIDs {
			total, err := s.agg.Recompute(ctx, tx, productID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute product total")
			}
			if sync.Synchronizable {
				event := stockLevelChangedEvent(productID, sync, 0, total, uuid.Nil)
				if err := s.outbox.Emit(ctx, tx, event); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync event")
				}
			}
		}
		return nil
	})
}

// DeleteAllByProduct clears every stock row of the product and resets its
// total. Sync events are queued per location that sat in a synchronizable
// group.
func (s *service) DeleteAllByProduct(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.PurgeByProductTx(ctx, tx, productID)
	})
}

// PurgeByProductTx is the transaction-scoped form of DeleteAllByProduct. It
// lets product deletion ride the same transaction, so external mirrors still
// hear that the product's stock vanished.
func (s *service) PurgeByProductTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	purged, err := repo.PurgeByProduct(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge product stock")
	}
	if len(purged) == 0 {
		return nil
	}

	total, err := s.agg.Recompute(ctx, tx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute product total")
	}

	for _, row := range purged {
		if !row.Synchronizable {
			continue
		}
		sync := &LocationSync{LocationID: row.LocationID, GroupID: row.GroupID, Synchronizable: true}
		event := stockLevelChangedEvent(productID, sync, 0, total, uuid.Nil)
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync event")
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, productID, locationID uuid.UUID) (*AllocationDTO, error) {
	if productID == uuid.Nil || locationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and location ids required")
	}
	row, err := s.repo.FindByPair(ctx, productID, locationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock row not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock row")
	}
	return FromModel(row), nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID) ([]AllocationDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock rows")
	}
	items := make([]AllocationDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return items, nil
}

func stockLevelChangedEvent(productID uuid.UUID, sync *LocationSync, quantity, total int, actorID uuid.UUID) outbox.DomainEvent {
	groupID := uuid.Nil
	if sync.GroupID != nil {
		groupID = *sync.GroupID
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventStockLevelChanged,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Version:       1,
		Data: outbox.StockLevelChanged{
			ProductID:  productID,
			LocationID: sync.LocationID,
			GroupID:    groupID,
			Quantity:   quantity,
			TotalStock: total,
		},
	}
	if actorID != uuid.Nil {
		event.Actor = &outbox.ActorRef{PrincipalID: actorID}
	}
	return event
}
