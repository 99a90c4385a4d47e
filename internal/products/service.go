package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// allocationPurger removes the stock rows of a product inside the caller's
// transaction, queuing sync events for synchronizable locations, so a product
// delete never leaves orphan allocations or silent external mirrors behind.
type allocationPurger interface {
	PurgeByProductTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
}

// Service exposes product operations.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	GetTotalStock(ctx context.Context, id uuid.UUID) (int, error)
	List(ctx context.Context, cursor string, limit int) (*ProductPage, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo        Repository
	tx          txRunner
	allocations allocationPurger
}

// NewService builds a product service with the provided dependencies.
func NewService(repo Repository, tx txRunner, allocations allocationPurger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if allocations == nil {
		return nil, fmt.Errorf("allocation purger required")
	}
	return &service{repo: repo, tx: tx, allocations: allocations}, nil
}

// CreateProductInput captures the fields needed to register a product.
type CreateProductInput struct {
	SKU  string
	Name string
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	product := &models.Product{SKU: sku, Name: name}
	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "ux_products_sku") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return FromModel(product), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return FromModel(product), nil
}

func (s *service) GetTotalStock(ctx context.Context, id uuid.UUID) (int, error) {
	if id == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	total, err := s.repo.GetTotalStock(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product total")
	}
	return total, nil
}

func (s *service) List(ctx context.Context, cursor string, limit int) (*ProductPage, error) {
	rows, nextCursor, total, err := s.repo.List(ctx, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &ProductPage{Items: items, NextCursor: nextCursor, Total: total}, nil
}

// Delete removes the product and its stock rows in one transaction. Stock
// held in synchronizable locations queues a sync event before the product
// row goes. Deleting an absent product succeeds.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.allocations.PurgeByProductTx(ctx, tx, id); err != nil {
			return err
		}
		if _, err := s.repo.WithTx(tx).Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
		}
		return nil
	})
	return err
}
