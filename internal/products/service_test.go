package products

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/internal/allocations"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/outbox"
)

func setupProductsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:products_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  total_stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE stock_groups (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  synchronizable INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE stock_locations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  group_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE product_stocks (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (product_id, location_id)
);`,
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	} {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newProductsService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	allocationsService, err := allocations.NewService(allocations.NewRepository(conn), db.NewWithConn(conn), allocations.NewAggregator(), emitter)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), db.NewWithConn(conn), allocationsService)
	require.NoError(t, err)
	return svc
}

func TestCreateProduct(t *testing.T) {
	conn := setupProductsTestDB(t)
	svc := newProductsService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{SKU: "  SKU-1  ", Name: " Widget "})
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", created.SKU)
	assert.Equal(t, "Widget", created.Name)
	assert.Zero(t, created.TotalStock)

	_, err = svc.Create(ctx, CreateProductInput{SKU: "SKU-1", Name: "Other"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Create(ctx, CreateProductInput{SKU: "", Name: "Widget"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetTotalStockReadsCachedTotal(t *testing.T) {
	conn := setupProductsTestDB(t)
	svc := newProductsService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{SKU: "SKU-2", Name: "Widget"})
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.Product{}).
		Where("id = ?", created.ID).
		Update("total_stock", 17).Error)

	total, err := svc.GetTotalStock(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, total)

	_, err = svc.GetTotalStock(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteProductPurgesStockRows(t *testing.T) {
	conn := setupProductsTestDB(t)
	svc := newProductsService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{SKU: "SKU-3", Name: "Widget"})
	require.NoError(t, err)

	location := models.StockLocation{ID: uuid.New(), Name: "shelf-a"}
	require.NoError(t, conn.Create(&location).Error)
	stock := models.ProductStock{ID: uuid.New(), ProductID: created.ID, LocationID: location.ID, Quantity: 5}
	require.NoError(t, conn.Create(&stock).Error)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var rows int64
	require.NoError(t, conn.Model(&models.ProductStock{}).
		Where("product_id = ?", created.ID).
		Count(&rows).Error)
	assert.Zero(t, rows)

	// deleting an absent product succeeds
	require.NoError(t, svc.Delete(ctx, created.ID))
}

func TestDeleteProductQueuesSyncEvents(t *testing.T) {
	conn := setupProductsTestDB(t)
	svc := newProductsService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{SKU: "SKU-4", Name: "Widget"})
	require.NoError(t, err)

	group := models.StockGroup{ID: uuid.New(), Name: "webshop", Synchronizable: true}
	require.NoError(t, conn.Create(&group).Error)
	syncLocation := models.StockLocation{ID: uuid.New(), Name: "shelf-sync", GroupID: &group.ID}
	require.NoError(t, conn.Create(&syncLocation).Error)
	quietLocation := models.StockLocation{ID: uuid.New(), Name: "shelf-quiet"}
	require.NoError(t, conn.Create(&quietLocation).Error)

	for _, stock := range []models.ProductStock{
		{ID: uuid.New(), ProductID: created.ID, LocationID: syncLocation.ID, Quantity: 5},
		{ID: uuid.New(), ProductID: created.ID, LocationID: quietLocation.ID, Quantity: 3},
	} {
		require.NoError(t, conn.Create(&stock).Error)
	}

	require.NoError(t, svc.Delete(ctx, created.ID))

	// external mirrors hear the vanish for the synchronizable location only
	var events []models.OutboxEvent
	require.NoError(t, conn.
		Where("event_type = ?", enums.EventStockLevelChanged).
		Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, created.ID, events[0].AggregateID)
	assert.Contains(t, string(events[0].Payload), `"totalStock":0`)
}

func TestListProducts(t *testing.T) {
	conn := setupProductsTestDB(t)
	svc := newProductsService(t, conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateProductInput{SKU: fmt.Sprintf("SKU-LIST-%d", i), Name: "Widget"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Total)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.List(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)
}
