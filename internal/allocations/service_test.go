package allocations

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/outbox"
)

func setupAllocationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:allocations_%s?mode=memory&cache=shared", uuid.NewString())
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

func newAllocationsService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), db.NewWithConn(conn), NewAggregator(), emitter)
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, conn *gorm.DB, sku string) models.Product {
	t.Helper()
	product := models.Product{ID: uuid.New(), SKU: sku, Name: "Product " + sku}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

func seedGroup(t *testing.T, conn *gorm.DB, name string, synchronizable bool) models.StockGroup {
	t.Helper()
	group := models.StockGroup{ID: uuid.New(), Name: name, Synchronizable: synchronizable}
	require.NoError(t, conn.Create(&group).Error)
	return group
}

func seedLocation(t *testing.T, conn *gorm.DB, name string, groupID *uuid.UUID) models.StockLocation {
	t.Helper()
	location := models.StockLocation{ID: uuid.New(), Name: name, GroupID: groupID}
	require.NoError(t, conn.Create(&location).Error)
	return location
}

func productTotal(t *testing.T, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", productID).Error)
	return product.TotalStock
}

func outboxEventCount(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", eventType).
		Count(&count).Error)
	return count
}

func TestUpsertCreatesRowAndRecomputesTotal(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-100")
	locationA := seedLocation(t, conn, "shelf-a", nil)
	locationB := seedLocation(t, conn, "shelf-b", nil)

	dto, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationA.ID, Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, dto.Quantity)
	assert.Equal(t, 7, productTotal(t, conn, product.ID))

	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationB.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, productTotal(t, conn, product.ID))
}

func TestUpsertOverwritesQuantity(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-101")
	location := seedLocation(t, conn, "shelf-a", nil)

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: location.ID, Quantity: 7})
	require.NoError(t, err)

	dto, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: location.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, dto.Quantity)
	assert.Equal(t, 3, productTotal(t, conn, product.ID))

	var rows int64
	require.NoError(t, conn.Model(&models.ProductStock{}).
		Where("product_id = ?", product.ID).
		Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestUpsertRejectsNegativeQuantity(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)

	product := seedProduct(t, conn, "SKU-102")
	location := seedLocation(t, conn, "shelf-a", nil)

	_, err := svc.Upsert(context.Background(), UpsertInput{ProductID: product.ID, LocationID: location.ID, Quantity: -1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpsertUnknownReferences(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-103")
	location := seedLocation(t, conn, "shelf-a", nil)

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: uuid.New(), Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Upsert(ctx, UpsertInput{ProductID: uuid.New(), LocationID: location.ID, Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var rows int64
	require.NoError(t, conn.Model(&models.ProductStock{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestUpsertQueuesEventOnlyForSynchronizableGroups(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-104")
	syncGroup := seedGroup(t, conn, "webshop", true)
	quietGroup := seedGroup(t, conn, "workshop", false)
	syncLocation := seedLocation(t, conn, "shelf-sync", &syncGroup.ID)
	quietLocation := seedLocation(t, conn, "shelf-quiet", &quietGroup.ID)
	lonelyLocation := seedLocation(t, conn, "shelf-lonely", nil)

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: quietLocation.ID, Quantity: 4})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: lonelyLocation.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Zero(t, outboxEventCount(t, conn, enums.EventStockLevelChanged))

	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: syncLocation.ID, Quantity: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(1), outboxEventCount(t, conn, enums.EventStockLevelChanged))

	var event models.OutboxEvent
	require.NoError(t, conn.First(&event).Error)
	assert.Equal(t, enums.AggregateProduct, event.AggregateType)
	assert.Equal(t, product.ID, event.AggregateID)
	assert.Contains(t, string(event.Payload), `"totalStock":15`)
}

func TestDeleteRemovesRowAndRecomputes(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-105")
	locationA := seedLocation(t, conn, "shelf-a", nil)
	locationB := seedLocation(t, conn, "shelf-b", nil)

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationA.ID, Quantity: 7})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationB.ID, Quantity: 5})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, product.ID, locationA.ID))
	assert.Equal(t, 5, productTotal(t, conn, product.ID))

	_, err = svc.Get(ctx, product.ID, locationA.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteAbsentPairSucceeds(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-106")
	location := seedLocation(t, conn, "shelf-a", nil)

	require.NoError(t, conn.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("total_stock", 42).Error)

	require.NoError(t, svc.Delete(ctx, product.ID, location.ID))
	// no row was removed, so the cached total must stay untouched
	assert.Equal(t, 42, productTotal(t, conn, product.ID))
	assert.Zero(t, outboxEventCount(t, conn, enums.EventStockLevelChanged))
}

func TestDeleteAllByLocationRecomputesEachProduct(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	group := seedGroup(t, conn, "webshop", true)
	shared := seedLocation(t, conn, "shelf-shared", &group.ID)
	other := seedLocation(t, conn, "shelf-other", nil)
	first := seedProduct(t, conn, "SKU-107")
	second := seedProduct(t, conn, "SKU-108")

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: first.ID, LocationID: shared.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: first.ID, LocationID: other.ID, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: second.ID, LocationID: shared.ID, Quantity: 8})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAllByLocation(ctx, shared.ID))

	assert.Equal(t, 10, productTotal(t, conn, first.ID))
	assert.Zero(t, productTotal(t, conn, second.ID))

	var remaining int64
	require.NoError(t, conn.Model(&models.ProductStock{}).
		Where("location_id = ?", shared.ID).
		Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestDeleteAllByLocationUnknownLocationIsNoOp(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)

	product := seedProduct(t, conn, "SKU-111")
	require.NoError(t, conn.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("total_stock", 42).Error)

	// deletes are idempotent; purging a location that never existed succeeds
	require.NoError(t, svc.DeleteAllByLocation(context.Background(), uuid.New()))
	assert.Equal(t, 42, productTotal(t, conn, product.ID))
	assert.Zero(t, outboxEventCount(t, conn, enums.EventStockLevelChanged))
}

func TestDeleteAllByProductResetsTotal(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	syncGroup := seedGroup(t, conn, "webshop", true)
	syncLocation := seedLocation(t, conn, "shelf-sync", &syncGroup.ID)
	quietLocation := seedLocation(t, conn, "shelf-quiet", nil)
	product := seedProduct(t, conn, "SKU-109")

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: syncLocation.ID, Quantity: 6})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: quietLocation.ID, Quantity: 4})
	require.NoError(t, err)
	before := outboxEventCount(t, conn, enums.EventStockLevelChanged)

	require.NoError(t, svc.DeleteAllByProduct(ctx, product.ID))
	assert.Zero(t, productTotal(t, conn, product.ID))

	// one event for the synchronizable location, none for the quiet one
	assert.Equal(t, before+1, outboxEventCount(t, conn, enums.EventStockLevelChanged))

	// purging again is a no-op
	require.NoError(t, svc.DeleteAllByProduct(ctx, product.ID))
	assert.Equal(t, before+1, outboxEventCount(t, conn, enums.EventStockLevelChanged))
}

func TestConcurrentUpsertsConvergeOnFullSum(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// sqlite cannot interleave writers on a shared cache, so force the pool
	// to one connection; the two upserts still race at the service layer
	sqlDB.SetMaxOpenConns(1)

	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-112")
	locationA := seedLocation(t, conn, "shelf-a", nil)
	locationB := seedLocation(t, conn, "shelf-b", nil)

	inputs := []UpsertInput{
		{ProductID: product.ID, LocationID: locationA.ID, Quantity: 3},
		{ProductID: product.ID, LocationID: locationB.ID, Quantity: 4},
	}
	errs := make(chan error, len(inputs))
	var wg sync.WaitGroup
	for _, input := range inputs {
		wg.Add(1)
		go func(input UpsertInput) {
			defer wg.Done()
			_, err := svc.Upsert(ctx, input)
			errs <- err
		}(input)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// each writer re-read the full sum inside its own transaction, so
	// whichever committed last saw both rows
	assert.Equal(t, 7, productTotal(t, conn, product.ID))
	var rows int64
	require.NoError(t, conn.Model(&models.ProductStock{}).
		Where("product_id = ?", product.ID).
		Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestListByProduct(t *testing.T) {
	conn := setupAllocationsTestDB(t)
	svc := newAllocationsService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, "SKU-110")
	locationA := seedLocation(t, conn, "shelf-a", nil)
	locationB := seedLocation(t, conn, "shelf-b", nil)

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationA.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, UpsertInput{ProductID: product.ID, LocationID: locationB.ID, Quantity: 2})
	require.NoError(t, err)

	items, err := svc.ListByProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
