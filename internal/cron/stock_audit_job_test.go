package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

type fakeStockAuditRepo struct {
	batches [][]uuid.UUID
	calls   int
	err     error
}

func (f *fakeStockAuditRepo) DriftedProductIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.calls]
	f.calls++
	return batch, nil
}

type fakeRecomputer struct {
	recomputed []uuid.UUID
	err        error
}

func (f *fakeRecomputer) Recompute(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.recomputed = append(f.recomputed, productID)
	return 0, nil
}

func newStockAuditJob(t *testing.T, repo *fakeStockAuditRepo, agg *fakeRecomputer, batch int) *stockAuditJob {
	t.Helper()
	jobIface, err := NewStockAuditJob(StockAuditJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTxRunner{},
		Repository: repo,
		Aggregator: agg,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewStockAuditJob: %v", err)
	}
	job, ok := jobIface.(*stockAuditJob)
	if !ok {
		t.Fatalf("expected stockAuditJob, got %T", jobIface)
	}
	return job
}

func TestStockAuditJobRecomputesEveryDriftedProduct(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	repo := &fakeStockAuditRepo{batches: [][]uuid.UUID{{first, second}, {third}}}
	agg := &fakeRecomputer{}
	job := newStockAuditJob(t, repo, agg, 2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(agg.recomputed) != 3 {
		t.Fatalf("expected 3 recomputes, got %d", len(agg.recomputed))
	}
	if agg.recomputed[0] != first || agg.recomputed[1] != second || agg.recomputed[2] != third {
		t.Fatal("recompute order mismatch")
	}
}

func TestStockAuditJobNoDrift(t *testing.T) {
	repo := &fakeStockAuditRepo{}
	agg := &fakeRecomputer{}
	job := newStockAuditJob(t, repo, agg, 10)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(agg.recomputed) != 0 {
		t.Fatalf("expected no recomputes, got %d", len(agg.recomputed))
	}
}

func TestStockAuditJobPropagatesErrors(t *testing.T) {
	repo := &fakeStockAuditRepo{err: errors.New("boom")}
	job := newStockAuditJob(t, repo, &fakeRecomputer{}, 10)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	repo = &fakeStockAuditRepo{batches: [][]uuid.UUID{{uuid.New()}}}
	job = newStockAuditJob(t, repo, &fakeRecomputer{err: errors.New("boom")}, 10)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
