package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

const stockAuditBatchSize = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockAuditRepo interface {
	DriftedProductIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error)
}

type totalRecomputer interface {
	Recompute(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error)
}

type StockAuditJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository stockAuditRepo
	Aggregator totalRecomputer
	BatchSize  int
}

// NewStockAuditJob builds the job that reconciles cached product totals with
// the stock ledger. Drift should never happen because totals are recomputed
// inside every write transaction, but the audit keeps the cache honest after
// manual database surgery or restored backups.
func NewStockAuditJob(params StockAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("allocations repository required")
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("aggregator required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = stockAuditBatchSize
	}
	return &stockAuditJob{
		logg:  params.Logger,
		db:    params.DB,
		repo:  params.Repository,
		agg:   params.Aggregator,
		batch: batch,
	}, nil
}

type stockAuditJob struct {
	logg  *logger.Logger
	db    txRunner
	repo  stockAuditRepo
	agg   totalRecomputer
	batch int
}

func (j *stockAuditJob) Name() string { return "stock-audit" }

func (j *stockAuditJob) Run(ctx context.Context) error {
	start := time.Now()
	var repaired int
	for {
		var batch []uuid.UUID
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			ids, err := j.repo.DriftedProductIDs(ctx, tx, j.batch)
			if err != nil {
				return err
			}
			batch = ids
			for _, id := range ids {
				if _, err := j.agg.Recompute(ctx, tx, id); err != nil {
					return fmt.Errorf("recompute product %s: %w", id, err)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("stock audit: %w", err)
		}
		repaired += len(batch)
		if len(batch) < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"products_repaired": repaired,
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	if repaired > 0 {
		j.logg.Warn(logCtx, "stock totals drifted from the ledger and were repaired")
		return nil
	}
	j.logg.Info(logCtx, "stock audit found no drift")
	return nil
}
