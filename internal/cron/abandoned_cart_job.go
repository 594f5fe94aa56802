package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

const defaultAbandonBatch = 500

type cartAbandoner interface {
	AbandonExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type AbandonedCartJobParams struct {
	Logger    *logger.Logger
	Carts     cartAbandoner
	BatchSize int
	// MaxBatches bounds one run; leftovers wait for the next cycle.
	MaxBatches int
}

func NewAbandonedCartJob(params AbandonedCartJobParams) (*AbandonedCartJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAbandonBatch
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = 20
	}
	return &AbandonedCartJob{
		logg:       params.Logger,
		carts:      params.Carts,
		batch:      batch,
		maxBatches: maxBatches,
		now:        time.Now,
	}, nil
}

// AbandonedCartJob moves active carts past their expiry to abandoned.
type AbandonedCartJob struct {
	logg       *logger.Logger
	carts      cartAbandoner
	batch      int
	maxBatches int
	now        func() time.Time
}

func (j *AbandonedCartJob) Name() string { return "abandoned-cart-sweep" }

func (j *AbandonedCartJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	total := 0
	for i := 0; i < j.maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.carts.AbandonExpired(ctx, now, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("abandon expired carts after %d: %w", total, err)
		}
		if n < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"carts_abandoned": total,
		"cutoff":          now,
	})
	j.logg.Info(logCtx, "abandoned cart sweep complete")
	return nil
}
