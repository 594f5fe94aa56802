// Package effects runs side effects that follow an already committed write.
// An effect failing never undoes the write; it is logged and counted.
package effects

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/metrics"
)

// Effect names used by order completion.
const (
	CartConvert           = "cart.convert"
	NotificationConfirmed = "notification.order_confirmed"
	InvalidateOrderLists  = "cache.invalidate_order_lists"
	EventOrderCompleted   = "events.order_completed"
	CouponRecordUsage     = "coupon.record_usage"
)

// Effect is one named post-commit step.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

type failureCounter interface {
	IncFailure(effect string)
}

type Dispatcher struct {
	logg    *logger.Logger
	metrics failureCounter
}

func NewDispatcher(logg *logger.Logger, m *metrics.EffectMetrics) *Dispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	d := &Dispatcher{logg: logg}
	if m != nil {
		d.metrics = m
	}
	return d
}

// Dispatch runs effects in order. Each runs even when an earlier one failed.
// The combined error is informational; callers must not roll anything back
// because of it.
func (d *Dispatcher) Dispatch(ctx context.Context, effects ...Effect) error {
	var errs error
	for _, effect := range effects {
		if effect.Run == nil {
			continue
		}
		if err := d.run(ctx, effect); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", effect.Name, err))
		}
	}
	return errs
}

func (d *Dispatcher) run(ctx context.Context, effect Effect) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			logCtx := d.logg.WithField(ctx, "effect", effect.Name)
			d.logg.Error(logCtx, "post-commit effect failed", err)
			if d.metrics != nil {
				d.metrics.IncFailure(effect.Name)
			}
		}
	}()
	return effect.Run(ctx)
}
