package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Reconciler performs the period rollover for deferred cancellations: rows
// flagged cancel_at_period_end whose period has lapsed become cancelled. It
// uses the same conditional write as caller operations, so a row touched
// concurrently is skipped and retried on the next pass.
type Reconciler struct {
	engine *Engine
}

func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{engine: e}
}

// RunOnce finalises every lapsed cancellation and returns how many rows moved.
func (r *Reconciler) RunOnce(ctx context.Context) (n int, err error) {
	e := r.engine
	start := time.Now()
	defer func() {
		if err != nil {
			e.logger(ctx).Error().Err(err).Str("operation", OpRollover).Int("finalized", n).Msg("rollover pass failed")
			e.observe(OpRollover, CodeOperationFailed, start)
			return
		}
		e.observe(OpRollover, "OK", start)
	}()

	now := e.clock()
	flagged := true
	due, err := e.store.List(ctx, Filter{
		Statuses:          []Status{StatusActive, StatusTrialing, StatusPastDue, StatusIncomplete},
		CancelAtPeriodEnd: &flagged,
		PeriodEndBefore:   &now,
	})
	if err != nil {
		return 0, fmt.Errorf("list lapsed subscriptions: %w", err)
	}

	for i := range due {
		cur := &due[i]
		next := cur.Clone()
		next.Status = StatusCancelled
		next.UpdatedAt = now

		if err := e.store.Update(ctx, next, cur.Version); err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
				e.logger(ctx).Debug().Str("subscription_id", cur.ID).Msg("rollover skipped, row changed")
				continue
			}
			return n, fmt.Errorf("finalize %s: %w", cur.ID, err)
		}
		n++
		e.emit(ctx, next)
	}

	if n > 0 {
		e.logger(ctx).Info().Int("finalized", n).Msg("deferred cancellations finalized")
	}
	return n, nil
}

// Run repeats RunOnce every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
