package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"floodline/internal/types"
)

// Activator performs the transactional part of firing a trigger: flipping
// is_triggered and incrementing the owning phase's counter commit or roll
// back together. Downstream dispatch happens outside, after commit.
type Activator struct {
	pool *pgxpool.Pool
}

// NewActivator creates an Activator backed by the given pool.
func NewActivator(pool *pgxpool.Pool) *Activator {
	return &Activator{pool: pool}
}

// Activate marks the trigger as fired and increments the phase counter in a
// single transaction. The monotonicity guard lives in MarkTriggered's WHERE
// clause, so a concurrent double-activation loses the race and rolls back
// with validation_already_triggered, leaving the counter untouched.
func (a *Activator) Activate(ctx context.Context, t *types.Trigger, notes string, docs types.DocumentList) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin activation transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := NewTriggerRepository(tx).MarkTriggered(ctx, t.UUID, notes, docs); err != nil {
		return err
	}
	if err := NewPhaseRepository(tx).IncrementReceived(ctx, t.PhaseID, t.IsMandatory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit activation transaction", err)
	}
	return nil
}
