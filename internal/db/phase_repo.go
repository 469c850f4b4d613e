package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"floodline/internal/types"
)

// PhaseRepository provides data access for the phases table.
//
// The two received-trigger counters are incremented with a single atomic
// "SET col = col + 1" statement, never read-modify-write in Go, so that
// concurrent activations of different triggers belonging to the same phase
// compose safely. Counters only ever increase.
type PhaseRepository struct {
	db DBTX
}

// NewPhaseRepository creates a new PhaseRepository backed by the given
// database connection (pool or transaction).
func NewPhaseRepository(db DBTX) *PhaseRepository {
	return &PhaseRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PhaseRepository) WithTx(tx pgx.Tx) *PhaseRepository {
	return &PhaseRepository{db: tx}
}

const phaseColumns = `uuid, name, received_mandatory_triggers,
	received_optional_triggers, can_trigger_payout, can_revert`

func scanPhase(row pgx.Row) (*types.Phase, error) {
	var p types.Phase
	err := row.Scan(
		&p.UUID,
		&p.Name,
		&p.ReceivedMandatoryTriggers,
		&p.ReceivedOptionalTriggers,
		&p.CanTriggerPayout,
		&p.CanRevert,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns the phase with the given UUID.
func (r *PhaseRepository) GetByID(ctx context.Context, uuid string) (*types.Phase, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+phaseColumns+` FROM phases WHERE uuid = $1`,
		uuid,
	)
	p, err := scanPhase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPhase, "phase not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load phase", err)
	}
	return p, nil
}

// List returns all phases in plan order (preparedness, readiness, activation).
func (r *PhaseRepository) List(ctx context.Context) ([]*types.Phase, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+phaseColumns+` FROM phases
		 ORDER BY array_position(ARRAY['PREPAREDNESS','READINESS','ACTIVATION'], name)`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list phases", err)
	}
	defer rows.Close()

	var phases []*types.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan phase", err)
		}
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating phases", err)
	}
	return phases, nil
}

// IncrementReceived increments exactly one of the phase's two counters:
// received_mandatory_triggers when mandatory is true, otherwise
// received_optional_triggers. Returns not_found_phase when the UUID does
// not resolve.
func (r *PhaseRepository) IncrementReceived(ctx context.Context, uuid string, mandatory bool) error {
	column := "received_optional_triggers"
	if mandatory {
		column = "received_mandatory_triggers"
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE phases SET `+column+` = `+column+` + 1 WHERE uuid = $1`,
		uuid,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment phase counter", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPhase, "phase not found", nil)
	}
	return nil
}
