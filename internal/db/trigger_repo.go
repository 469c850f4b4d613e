package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"floodline/internal/types"
)

// TriggerRepository provides data access for the triggers table.
//
// The readiness_level and activation_level columns are typed, nullable
// projections of the corresponding statement fields, written on insert so
// that the per-(data_source, location) exclusivity rule can be checked with
// an indexed query instead of scanning JSONB blobs.
type TriggerRepository struct {
	db DBTX
}

// NewTriggerRepository creates a new TriggerRepository backed by the given
// database connection (pool or transaction).
func NewTriggerRepository(db DBTX) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TriggerRepository) WithTx(tx pgx.Tx) *TriggerRepository {
	return &TriggerRepository{db: tx}
}

// triggerColumns is the standard column set for trigger queries.
const triggerColumns = `t.uuid, t.repeat_key, t.data_source, t.location,
	t.trigger_statement, t.phase_id, t.is_mandatory, t.is_triggered,
	t.is_deleted, t.trigger_documents, t.notes, t.created_at, t.triggered_at`

// scanTrigger scans a single trigger row. The columns must match the order
// defined in triggerColumns.
func scanTrigger(row pgx.Row) (*types.Trigger, error) {
	var t types.Trigger
	var notes *string
	err := row.Scan(
		&t.UUID,
		&t.RepeatKey,
		&t.DataSource,
		&t.Location,
		&t.Statement,
		&t.PhaseID,
		&t.IsMandatory,
		&t.IsTriggered,
		&t.IsDeleted,
		&t.Documents,
		&notes,
		&t.CreatedAt,
		&t.TriggeredAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		t.Notes = *notes
	}
	return &t, nil
}

// Create inserts a new trigger row. The repeat_key column carries a UNIQUE
// constraint; a violation maps to conflict_repeat_key_exists.
func (r *TriggerRepository) Create(ctx context.Context, t *types.Trigger) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO triggers
		 (uuid, repeat_key, data_source, location, trigger_statement,
		  readiness_level, activation_level,
		  phase_id, is_mandatory, is_triggered, is_deleted, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false, $10, NOW())
		 RETURNING created_at`,
		t.UUID,
		t.RepeatKey,
		string(t.DataSource),
		t.Location,
		t.Statement,
		t.Statement.ReadinessLevel,
		t.Statement.ActivationLevel,
		t.PhaseID,
		t.IsMandatory,
		nilIfEmpty(t.Notes),
	).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictRepeatKey,
				"a trigger with this repeat key already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create trigger", err)
	}
	return nil
}

// GetByRepeatKey returns the active (non-deleted) trigger for a repeat key.
// Returns not_found_trigger when no active row exists.
func (r *TriggerRepository) GetByRepeatKey(ctx context.Context, repeatKey string) (*types.Trigger, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+triggerColumns+`
		 FROM triggers t
		 WHERE t.repeat_key = $1 AND t.is_deleted = false`,
		repeatKey,
	)
	t, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTrigger,
				"no active trigger for repeat key", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load trigger", err)
	}
	return t, nil
}

// GetByUUID returns the active (non-deleted) trigger for a UUID.
// Returns not_found_trigger when no active row exists.
func (r *TriggerRepository) GetByUUID(ctx context.Context, uuid string) (*types.Trigger, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+triggerColumns+`
		 FROM triggers t
		 WHERE t.uuid = $1 AND t.is_deleted = false`,
		uuid,
	)
	t, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTrigger,
				"no active trigger for uuid", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load trigger", err)
	}
	return t, nil
}

// List returns a page of triggers (most recent first), excluding deleted
// rows, together with the total count for pagination metadata.
func (r *TriggerRepository) List(ctx context.Context, params types.PageParams) ([]*types.Trigger, types.PageInfo, error) {
	params = params.Normalize()
	info := types.PageInfo{Page: params.Page, PerPage: params.PerPage}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM triggers WHERE is_deleted = false`,
	).Scan(&info.TotalItems); err != nil {
		return nil, info, types.NewAppError(types.ErrCodeInternalDB, "failed to count triggers", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+triggerColumns+`
		 FROM triggers t
		 WHERE t.is_deleted = false
		 ORDER BY t.created_at DESC
		 LIMIT $1 OFFSET $2`,
		params.PerPage,
		params.Offset(),
	)
	if err != nil {
		return nil, info, types.NewAppError(types.ErrCodeInternalDB, "failed to list triggers", err)
	}
	defer rows.Close()

	var triggers []*types.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, info, types.NewAppError(types.ErrCodeInternalDB, "failed to scan trigger", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, info, types.NewAppError(types.ErrCodeInternalDB, "error iterating triggers", err)
	}

	info.HasMore = params.Offset()+len(triggers) < info.TotalItems
	return triggers, info, nil
}

// MarkTriggered flips is_triggered on a pending trigger and attaches the
// manual-activation evidence. The WHERE clause carries the monotonicity
// guard: a row that is already triggered or deleted matches zero rows, and
// the caller receives validation_already_triggered.
func (r *TriggerRepository) MarkTriggered(ctx context.Context, uuid string, notes string, docs types.DocumentList) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE triggers
		 SET is_triggered = true,
		     triggered_at = NOW(),
		     notes = COALESCE(NULLIF($2, ''), notes),
		     trigger_documents = COALESCE($3, trigger_documents)
		 WHERE uuid = $1 AND is_triggered = false AND is_deleted = false`,
		uuid,
		notes,
		docs,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark trigger as triggered", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeValidationAlreadyTriggered,
			"trigger is already triggered or deleted", nil)
	}
	return nil
}

// SoftDelete marks the trigger removed. Returns not_found_trigger when the
// row is absent or already deleted.
func (r *TriggerRepository) SoftDelete(ctx context.Context, repeatKey string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE triggers SET is_deleted = true
		 WHERE repeat_key = $1 AND is_deleted = false`,
		repeatKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete trigger", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTrigger,
			"no active trigger for repeat key", nil)
	}
	return nil
}

// CountDefiningKind counts active triggers for (data_source, location) whose
// statement defines the given phase-advance threshold kind. The service uses
// this to enforce the at-most-one rule before any scheduler call.
func (r *TriggerRepository) CountDefiningKind(ctx context.Context, source types.DataSource, location string, kind types.ThresholdKind) (int, error) {
	column := "readiness_level"
	if kind == types.ThresholdActivation {
		column = "activation_level"
	}

	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM triggers
		 WHERE data_source = $1 AND location = $2
		   AND is_deleted = false AND `+column+` IS NOT NULL`,
		string(source),
		location,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count statement thresholds", err)
	}
	return count, nil
}

// nilIfEmpty converts an empty string to a SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
