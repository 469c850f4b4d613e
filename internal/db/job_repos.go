package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"floodline/internal/types"
)

// ============================================================
// RecurringJobRepository
// ============================================================

// JobRegistration is a row in the recurring_jobs table. The scheduler is the
// sole mutator of job state; the trigger store only ever holds the repeat
// key it was handed back.
type JobRegistration struct {
	RepeatKey  string          `db:"repeat_key"`
	JobID      string          `db:"job_id"`
	IntervalMS int64           `db:"interval_ms"`
	Status     types.JobStatus `db:"status"`
	NextDueAt  time.Time       `db:"next_due_at"`
	CreatedAt  time.Time       `db:"created_at"`
}

// RecurringJobRepository provides data access for the recurring_jobs table,
// the scheduler's registration record. A registration exists for every live
// recurring job; the in-flight SQS tick message checks it on receipt so that
// cancellation takes effect even while a tick is queued.
type RecurringJobRepository struct {
	db DBTX
}

// NewRecurringJobRepository creates a new RecurringJobRepository backed by
// the given database connection (pool or transaction).
func NewRecurringJobRepository(db DBTX) *RecurringJobRepository {
	return &RecurringJobRepository{db: db}
}

// Register inserts a registration row for a newly scheduled job.
func (r *RecurringJobRepository) Register(ctx context.Context, reg *JobRegistration) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO recurring_jobs (repeat_key, job_id, interval_ms, status, next_due_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		reg.RepeatKey,
		reg.JobID,
		reg.IntervalMS,
		string(types.JobScheduled),
		reg.NextDueAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictRepeatKey,
				"a recurring job with this repeat key already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to register recurring job", err)
	}
	return nil
}

// Get returns the registration for a repeat key, or (nil, nil) when none
// exists. Cancelled registrations are returned with their status so the
// executor can distinguish "cancelled" from "never existed"; both mean the
// tick should be dropped.
func (r *RecurringJobRepository) Get(ctx context.Context, repeatKey string) (*JobRegistration, error) {
	var reg JobRegistration
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT repeat_key, job_id, interval_ms, status, next_due_at, created_at
		 FROM recurring_jobs WHERE repeat_key = $1`,
		repeatKey,
	).Scan(&reg.RepeatKey, &reg.JobID, &reg.IntervalMS, &status, &reg.NextDueAt, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load job registration", err)
	}
	reg.Status = types.JobStatus(status)
	return &reg, nil
}

// Cancel marks the registration cancelled. Cancelling a key that does not
// exist is a no-op, not an error, so that deletion of an already-stale
// trigger still succeeds.
func (r *RecurringJobRepository) Cancel(ctx context.Context, repeatKey string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE recurring_jobs SET status = $2 WHERE repeat_key = $1`,
		repeatKey,
		string(types.JobCancelled),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel recurring job", err)
	}
	return nil
}

// Advance moves the registration's due time forward after a completed tick.
// The next tick message is armed against this timestamp.
func (r *RecurringJobRepository) Advance(ctx context.Context, repeatKey string, nextDueAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE recurring_jobs SET next_due_at = $2
		 WHERE repeat_key = $1 AND status = $3`,
		repeatKey,
		nextDueAt,
		string(types.JobScheduled),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to advance recurring job", err)
	}
	return nil
}

// ============================================================
// JobHistoryRepository
// ============================================================

// JobHistoryRepository provides data access for the job_history table. Each
// tick records a start/finish pair for operational visibility; polling
// failures never reach end users, so this table is how exhausted retries are
// monitored.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a new job_history row with status 'running' and returns the
// auto-generated BIGSERIAL ID. The caller uses this ID to later call Finish
// with the outcome.
func (r *JobHistoryRepository) Start(ctx context.Context, repeatKey string, source types.DataSource) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (repeat_key, data_source, started_at, status)
		 VALUES ($1, $2, NOW(), 'running')
		 RETURNING id`,
		repeatKey,
		string(source),
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish updates the job_history row with the tick outcome and optional
// error message.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, outcome types.TickOutcome, tickErr error) error {
	var errMsg *string
	if tickErr != nil {
		s := tickErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, error = $3
		 WHERE id = $1`,
		id,
		string(outcome),
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
