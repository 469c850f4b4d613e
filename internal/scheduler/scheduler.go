// Package scheduler implements the recurring-job machinery behind automated
// triggers. There is no long-lived timer process: each job is a
// self-perpetuating chain of delayed SQS tick messages, anchored by a
// registration row in Postgres. Scheduling sends the first delayed tick and
// then records the registration; the executor that consumes a tick validates
// the registration, runs the criteria check with retries, and arms the next
// tick in the chain.
//
// Cancellation only flips the registration's status. The in-flight tick
// message cannot be recalled, so the executor drops any tick whose
// registration is cancelled or missing, which is what makes Cancel safe and
// idempotent.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"floodline/internal/config"
	"floodline/internal/db"
	"floodline/internal/types"
)

// TickSender sends a delayed tick message on the tick queue. Satisfied by
// queue.TickProducer.
type TickSender interface {
	SendTick(ctx context.Context, msg types.TickMessage, delay time.Duration) error
}

// JobStore is the registration persistence the scheduler needs. Satisfied by
// db.RecurringJobRepository.
type JobStore interface {
	Register(ctx context.Context, reg *db.JobRegistration) error
	Get(ctx context.Context, repeatKey string) (*db.JobRegistration, error)
	Cancel(ctx context.Context, repeatKey string) error
	Advance(ctx context.Context, repeatKey string, nextDueAt time.Time) error
}

// Scheduler creates and cancels recurring jobs.
type Scheduler struct {
	sender TickSender
	jobs   JobStore
	clock  clockwork.Clock
	logger *slog.Logger
}

// SchedulerDeps holds the dependencies for constructing a Scheduler.
type SchedulerDeps struct {
	Sender TickSender
	Jobs   JobStore
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// NewScheduler creates a Scheduler. A nil clock defaults to the real clock.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sender: deps.Sender,
		jobs:   deps.Jobs,
		clock:  clock,
		logger: logger,
	}
}

// Schedule registers a recurring job polling the statement's feed for the
// trigger identified by jobID, and arms its first tick. It returns the repeat
// key that identifies the job from then on.
//
// Ordering matters: the first tick is sent before the registration row is
// written. If the queue is unreachable the error propagates and nothing is
// persisted, so the caller must not create the trigger either. If the
// registration write fails after the tick was sent, the orphaned tick finds
// no registration on arrival and is dropped.
func (s *Scheduler) Schedule(ctx context.Context, jobID string, stmt types.TriggerStatement) (string, error) {
	if !stmt.DataSource.IsAutomated() {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("cannot schedule a recurring job for data source %q", stmt.DataSource), nil)
	}
	interval := stmt.RepeatEvery
	if interval <= 0 {
		return "", types.NewAppError(types.ErrCodeValidationInvalidInterval,
			"recurring job interval must be positive", nil)
	}

	repeatKey := fmt.Sprintf("%s_%s_%s", stmt.DataSource, stmt.Location, uuid.New().String())
	nextDueAt := s.clock.Now().UTC().Add(interval)

	msg := types.TickMessage{
		RepeatKey:  repeatKey,
		JobID:      jobID,
		DataSource: stmt.DataSource,
		Location:   stmt.Location,
		Statement:  stmt,
		IntervalMS: interval.Milliseconds(),
		TraceID:    types.GetRequestID(ctx),
	}

	if err := s.sender.SendTick(ctx, msg, interval); err != nil {
		return "", err
	}

	reg := &db.JobRegistration{
		RepeatKey:  repeatKey,
		JobID:      jobID,
		IntervalMS: interval.Milliseconds(),
		Status:     types.JobScheduled,
		NextDueAt:  nextDueAt,
	}
	if err := s.jobs.Register(ctx, reg); err != nil {
		// The already-sent tick will find no registration and drop itself.
		return "", err
	}

	s.logger.InfoContext(ctx, "recurring job scheduled",
		"repeat_key", repeatKey,
		"job_id", jobID,
		"data_source", string(stmt.DataSource),
		"location", stmt.Location,
		"interval_ms", interval.Milliseconds(),
	)

	return repeatKey, nil
}

// Cancel stops a recurring job. Cancelling an unknown or already-cancelled
// key is a no-op; any tick still in flight is dropped on receipt.
func (s *Scheduler) Cancel(ctx context.Context, repeatKey string) error {
	if err := s.jobs.Cancel(ctx, repeatKey); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "recurring job cancelled", "repeat_key", repeatKey)
	return nil
}

// backoffDelay computes the exponential backoff before retry attempt n
// (1-based): base * 2^(n-1).
func backoffDelay(cfg config.SchedulerConfig, attempt int) time.Duration {
	return cfg.BackoffBase * time.Duration(1<<(attempt-1))
}
