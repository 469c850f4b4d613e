package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"floodline/internal/config"
	"floodline/internal/observability"
	"floodline/internal/sources"
	"floodline/internal/types"
)

// dueSlack tolerates small early arrivals caused by SQS delay granularity.
// A tick arriving within this window of its due time runs; anything earlier
// is re-armed against the registration's due time.
const dueSlack = 5 * time.Second

// HistoryStore records tick start/finish pairs. Satisfied by
// db.JobHistoryRepository.
type HistoryStore interface {
	Start(ctx context.Context, repeatKey string, source types.DataSource) (int64, error)
	Finish(ctx context.Context, id int64, outcome types.TickOutcome, tickErr error) error
}

// AdapterResolver resolves the feed adapter for a data source. Satisfied by
// sources.Registry.
type AdapterResolver interface {
	Resolve(source types.DataSource) (sources.Adapter, error)
}

// ThresholdActivator fires a trigger when its criteria check classifies a
// reading as DANGER. Satisfied by triggers.Service.
type ThresholdActivator interface {
	ActivateFromThreshold(ctx context.Context, triggerUUID string, reading types.Reading) error
}

// Executor consumes tick messages and runs one criteria check per tick,
// then arms the next tick in the chain.
type Executor struct {
	cfg       config.SchedulerConfig
	jobs      JobStore
	history   HistoryStore
	adapters  AdapterResolver
	activator ThresholdActivator
	sender    TickSender
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
}

// ExecutorDeps holds the dependencies for constructing an Executor.
type ExecutorDeps struct {
	Config    config.SchedulerConfig
	Jobs      JobStore
	History   HistoryStore
	Adapters  AdapterResolver
	Activator ThresholdActivator
	Sender    TickSender
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// NewExecutor creates an Executor. A nil clock defaults to the real clock.
func NewExecutor(deps ExecutorDeps) *Executor {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:       deps.Config,
		jobs:      deps.Jobs,
		history:   deps.History,
		adapters:  deps.Adapters,
		activator: deps.Activator,
		sender:    deps.Sender,
		metrics:   deps.Metrics,
		clock:     clock,
		logger:    logger,
	}
}

// HandleTick processes one tick message end to end. A nil return means the
// message should be deleted from the queue; errors are returned only for
// infrastructure faults where SQS redelivery is the right recovery.
func (e *Executor) HandleTick(ctx context.Context, msg types.TickMessage) error {
	ctx = types.WithRequestID(ctx, msg.TraceID)
	logger := e.logger.With("repeat_key", msg.RepeatKey, "job_id", msg.JobID, "data_source", string(msg.DataSource))

	reg, err := e.jobs.Get(ctx, msg.RepeatKey)
	if err != nil {
		return err
	}
	if reg == nil || reg.Status == types.JobCancelled {
		// Cancellation cannot recall an in-flight message; dropping it here
		// is the other half of the Cancel contract.
		logger.InfoContext(ctx, "dropping tick for cancelled or unknown job")
		e.observeOutcome(msg.DataSource, types.TickSkipped)
		return nil
	}

	now := e.clock.Now().UTC()
	if remaining := reg.NextDueAt.Sub(now); remaining > dueSlack {
		// Early arrival: the configured interval exceeds the SQS delay cap,
		// so the chain walks toward the due time in capped hops.
		logger.InfoContext(ctx, "tick ahead of due time, re-arming",
			"next_due_at", reg.NextDueAt.Format(time.RFC3339),
			"remaining", remaining.String(),
		)
		e.observeOutcome(msg.DataSource, types.TickSkipped)
		return e.sender.SendTick(ctx, msg, remaining)
	}

	historyID, err := e.history.Start(ctx, msg.RepeatKey, msg.DataSource)
	if err != nil {
		return err
	}

	started := e.clock.Now()
	outcome, tickErr := e.runCheck(ctx, logger, msg)
	e.observeOutcome(msg.DataSource, outcome)
	if e.metrics != nil {
		e.metrics.TickDuration.WithLabelValues(string(msg.DataSource)).
			Observe(e.clock.Since(started).Seconds())
	}

	if err := e.history.Finish(ctx, historyID, outcome, tickErr); err != nil {
		logger.ErrorContext(ctx, "failed to record tick outcome", "error", err)
	}

	return e.armNext(ctx, logger, msg)
}

// runCheck runs the criteria check with the retry policy: up to MaxAttempts
// attempts, exponential backoff from BackoffBase, retrying only transient
// upstream failures. Validation and internal errors fail immediately.
func (e *Executor) runCheck(ctx context.Context, logger *slog.Logger, msg types.TickMessage) (types.TickOutcome, error) {
	adapter, err := e.adapters.Resolve(msg.DataSource)
	if err != nil {
		return types.TickFailedExhausted, err
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		result, err := adapter.CriteriaCheck(ctx, &msg.Statement)
		if err == nil {
			if result == nil {
				return types.TickDataUnavailable, nil
			}
			return e.settleResult(ctx, logger, msg, result)
		}

		lastErr = err
		if e.metrics != nil {
			e.metrics.FeedFetchErrors.WithLabelValues(string(msg.DataSource)).Inc()
		}

		var appErr *types.AppError
		if !errors.As(err, &appErr) || !appErr.Code.IsTransient() {
			logger.ErrorContext(ctx, "criteria check failed permanently", "attempt", attempt, "error", err)
			return types.TickFailedExhausted, err
		}

		logger.WarnContext(ctx, "criteria check attempt failed",
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err,
		)

		if attempt < e.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return types.TickFailedExhausted, ctx.Err()
			case <-e.clock.After(backoffDelay(e.cfg, attempt)):
			}
		}
	}

	logger.ErrorContext(ctx, "criteria check exhausted retries", "error", lastErr)
	return types.TickFailedExhausted, lastErr
}

// settleResult handles a completed criteria check: on DANGER it fires the
// trigger's activation path, which also ends the job's chain.
func (e *Executor) settleResult(ctx context.Context, logger *slog.Logger, msg types.TickMessage, result *sources.CheckResult) (types.TickOutcome, error) {
	if result.Severity != types.SeverityDanger {
		return types.TickSucceeded, nil
	}

	err := e.activator.ActivateFromThreshold(ctx, msg.JobID, result.Reading)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeValidationAlreadyTriggered {
			// Stale chain for a trigger that already fired; cancel below.
			logger.InfoContext(ctx, "trigger already fired, retiring job")
		} else {
			// Activation failed on infrastructure; the next tick retries it
			// as long as the reading stays in the danger band.
			logger.ErrorContext(ctx, "threshold activation failed", "error", err)
			return types.TickSucceeded, err
		}
	} else {
		logger.InfoContext(ctx, "trigger fired on danger threshold",
			"current_level", result.Reading.Value,
			"observed_at", result.Reading.ObservedAt.Format(time.RFC3339),
		)
		if e.metrics != nil {
			e.metrics.TriggersFired.WithLabelValues(string(msg.DataSource)).Inc()
		}
	}

	if cancelErr := e.jobs.Cancel(ctx, msg.RepeatKey); cancelErr != nil {
		logger.ErrorContext(ctx, "failed to retire job after activation", "error", cancelErr)
	}
	return types.TickSucceeded, nil
}

// armNext advances the registration and sends the next tick. A job retired
// during this tick (cancelled after activation) arms nothing.
func (e *Executor) armNext(ctx context.Context, logger *slog.Logger, msg types.TickMessage) error {
	reg, err := e.jobs.Get(ctx, msg.RepeatKey)
	if err != nil {
		return err
	}
	if reg == nil || reg.Status == types.JobCancelled {
		logger.InfoContext(ctx, "job retired, chain ends")
		return nil
	}

	interval := msg.Interval()
	nextDueAt := e.clock.Now().UTC().Add(interval)
	if err := e.jobs.Advance(ctx, msg.RepeatKey, nextDueAt); err != nil {
		return err
	}
	return e.sender.SendTick(ctx, msg, interval)
}

func (e *Executor) observeOutcome(source types.DataSource, outcome types.TickOutcome) {
	if e.metrics == nil {
		return
	}
	e.metrics.TickOutcomes.WithLabelValues(string(source), string(outcome)).Inc()
}
