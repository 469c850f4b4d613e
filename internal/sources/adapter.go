// Package sources implements the data source adapters: one per external
// hydrological feed. An adapter fetches raw readings for a statement's
// location over the trailing window, selects the most recent observation,
// persists it through the dedup rule, classifies severity, and emits a
// notification event when the statement opts in.
//
// Adapters are resolved through a capability-keyed registry built at
// startup; a tick for an unregistered source fails fast instead of silently
// doing nothing.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"floodline/internal/triggers"
	"floodline/internal/types"
)

// ReadingStore abstracts the source_data persistence the adapters need.
// Satisfied by db.SourceDataRepository.
type ReadingStore interface {
	// InsertIfNew persists a reading unless the (source, observed_at) pair
	// is already recorded. Returns true when a row was inserted.
	InsertIfNew(ctx context.Context, source types.DataSource, location string, reading types.Reading) (bool, error)
}

// NotificationEmitter sends the fire-and-forget threshold notification event.
// Satisfied by queue.NotificationProducer.
type NotificationEmitter interface {
	Emit(ctx context.Context, msg types.NotificationMessage) error
}

// CheckResult is the outcome of one criteria check against live feed data.
// A nil result with a nil error means the feed returned zero readings for
// the window: a normal, retryable-next-tick condition, not a fault.
type CheckResult struct {
	Reading  types.Reading
	Severity types.Severity
	Stored   bool
	Notified bool
}

// Adapter is the per-feed contract invoked on every recurring job tick.
type Adapter interface {
	// Source returns the data source this adapter serves.
	Source() types.DataSource

	// CriteriaCheck fetches, persists, and classifies the latest reading
	// for the statement's location. Network and parse failures return
	// upstream_* errors and propagate to the scheduler's retry machinery;
	// empty results and still-safe readings are not errors.
	CriteriaCheck(ctx context.Context, stmt *types.TriggerStatement) (*CheckResult, error)
}

// Registry maps data sources to their adapters. It is built once at process
// start; resolution of an unknown source is an internal error, surfaced
// loudly rather than swallowed.
type Registry struct {
	adapters map[types.DataSource]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[types.DataSource]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Registry{adapters: m}
}

// Resolve returns the adapter for a source, or an internal error when no
// adapter was registered for it.
func (r *Registry) Resolve(source types.DataSource) (Adapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnregisteredSource,
			fmt.Sprintf("no adapter registered for data source %q", source),
			nil,
		)
	}
	return a, nil
}

// latestReading selects the most recent reading by observation timestamp.
// The sort is stable and descending, so ties keep the original feed order
// and the first wins.
func latestReading(readings []types.Reading) (types.Reading, bool) {
	if len(readings) == 0 {
		return types.Reading{}, false
	}
	sorted := make([]types.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.After(sorted[j].ObservedAt)
	})
	return sorted[0], true
}

// evaluateReading runs the shared persist-classify-notify tail of a criteria
// check. Both feed adapters funnel through here after their fetch.
func evaluateReading(
	ctx context.Context,
	store ReadingStore,
	emitter NotificationEmitter,
	logger *slog.Logger,
	source types.DataSource,
	stmt *types.TriggerStatement,
	reading types.Reading,
) (*CheckResult, error) {
	stored, err := store.InsertIfNew(ctx, source, stmt.Location, reading)
	if err != nil {
		return nil, err
	}

	severity := triggers.Evaluate(stmt, reading)
	result := &CheckResult{
		Reading:  reading,
		Severity: severity,
		Stored:   stored,
	}

	if severity == types.SeveritySafe {
		return result, nil
	}

	logger.InfoContext(ctx, "threshold crossed",
		"data_source", string(source),
		"location", stmt.Location,
		"severity", string(severity),
		"current_level", reading.Value,
		"observed_at", reading.ObservedAt.Format(time.RFC3339),
	)

	// Notification is a statement-level opt-in via the activity list.
	if !stmt.WantsNotification() {
		return result, nil
	}

	th := triggers.EffectiveThresholds(stmt, reading)
	msg := types.NotificationMessage{
		Message: fmt.Sprintf("%s level at %s reached %.2f (%s)",
			source, stmt.Location, reading.Value, severity),
		Status:       severity,
		Location:     stmt.Location,
		DataSource:   source,
		CurrentLevel: reading.Value,
		ObservedAt:   reading.ObservedAt,
		TraceID:      types.GetRequestID(ctx),
	}
	if th.Warning != nil {
		msg.WarningLevel = *th.Warning
	}
	if th.Danger != nil {
		msg.DangerLevel = *th.Danger
	}

	if err := emitter.Emit(ctx, msg); err != nil {
		// Notification is fire-and-forget; a dropped event must not fail
		// the tick or consume a retry attempt.
		logger.ErrorContext(ctx, "failed to emit threshold notification",
			"data_source", string(source),
			"location", stmt.Location,
			"error", err,
		)
		return result, nil
	}
	result.Notified = true

	return result, nil
}
