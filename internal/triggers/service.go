package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"floodline/internal/types"
)

// TriggerStore is the trigger persistence the service needs. Satisfied by
// db.TriggerRepository.
type TriggerStore interface {
	Create(ctx context.Context, t *types.Trigger) error
	GetByRepeatKey(ctx context.Context, repeatKey string) (*types.Trigger, error)
	GetByUUID(ctx context.Context, uuid string) (*types.Trigger, error)
	List(ctx context.Context, params types.PageParams) ([]*types.Trigger, types.PageInfo, error)
	SoftDelete(ctx context.Context, repeatKey string) error
	CountDefiningKind(ctx context.Context, source types.DataSource, location string, kind types.ThresholdKind) (int, error)
}

// PhaseStore is the phase lookup the service needs. Satisfied by
// db.PhaseRepository.
type PhaseStore interface {
	GetByID(ctx context.Context, uuid string) (*types.Phase, error)
}

// ActivationStore runs the transactional fire: trigger flip and phase counter
// increment together. Satisfied by db.Activator.
type ActivationStore interface {
	Activate(ctx context.Context, t *types.Trigger, notes string, docs types.DocumentList) error
}

// JobScheduler manages the recurring polling jobs behind automated triggers.
// Satisfied by scheduler.Scheduler.
type JobScheduler interface {
	Schedule(ctx context.Context, jobID string, stmt types.TriggerStatement) (string, error)
	Cancel(ctx context.Context, repeatKey string) error
}

// Dispatcher enqueues the one-shot downstream message after a trigger fires.
// Satisfied by queue.DispatchProducer.
type Dispatcher interface {
	SendTriggerReached(ctx context.Context, msg types.TriggerReachedMessage) error
}

// Service orchestrates the trigger lifecycle: creation with scheduling,
// removal with job cancellation, and both activation paths (manual field
// report and automated danger threshold).
type Service struct {
	triggers   TriggerStore
	phases     PhaseStore
	activation ActivationStore
	scheduler  JobScheduler
	dispatch   Dispatcher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// ServiceDeps holds the dependencies for constructing a Service.
type ServiceDeps struct {
	Triggers   TriggerStore
	Phases     PhaseStore
	Activation ActivationStore
	Scheduler  JobScheduler
	Dispatch   Dispatcher
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// NewService creates a trigger Service. A nil clock defaults to the real
// clock.
func NewService(deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		triggers:   deps.Triggers,
		phases:     deps.Phases,
		activation: deps.Activation,
		scheduler:  deps.Scheduler,
		dispatch:   deps.Dispatch,
		clock:      clock,
		logger:     logger,
	}
}

// Create validates a statement, schedules its recurring job when the source
// is automated, and persists the trigger.
//
// The per-(data_source, location) exclusivity rules are checked before any
// scheduler call so that a rejected statement never leaves a job behind. For
// MANUAL sources no job exists; the repeat key is a freshly generated
// identifier that only serves as the trigger's stable handle.
func (s *Service) Create(ctx context.Context, stmt types.TriggerStatement, notes string) (*types.Trigger, error) {
	if !stmt.DataSource.IsValid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidSource,
			fmt.Sprintf("unknown data source %q", stmt.DataSource), nil,
			map[string]any{"known_sources": types.KnownDataSources})
	}
	if _, err := s.phases.GetByID(ctx, stmt.PhaseID); err != nil {
		return nil, err
	}
	if stmt.DataSource.IsAutomated() && stmt.RepeatEvery <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInterval,
			"automated sources require a positive repeat interval", nil)
	}

	if err := s.checkExclusivity(ctx, stmt); err != nil {
		return nil, err
	}

	triggerUUID := uuid.New().String()

	var repeatKey string
	if stmt.DataSource.IsAutomated() {
		key, err := s.scheduler.Schedule(ctx, triggerUUID, stmt)
		if err != nil {
			return nil, err
		}
		repeatKey = key
	} else {
		repeatKey = fmt.Sprintf("%s_%s_%s", stmt.DataSource, stmt.Location, uuid.New().String())
	}

	t := &types.Trigger{
		UUID:        triggerUUID,
		RepeatKey:   repeatKey,
		DataSource:  stmt.DataSource,
		Location:    stmt.Location,
		Statement:   stmt,
		PhaseID:     stmt.PhaseID,
		IsMandatory: stmt.IsMandatory,
		Notes:       notes,
	}
	if err := s.triggers.Create(ctx, t); err != nil {
		// Compensate: the job was scheduled but the trigger row never
		// landed, so the chain must not keep polling for it.
		if stmt.DataSource.IsAutomated() {
			if cancelErr := s.scheduler.Cancel(ctx, repeatKey); cancelErr != nil {
				s.logger.ErrorContext(ctx, "failed to cancel orphaned job after create failure",
					"repeat_key", repeatKey, "error", cancelErr)
			}
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "trigger created",
		"trigger_uuid", t.UUID,
		"repeat_key", t.RepeatKey,
		"data_source", string(t.DataSource),
		"location", t.Location,
		"phase_id", t.PhaseID,
		"is_mandatory", t.IsMandatory,
	)
	return t, nil
}

// checkExclusivity enforces the at-most-one rule: for each phase-advance
// threshold kind the statement defines, no other active trigger for the same
// (data_source, location) may already define it.
func (s *Service) checkExclusivity(ctx context.Context, stmt types.TriggerStatement) error {
	kinds := []struct {
		kind types.ThresholdKind
		code types.ErrorCode
	}{
		{types.ThresholdReadiness, types.ErrCodeValidationDuplicateReadiness},
		{types.ThresholdActivation, types.ErrCodeValidationDuplicateActivation},
	}
	for _, k := range kinds {
		if !stmt.DefinesKind(k.kind) {
			continue
		}
		count, err := s.triggers.CountDefiningKind(ctx, stmt.DataSource, stmt.Location, k.kind)
		if err != nil {
			return err
		}
		if count > 0 {
			return types.NewAppErrorWithDetails(k.code,
				fmt.Sprintf("an active trigger already defines the %s level for this data source and location", k.kind),
				nil,
				map[string]any{
					"data_source": stmt.DataSource,
					"location":    stmt.Location,
				})
		}
	}
	return nil
}

// Remove soft-deletes the trigger behind a repeat key. For automated sources
// the recurring job is cancelled first: if cancellation fails the trigger
// stays active, never the reverse, so no deleted trigger keeps polling.
func (s *Service) Remove(ctx context.Context, repeatKey string) error {
	t, err := s.triggers.GetByRepeatKey(ctx, repeatKey)
	if err != nil {
		return err
	}

	if t.DataSource.IsAutomated() {
		if err := s.scheduler.Cancel(ctx, repeatKey); err != nil {
			return err
		}
	}
	if err := s.triggers.SoftDelete(ctx, repeatKey); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "trigger removed",
		"trigger_uuid", t.UUID,
		"repeat_key", repeatKey,
		"data_source", string(t.DataSource),
	)
	return nil
}

// Activate fires a MANUAL trigger from a field report. Automated triggers
// are rejected: their only activation path is the danger threshold.
func (s *Service) Activate(ctx context.Context, repeatKey string, notes string, docs types.DocumentList) (*types.Trigger, error) {
	t, err := s.triggers.GetByRepeatKey(ctx, repeatKey)
	if err != nil {
		return nil, err
	}
	if t.DataSource != types.SourceManual {
		return nil, types.NewAppError(types.ErrCodeValidationManualOnly,
			"only MANUAL triggers can be activated by hand", nil)
	}
	if t.IsTriggered {
		return nil, types.NewAppError(types.ErrCodeValidationAlreadyTriggered,
			"trigger has already been activated", nil)
	}

	if err := s.fire(ctx, t, notes, docs); err != nil {
		return nil, err
	}
	return t, nil
}

// ActivateFromThreshold fires an automated trigger after its criteria check
// classified a reading as DANGER. Called by the tick executor.
func (s *Service) ActivateFromThreshold(ctx context.Context, triggerUUID string, reading types.Reading) error {
	t, err := s.triggers.GetByUUID(ctx, triggerUUID)
	if err != nil {
		return err
	}
	if t.IsTriggered {
		return types.NewAppError(types.ErrCodeValidationAlreadyTriggered,
			"trigger has already been activated", nil)
	}

	notes := fmt.Sprintf("automated activation: %s level %.2f at %s",
		t.DataSource, reading.Value, reading.ObservedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	return s.fire(ctx, t, notes, nil)
}

// fire runs the transactional activation and, after commit, enqueues the
// downstream dispatch. A failed enqueue is logged, not returned: the state
// change is already durable and the dispatch queue has its own redrive.
func (s *Service) fire(ctx context.Context, t *types.Trigger, notes string, docs types.DocumentList) error {
	if err := s.activation.Activate(ctx, t, notes, docs); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	t.IsTriggered = true
	t.TriggeredAt = &now
	if notes != "" {
		t.Notes = notes
	}
	if docs != nil {
		t.Documents = docs
	}

	s.logger.InfoContext(ctx, "trigger fired",
		"trigger_uuid", t.UUID,
		"repeat_key", t.RepeatKey,
		"data_source", string(t.DataSource),
		"phase_id", t.PhaseID,
		"is_mandatory", t.IsMandatory,
	)

	msg := types.TriggerReachedMessage{
		Trigger:     *t,
		PhaseID:     t.PhaseID,
		IsMandatory: t.IsMandatory,
		ReachedAt:   now,
		TraceID:     types.GetRequestID(ctx),
	}
	if err := s.dispatch.SendTriggerReached(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch trigger.reached",
			"trigger_uuid", t.UUID, "error", err)
	}
	return nil
}

// Get returns the trigger behind a repeat key.
func (s *Service) Get(ctx context.Context, repeatKey string) (*types.Trigger, error) {
	return s.triggers.GetByRepeatKey(ctx, repeatKey)
}

// List returns a page of triggers with pagination metadata.
func (s *Service) List(ctx context.Context, params types.PageParams) ([]*types.Trigger, types.PageInfo, error) {
	return s.triggers.List(ctx, params)
}
