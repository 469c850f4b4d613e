package triggers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodline/internal/types"
)

// --- Hand-rolled mocks ---

type mockTriggerStore struct {
	created    []*types.Trigger
	createErr  error
	byKey      map[string]*types.Trigger
	byUUID     map[string]*types.Trigger
	deleted    []string
	deleteErr  error
	kindCounts map[types.ThresholdKind]int
}

func newMockTriggerStore() *mockTriggerStore {
	return &mockTriggerStore{
		byKey:      map[string]*types.Trigger{},
		byUUID:     map[string]*types.Trigger{},
		kindCounts: map[types.ThresholdKind]int{},
	}
}

func (m *mockTriggerStore) Create(_ context.Context, t *types.Trigger) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, t)
	return nil
}

func (m *mockTriggerStore) GetByRepeatKey(_ context.Context, key string) (*types.Trigger, error) {
	t, ok := m.byKey[key]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundTrigger, "no active trigger for repeat key", nil)
	}
	return t, nil
}

func (m *mockTriggerStore) GetByUUID(_ context.Context, uuid string) (*types.Trigger, error) {
	t, ok := m.byUUID[uuid]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundTrigger, "no active trigger for uuid", nil)
	}
	return t, nil
}

func (m *mockTriggerStore) List(_ context.Context, params types.PageParams) ([]*types.Trigger, types.PageInfo, error) {
	return m.created, types.PageInfo{Page: params.Page, PerPage: params.PerPage, TotalItems: len(m.created)}, nil
}

func (m *mockTriggerStore) SoftDelete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockTriggerStore) CountDefiningKind(_ context.Context, _ types.DataSource, _ string, kind types.ThresholdKind) (int, error) {
	return m.kindCounts[kind], nil
}

type mockPhaseStore struct {
	missing bool
}

func (m *mockPhaseStore) GetByID(_ context.Context, uuid string) (*types.Phase, error) {
	if m.missing {
		return nil, types.NewAppError(types.ErrCodeNotFoundPhase, "phase not found", nil)
	}
	return &types.Phase{UUID: uuid, Name: types.PhaseReadiness}, nil
}

type mockActivation struct {
	calls []string
	err   error
}

func (m *mockActivation) Activate(_ context.Context, t *types.Trigger, _ string, _ types.DocumentList) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, t.UUID)
	return nil
}

type mockScheduler struct {
	scheduled   []string // job IDs
	cancelled   []string
	repeatKey   string
	scheduleErr error
	cancelErr   error
}

func (m *mockScheduler) Schedule(_ context.Context, jobID string, _ types.TriggerStatement) (string, error) {
	if m.scheduleErr != nil {
		return "", m.scheduleErr
	}
	m.scheduled = append(m.scheduled, jobID)
	return m.repeatKey, nil
}

func (m *mockScheduler) Cancel(_ context.Context, repeatKey string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, repeatKey)
	return nil
}

type mockDispatcher struct {
	messages []types.TriggerReachedMessage
	err      error
}

func (m *mockDispatcher) SendTriggerReached(_ context.Context, msg types.TriggerReachedMessage) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

type serviceFixture struct {
	store      *mockTriggerStore
	phases     *mockPhaseStore
	activation *mockActivation
	scheduler  *mockScheduler
	dispatch   *mockDispatcher
	service    *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		store:      newMockTriggerStore(),
		phases:     &mockPhaseStore{},
		activation: &mockActivation{},
		scheduler:  &mockScheduler{repeatKey: "DHM_station-42_key"},
		dispatch:   &mockDispatcher{},
	}
	f.service = NewService(ServiceDeps{
		Triggers:   f.store,
		Phases:     f.phases,
		Activation: f.activation,
		Scheduler:  f.scheduler,
		Dispatch:   f.dispatch,
		Clock:      clockwork.NewFakeClockAt(time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)),
		Logger:     slog.Default(),
	})
	return f
}

func automatedStatement() types.TriggerStatement {
	return types.TriggerStatement{
		DataSource:   types.SourceDHM,
		Location:     "station-42",
		DangerLevel:  fptr(110),
		RepeatEvery:  5 * time.Minute,
		HazardTypeID: "flood",
		PhaseID:      "phase-readiness",
		IsMandatory:  true,
	}
}

func manualStatement() types.TriggerStatement {
	return types.TriggerStatement{
		DataSource:   types.SourceManual,
		Location:     "ward-7",
		HazardTypeID: "flood",
		PhaseID:      "phase-activation",
	}
}

// --- Create ---

func TestCreate_AutomatedSchedulesJob(t *testing.T) {
	f := newServiceFixture()

	created, err := f.service.Create(context.Background(), automatedStatement(), "seasonal monitoring")
	require.NoError(t, err)

	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, created.UUID, f.scheduler.scheduled[0])
	assert.Equal(t, "DHM_station-42_key", created.RepeatKey)
	assert.True(t, created.IsMandatory)
	require.Len(t, f.store.created, 1)
}

func TestCreate_ManualSkipsScheduler(t *testing.T) {
	f := newServiceFixture()

	created, err := f.service.Create(context.Background(), manualStatement(), "")
	require.NoError(t, err)

	assert.Empty(t, f.scheduler.scheduled)
	assert.True(t, strings.HasPrefix(created.RepeatKey, "MANUAL_ward-7_"))
	require.Len(t, f.store.created, 1)
}

func TestCreate_UnknownSourceRejected(t *testing.T) {
	f := newServiceFixture()

	stmt := automatedStatement()
	stmt.DataSource = "SATELLITE"

	_, err := f.service.Create(context.Background(), stmt, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidSource, appErr.Code)
	assert.Empty(t, f.scheduler.scheduled)
	assert.Empty(t, f.store.created)
}

func TestCreate_MissingPhaseRejected(t *testing.T) {
	f := newServiceFixture()
	f.phases.missing = true

	_, err := f.service.Create(context.Background(), automatedStatement(), "")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPhase, appErr.Code)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestCreate_MissingIntervalRejected(t *testing.T) {
	f := newServiceFixture()

	stmt := automatedStatement()
	stmt.RepeatEvery = 0

	_, err := f.service.Create(context.Background(), stmt, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidInterval, appErr.Code)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestCreate_DuplicateActivationLevelRejectedBeforeScheduling(t *testing.T) {
	f := newServiceFixture()
	f.store.kindCounts[types.ThresholdActivation] = 1

	stmt := automatedStatement()
	stmt.ActivationLevel = fptr(115)

	_, err := f.service.Create(context.Background(), stmt, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationDuplicateActivation, appErr.Code)

	// The exclusivity check must run before any job exists.
	assert.Empty(t, f.scheduler.scheduled)
	assert.Empty(t, f.store.created)
}

func TestCreate_DuplicateReadinessLevelRejected(t *testing.T) {
	f := newServiceFixture()
	f.store.kindCounts[types.ThresholdReadiness] = 1

	stmt := automatedStatement()
	stmt.ReadinessLevel = fptr(100)

	_, err := f.service.Create(context.Background(), stmt, "")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationDuplicateReadiness, appErr.Code)
}

func TestCreate_SchedulerFailureCreatesNothing(t *testing.T) {
	f := newServiceFixture()
	f.scheduler.scheduleErr = types.NewAppError(types.ErrCodeUpstreamQueue, "queue unreachable", nil)

	_, err := f.service.Create(context.Background(), automatedStatement(), "")
	require.Error(t, err)
	assert.Empty(t, f.store.created)
}

func TestCreate_PersistFailureCancelsOrphanedJob(t *testing.T) {
	f := newServiceFixture()
	f.store.createErr = types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)

	_, err := f.service.Create(context.Background(), automatedStatement(), "")
	require.Error(t, err)

	require.Len(t, f.scheduler.cancelled, 1)
	assert.Equal(t, "DHM_station-42_key", f.scheduler.cancelled[0])
}

// --- Remove ---

func TestRemove_CancelsJobBeforeDelete(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-1"] = &types.Trigger{UUID: "t-1", RepeatKey: "key-1", DataSource: types.SourceDHM}

	require.NoError(t, f.service.Remove(context.Background(), "key-1"))
	assert.Equal(t, []string{"key-1"}, f.scheduler.cancelled)
	assert.Equal(t, []string{"key-1"}, f.store.deleted)
}

func TestRemove_ManualSkipsScheduler(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-m"] = &types.Trigger{UUID: "t-m", RepeatKey: "key-m", DataSource: types.SourceManual}

	require.NoError(t, f.service.Remove(context.Background(), "key-m"))
	assert.Empty(t, f.scheduler.cancelled)
	assert.Equal(t, []string{"key-m"}, f.store.deleted)
}

func TestRemove_UnknownKeyTouchesNothing(t *testing.T) {
	f := newServiceFixture()

	err := f.service.Remove(context.Background(), "ghost")
	require.Error(t, err)
	assert.Empty(t, f.scheduler.cancelled)
	assert.Empty(t, f.store.deleted)
}

func TestRemove_CancelFailureLeavesTriggerActive(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-1"] = &types.Trigger{UUID: "t-1", RepeatKey: "key-1", DataSource: types.SourceGlofas}
	f.scheduler.cancelErr = errors.New("db down")

	err := f.service.Remove(context.Background(), "key-1")
	require.Error(t, err)
	assert.Empty(t, f.store.deleted)
}

// --- Activate (manual) ---

func TestActivate_ManualTriggerFiresAndDispatches(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-m"] = &types.Trigger{
		UUID:        "t-m",
		RepeatKey:   "key-m",
		DataSource:  types.SourceManual,
		PhaseID:     "phase-activation",
		IsMandatory: true,
	}

	docs := types.DocumentList{{Name: "field report", URL: "https://example.org/report.pdf"}}
	activated, err := f.service.Activate(context.Background(), "key-m", "observed flooding", docs)
	require.NoError(t, err)

	assert.True(t, activated.IsTriggered)
	require.NotNil(t, activated.TriggeredAt)
	assert.Equal(t, []string{"t-m"}, f.activation.calls)

	require.Len(t, f.dispatch.messages, 1)
	msg := f.dispatch.messages[0]
	assert.Equal(t, "phase-activation", msg.PhaseID)
	assert.True(t, msg.IsMandatory)
	assert.Equal(t, "t-m", msg.Trigger.UUID)
}

func TestActivate_AutomatedTriggerRejected(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-a"] = &types.Trigger{UUID: "t-a", RepeatKey: "key-a", DataSource: types.SourceDHM}

	_, err := f.service.Activate(context.Background(), "key-a", "", nil)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationManualOnly, appErr.Code)
	assert.Empty(t, f.activation.calls)
}

func TestActivate_AlreadyTriggeredRejected(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-m"] = &types.Trigger{
		UUID:        "t-m",
		RepeatKey:   "key-m",
		DataSource:  types.SourceManual,
		IsTriggered: true,
	}

	_, err := f.service.Activate(context.Background(), "key-m", "", nil)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationAlreadyTriggered, appErr.Code)
	assert.Empty(t, f.activation.calls)
	assert.Empty(t, f.dispatch.messages)
}

func TestActivate_DispatchFailureDoesNotUndoActivation(t *testing.T) {
	f := newServiceFixture()
	f.store.byKey["key-m"] = &types.Trigger{UUID: "t-m", RepeatKey: "key-m", DataSource: types.SourceManual}
	f.dispatch.err = errors.New("queue unreachable")

	activated, err := f.service.Activate(context.Background(), "key-m", "", nil)
	require.NoError(t, err)
	assert.True(t, activated.IsTriggered)
	assert.Equal(t, []string{"t-m"}, f.activation.calls)
}

// --- ActivateFromThreshold ---

func TestActivateFromThreshold_FiresAndDispatches(t *testing.T) {
	f := newServiceFixture()
	f.store.byUUID["t-1"] = &types.Trigger{
		UUID:       "t-1",
		RepeatKey:  "key-1",
		DataSource: types.SourceDHM,
		Location:   "station-42",
		PhaseID:    "phase-readiness",
	}

	reading := types.Reading{Value: 112.4, ObservedAt: time.Now().UTC()}
	require.NoError(t, f.service.ActivateFromThreshold(context.Background(), "t-1", reading))

	assert.Equal(t, []string{"t-1"}, f.activation.calls)
	require.Len(t, f.dispatch.messages, 1)
	assert.Contains(t, f.dispatch.messages[0].Trigger.Notes, "112.40")
}

func TestActivateFromThreshold_AlreadyTriggered(t *testing.T) {
	f := newServiceFixture()
	f.store.byUUID["t-1"] = &types.Trigger{UUID: "t-1", DataSource: types.SourceDHM, IsTriggered: true}

	err := f.service.ActivateFromThreshold(context.Background(), "t-1", types.Reading{Value: 120})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationAlreadyTriggered, appErr.Code)
	assert.Empty(t, f.activation.calls)
}
