package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"floodline/internal/types"
)

func TestJobRegister(t *testing.T) {
	t.Run("inserts scheduled registration", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		repo := NewRecurringJobRepository(dbtx)
		err := repo.Register(context.Background(), &JobRegistration{
			RepeatKey:  "DHM_station-42_key",
			JobID:      "trigger-1",
			IntervalMS: 300000,
			Status:     types.JobScheduled,
			NextDueAt:  time.Now().UTC().Add(5 * time.Minute),
		})
		assert.NoError(t, err)
		dbtx.AssertExpectations(t)
	})

	t.Run("duplicate repeat key is conflict", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
			Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

		repo := NewRecurringJobRepository(dbtx)
		err := repo.Register(context.Background(), &JobRegistration{RepeatKey: "key-1"})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeConflictRepeatKey, appErr.Code)
	})
}

func TestJobGet(t *testing.T) {
	t.Run("missing registration is nil not error", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		repo := NewRecurringJobRepository(dbtx)
		reg, err := repo.Get(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, reg)
	})

	t.Run("cancelled registration keeps its status", func(t *testing.T) {
		nextDue := time.Now().UTC().Add(time.Minute)
		dbtx := new(mockDBTX)
		dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
			Return(&mockRow{values: []any{
				"DHM_station-42_key", "trigger-1", int64(300000), "cancelled", nextDue, time.Now().UTC(),
			}})

		repo := NewRecurringJobRepository(dbtx)
		reg, err := repo.Get(context.Background(), "DHM_station-42_key")
		require.NoError(t, err)
		require.NotNil(t, reg)
		assert.Equal(t, types.JobCancelled, reg.Status)
		assert.Equal(t, int64(300000), reg.IntervalMS)
		assert.Equal(t, nextDue, reg.NextDueAt)
	})

	t.Run("query failure is internal", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
			Return(&mockRow{scanErr: errors.New("connection reset")})

		repo := NewRecurringJobRepository(dbtx)
		_, err := repo.Get(context.Background(), "key-1")

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})
}

func TestJobCancel_UnknownKeyIsNoOp(t *testing.T) {
	dbtx := new(mockDBTX)
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	repo := NewRecurringJobRepository(dbtx)
	assert.NoError(t, repo.Cancel(context.Background(), "ghost"))
}

func TestJobAdvance_OnlyMovesScheduledJobs(t *testing.T) {
	dbtx := new(mockDBTX)
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		// The status filter rides along as the last argument.
		return len(args) == 3 && args[2] == string(types.JobScheduled)
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewRecurringJobRepository(dbtx)
	err := repo.Advance(context.Background(), "key-1", time.Now().UTC().Add(5*time.Minute))
	assert.NoError(t, err)
	dbtx.AssertExpectations(t)
}

func TestJobHistory(t *testing.T) {
	t.Run("start returns generated id", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
			Return(&mockRow{values: []any{int64(42)}})

		repo := NewJobHistoryRepository(dbtx)
		id, err := repo.Start(context.Background(), "key-1", types.SourceDHM)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("finish records outcome and error", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
			if len(args) != 3 || args[1] != string(types.TickFailedExhausted) {
				return false
			}
			msg, ok := args[2].(*string)
			return ok && msg != nil && *msg != ""
		})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		repo := NewJobHistoryRepository(dbtx)
		err := repo.Finish(context.Background(), 42, types.TickFailedExhausted, errors.New("feed unreachable"))
		assert.NoError(t, err)
		dbtx.AssertExpectations(t)
	})

	t.Run("finish on unknown id fails", func(t *testing.T) {
		dbtx := new(mockDBTX)
		dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		repo := NewJobHistoryRepository(dbtx)
		err := repo.Finish(context.Background(), 99, types.TickSucceeded, nil)

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
	})
}
