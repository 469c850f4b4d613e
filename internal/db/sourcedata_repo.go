package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"floodline/internal/types"
)

// SourceDataRepository provides data access for the source_data table, the
// persisted record of feed observations.
//
// Writes are deduplicated by (data_source, observed_at): a tick that sees an
// observation timestamp already on record skips the write. This makes tick
// effects idempotent, which is what allows an in-flight tick to finish
// harmlessly after its job has been cancelled.
type SourceDataRepository struct {
	db DBTX
}

// NewSourceDataRepository creates a new SourceDataRepository backed by the
// given database connection (pool or transaction).
func NewSourceDataRepository(db DBTX) *SourceDataRepository {
	return &SourceDataRepository{db: db}
}

// InsertIfNew persists a reading unless one with the same
// (data_source, observed_at) already exists. Returns true when a row was
// actually inserted.
func (r *SourceDataRepository) InsertIfNew(ctx context.Context, source types.DataSource, location string, reading types.Reading) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO source_data (data_source, location, data, observed_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (data_source, observed_at) DO NOTHING`,
		string(source),
		location,
		types.ReadingData{Reading: reading},
		reading.ObservedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to persist source reading", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Latest returns the most recent recorded reading for a source. The second
// return value is false when no readings exist. Used for operational
// visibility, not by the dedup path.
func (r *SourceDataRepository) Latest(ctx context.Context, source types.DataSource) (types.Reading, bool, error) {
	row := r.db.QueryRow(ctx,
		`SELECT data FROM source_data
		 WHERE data_source = $1
		 ORDER BY observed_at DESC
		 LIMIT 1`,
		string(source),
	)
	var data types.ReadingData
	if scanErr := row.Scan(&data); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return types.Reading{}, false, nil
		}
		return types.Reading{}, false, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest reading", scanErr)
	}
	return data.Reading, true, nil
}
