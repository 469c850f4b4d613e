package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"floodline/internal/external"
	"floodline/internal/types"
)

// dhmTimeLayout is the timestamp format used by the DHM river station API
// for both query parameters and response payloads.
const dhmTimeLayout = "2006-01-02 15:04:05"

// DHMAdapter polls the Department of Hydrology and Meteorology river
// station feed: observed water levels with station-published warning and
// danger levels.
type DHMAdapter struct {
	client   *external.BaseClient
	baseURL  string
	store    ReadingStore
	emitter  NotificationEmitter
	location *time.Location
	logger   *slog.Logger
}

// DHMConfig holds the dependencies for constructing a DHMAdapter.
type DHMConfig struct {
	Client   *external.BaseClient
	BaseURL  string
	Store    ReadingStore
	Emitter  NotificationEmitter
	Timezone *time.Location
	Logger   *slog.Logger
}

// NewDHMAdapter creates a DHM river-station adapter.
func NewDHMAdapter(cfg DHMConfig) *DHMAdapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DHMAdapter{
		client:   cfg.Client,
		baseURL:  cfg.BaseURL,
		store:    cfg.Store,
		emitter:  cfg.Emitter,
		location: cfg.Timezone,
		logger:   logger,
	}
}

// Source returns the data source this adapter serves.
func (a *DHMAdapter) Source() types.DataSource {
	return types.SourceDHM
}

// dhmResponse is the wire shape of the river station observations endpoint.
type dhmResponse struct {
	Data []dhmObservation `json:"data"`
}

type dhmObservation struct {
	Value        float64 `json:"value"`
	Datetime     string  `json:"datetime"`
	WarningLevel float64 `json:"warning_level"`
	DangerLevel  float64 `json:"danger_level"`
}

// CriteriaCheck fetches observed water levels for the statement's station
// over the trailing window, selects the most recent, and runs the shared
// persist-classify-notify tail.
func (a *DHMAdapter) CriteriaCheck(ctx context.Context, stmt *types.TriggerStatement) (*CheckResult, error) {
	readings, err := a.fetch(ctx, stmt.Location)
	if err != nil {
		return nil, err
	}

	reading, ok := latestReading(readings)
	if !ok {
		a.logger.InfoContext(ctx, "no river station readings in window",
			"location", stmt.Location,
		)
		return nil, nil
	}

	return evaluateReading(ctx, a.store, a.emitter, a.logger, types.SourceDHM, stmt, reading)
}

// fetch retrieves raw observations for a station over the trailing window.
func (a *DHMAdapter) fetch(ctx context.Context, seriesID string) ([]types.Reading, error) {
	from, to := TrailingWindow(time.Now(), a.location)

	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("date_from", from.Format(dhmTimeLayout))
	q.Set("date_to", to.Format(dhmTimeLayout))

	endpoint := fmt.Sprintf("%s/api/v1/river-watch?%s", a.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build river station request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamFeed,
			fmt.Sprintf("river station feed returned %d", resp.StatusCode), nil)
	}

	var payload dhmResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFeed, "failed to decode river station response", err)
	}

	readings := make([]types.Reading, 0, len(payload.Data))
	for _, obs := range payload.Data {
		observedAt, err := time.ParseInLocation(dhmTimeLayout, obs.Datetime, a.location)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamFeed,
				fmt.Sprintf("unparseable observation timestamp %q", obs.Datetime), err)
		}
		readings = append(readings, types.Reading{
			Value:        obs.Value,
			ObservedAt:   observedAt,
			WarningLevel: obs.WarningLevel,
			DangerLevel:  obs.DangerLevel,
		})
	}

	return readings, nil
}
