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

// GlofasAdapter polls the basin discharge forecast feed. Unlike the river
// station feed, discharge forecasts carry no feed-published thresholds, so
// classification relies entirely on the statement's configured levels.
type GlofasAdapter struct {
	client   *external.BaseClient
	baseURL  string
	store    ReadingStore
	emitter  NotificationEmitter
	location *time.Location
	logger   *slog.Logger
}

// GlofasConfig holds the dependencies for constructing a GlofasAdapter.
type GlofasConfig struct {
	Client   *external.BaseClient
	BaseURL  string
	Store    ReadingStore
	Emitter  NotificationEmitter
	Timezone *time.Location
	Logger   *slog.Logger
}

// NewGlofasAdapter creates a basin-discharge adapter.
func NewGlofasAdapter(cfg GlofasConfig) *GlofasAdapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GlofasAdapter{
		client:   cfg.Client,
		baseURL:  cfg.BaseURL,
		store:    cfg.Store,
		emitter:  cfg.Emitter,
		location: cfg.Timezone,
		logger:   logger,
	}
}

// Source returns the data source this adapter serves.
func (a *GlofasAdapter) Source() types.DataSource {
	return types.SourceGlofas
}

// glofasResponse is the wire shape of the discharge forecast endpoint.
type glofasResponse struct {
	Station   string          `json:"station"`
	Discharge []glofasForecast `json:"discharge"`
}

type glofasForecast struct {
	Value    float64 `json:"value"`
	Datetime string  `json:"datetime"` // RFC 3339
}

// CriteriaCheck fetches discharge forecasts for the statement's station over
// the trailing window, selects the most recent point, and runs the shared
// persist-classify-notify tail.
func (a *GlofasAdapter) CriteriaCheck(ctx context.Context, stmt *types.TriggerStatement) (*CheckResult, error) {
	readings, err := a.fetch(ctx, stmt.Location)
	if err != nil {
		return nil, err
	}

	reading, ok := latestReading(readings)
	if !ok {
		a.logger.InfoContext(ctx, "no discharge forecasts in window",
			"location", stmt.Location,
		)
		return nil, nil
	}

	return evaluateReading(ctx, a.store, a.emitter, a.logger, types.SourceGlofas, stmt, reading)
}

// fetch retrieves discharge forecast points for a station over the trailing
// window.
func (a *GlofasAdapter) fetch(ctx context.Context, station string) ([]types.Reading, error) {
	from, to := TrailingWindow(time.Now(), a.location)

	q := url.Values{}
	q.Set("station", station)
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/api/v1/discharge?%s", a.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build discharge request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamFeed,
			fmt.Sprintf("discharge feed returned %d", resp.StatusCode), nil)
	}

	var payload glofasResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFeed, "failed to decode discharge response", err)
	}

	readings := make([]types.Reading, 0, len(payload.Discharge))
	for _, point := range payload.Discharge {
		observedAt, err := time.Parse(time.RFC3339, point.Datetime)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamFeed,
				fmt.Sprintf("unparseable forecast timestamp %q", point.Datetime), err)
		}
		readings = append(readings, types.Reading{
			Value:      point.Value,
			ObservedAt: observedAt,
		})
	}

	return readings, nil
}
