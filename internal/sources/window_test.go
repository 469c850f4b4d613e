package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kathmandu(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)
	return loc
}

func TestTrailingWindow_SpansYesterdayAndToday(t *testing.T) {
	loc := kathmandu(t)
	now := time.Date(2026, time.August, 29, 14, 30, 0, 0, loc)

	from, to := TrailingWindow(now, loc)

	assert.Equal(t, time.Date(2026, time.August, 28, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, time.August, 29, 23, 59, 59, 0, loc), to)
}

func TestTrailingWindow_RollsForwardAfterMidnight(t *testing.T) {
	loc := kathmandu(t)

	beforeMidnight := time.Date(2026, time.August, 29, 23, 59, 0, 0, loc)
	afterMidnight := time.Date(2026, time.August, 30, 0, 1, 0, 0, loc)

	fromBefore, _ := TrailingWindow(beforeMidnight, loc)
	fromAfter, toAfter := TrailingWindow(afterMidnight, loc)

	assert.Equal(t, time.Date(2026, time.August, 28, 0, 0, 0, 0, loc), fromBefore)
	assert.Equal(t, time.Date(2026, time.August, 29, 0, 0, 0, 0, loc), fromAfter)
	assert.Equal(t, time.Date(2026, time.August, 30, 23, 59, 59, 0, loc), toAfter)
}

func TestTrailingWindow_NormalizesNowIntoZone(t *testing.T) {
	loc := kathmandu(t)

	// 19:00 UTC on the 28th is already 00:45 on the 29th in Kathmandu, so the
	// window must be anchored on the 29th, not the UTC date.
	now := time.Date(2026, time.August, 28, 19, 0, 0, 0, time.UTC)

	from, to := TrailingWindow(now, loc)
	assert.Equal(t, time.Date(2026, time.August, 28, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, time.August, 29, 23, 59, 59, 0, loc), to)
}
