package sources

import "time"

// TrailingWindow returns the polling window for a criteria check:
// yesterday 00:00:00 through today 23:59:59 in the deployment time zone.
// The window is recomputed on every call relative to now, never cached, so
// a tick that fires just after midnight naturally rolls the window forward.
func TrailingWindow(now time.Time, loc *time.Location) (from, to time.Time) {
	local := now.In(loc)
	year, month, day := local.Date()

	todayStart := time.Date(year, month, day, 0, 0, 0, 0, loc)
	from = todayStart.AddDate(0, 0, -1)
	to = todayStart.AddDate(0, 0, 1).Add(-time.Second)
	return from, to
}
