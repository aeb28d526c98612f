package traffic

import (
	"time"
)

// MinutesSinceMidnight returns hour*60 + minute of t in its own location.
func MinutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FormatTime renders a minute of day as a short en-US clock label, e.g.
// "12:00 AM" or "1:05 PM". Values outside a day wrap.
func FormatTime(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	t := time.Date(2000, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC)
	return t.Format("3:04 PM")
}

// Label is the slider label for a time filter; empty means any time.
func Label(timeFilter int) string {
	if timeFilter == NoFilter {
		return ""
	}
	return FormatTime(timeFilter)
}
