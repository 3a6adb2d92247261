// Package timeutil formats times for CLI tables.
package timeutil

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// LocalTimeFormat is used for absolute timestamps.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// Never is shown for zero times, such as a user who has not logged in.
const Never = "never"

// FormatDuration renders d as "3d 0h 30m 15s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTime renders t in local time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return Never
	}
	return t.Local().Format(LocalTimeFormat)
}

// Relative renders t as "3 hours ago".
func Relative(t time.Time) string {
	if t.IsZero() {
		return Never
	}
	return humanize.Time(t)
}
