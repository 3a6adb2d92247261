package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 30*time.Second, "2h 0m 30s"},
		{72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestZeroTimes(t *testing.T) {
	assert.Equal(t, Never, FormatTime(time.Time{}))
	assert.Equal(t, Never, Relative(time.Time{}))
}

func TestRelative(t *testing.T) {
	assert.Contains(t, Relative(time.Now().Add(-3*time.Hour)), "ago")
}
