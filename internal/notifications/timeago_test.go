package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"seconds", 45 * time.Second, "Less than a minute ago"},
		{"zero", 0, "Less than a minute ago"},
		{"future", -time.Hour, "Less than a minute ago"},
		{"one minute", 61 * time.Second, "1 minute ago"},
		{"minutes", 59 * time.Minute, "59 minutes ago"},
		{"one hour", 3700 * time.Second, "1 hour ago"},
		{"hours", 5*time.Hour + 59*time.Minute, "5 hours ago"},
		{"one day", 90000 * time.Second, "1 day ago"},
		{"days", 29 * day, "29 days ago"},
		{"one month", 30 * day, "1 month ago"},
		{"months", 364 * day, "12 months ago"},
		{"one year", 365 * day, "1 year ago"},
		{"years", 3 * 365 * day, "3 years ago"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TimeAgo(now, now.Add(-tc.elapsed)))
		})
	}
}
