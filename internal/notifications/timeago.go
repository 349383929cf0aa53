package notifications

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

var agoUnits = []struct {
	name string
	size time.Duration
}{
	{"year", 365 * day},
	{"month", 30 * day},
	{"day", day},
	{"hour", time.Hour},
	{"minute", time.Minute},
}

// TimeAgo renders the elapsed time between t and now using the largest
// whole unit. Future timestamps read as just now.
func TimeAgo(now, t time.Time) string {
	elapsed := now.Sub(t)
	for _, u := range agoUnits {
		n := int64(elapsed / u.size)
		if n < 1 {
			continue
		}
		if n == 1 {
			return fmt.Sprintf("1 %s ago", u.name)
		}
		return fmt.Sprintf("%d %ss ago", n, u.name)
	}
	return "Less than a minute ago"
}
