package app

import (
	"fmt"
	"strings"
	"time"
)

var durationUnits = []struct {
	name string
	secs int64
}{
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// RenderDuration renders a duration using its two largest non-zero units,
// e.g. "2 days, 3 hours", "5 minutes", "42 seconds". Anything smaller than
// the second-largest unit is dropped.
func RenderDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d.Seconds())

	parts := make([]string, 0, 2)
	for _, u := range durationUnits {
		n := total / u.secs
		if n == 0 {
			continue
		}
		total -= n * u.secs
		label := u.name
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, ", ")
}
