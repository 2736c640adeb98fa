package inbox

import (
	"strconv"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// AgeLabel renders how long before now t was, e.g. "Just now", "1 minute ago"
// or "3 weeks ago". Anything four weeks or older is shown as a date.
func AgeLabel(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return ago(int(d/time.Minute), "minute")
	case d < day:
		return ago(int(d/time.Hour), "hour")
	case d < week:
		return ago(int(d/day), "day")
	case d < 4*week:
		return ago(int(d/week), "week")
	default:
		return t.Format("Jan 2, 2006")
	}
}

func ago(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return strconv.Itoa(n) + " " + unit + " ago"
}
