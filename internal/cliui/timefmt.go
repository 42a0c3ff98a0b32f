package cliui

import (
	"strconv"
	"time"
)

// Timestamp prints a unix-nano time as UTC RFC 3339 with milliseconds, or "-"
// when unset.
func Timestamp(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(0, ts).UTC().Format("2006-01-02T15:04:05.000Z")
}

// Offset prints t relative to start, for example "+1.25s".
func Offset(t, start time.Time) string {
	if t.IsZero() || start.IsZero() {
		return "-"
	}
	d := t.Sub(start)
	if d < 0 {
		return "-" + seconds(-d)
	}
	return "+" + seconds(d)
}

// Duration prints the time between two unix-nano stamps, or "-" when the
// session has not ended.
func Duration(startTS, endTS int64) string {
	if startTS <= 0 || endTS <= 0 || endTS < startTS {
		return "-"
	}
	return seconds(time.Duration(endTS - startTS))
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
