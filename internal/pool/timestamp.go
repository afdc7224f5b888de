package pool

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a timestamp cannot be parsed.
var ErrInvalidTimestamp = errors.New("pool: invalid timestamp")

const (
	// LogTimestampLayout is the second-resolution prefix every base-log line starts with.
	LogTimestampLayout = "2006-01-02T15:04:05"

	// IterationLayout is the compact YYYYMMDDHHmmss encoding used for iteration ids.
	IterationLayout = "20060102150405"
)

// LeadingTimestamp returns the YYYY-MM-DDTHH:MM:SS prefix of line, including a
// trailing 'Z' when present. It inspects bytes directly to stay allocation free.
func LeadingTimestamp(line string) (string, bool) {
	const n = len(LogTimestampLayout)
	if len(line) < n {
		return "", false
	}
	for i := 0; i < n; i++ {
		c := line[i]
		switch i {
		case 4, 7:
			if c != '-' {
				return "", false
			}
		case 10:
			if c != 'T' {
				return "", false
			}
		case 13, 16:
			if c != ':' {
				return "", false
			}
		default:
			if c < '0' || c > '9' {
				return "", false
			}
		}
	}
	if len(line) > n && line[n] == 'Z' {
		return line[:n+1], true
	}
	return line[:n], true
}

// ParseLocalTimestamp parses a log timestamp in loc. A trailing 'Z' is dropped
// and the remainder read as wall-clock time in loc: the automation writes local
// time while suffixing it with Z.
func ParseLocalTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSuffix(s, "Z")
	t, err := time.ParseInLocation(LogTimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}

// ParseIterationStamp decodes a 14-digit YYYYMMDDHHmmss iteration as a naive
// timestamp in loc. The second result is false for any other shape.
func ParseIterationStamp(iteration int64, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s := strconv.FormatInt(iteration, 10)
	if len(s) != len(IterationLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(IterationLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
