package stock

import (
	"fmt"
	"strconv"
	"time"

	"github.com/routelens/routelens/internal/pool"
)

// FormatIteration renders a 14-digit YYYYMMDDHHmmss iteration as
// "YYYY-MM-DD HH:MM:SS". With trimToday, an iteration on now's date renders
// as the time only. Other iterations are returned as plain numbers.
func FormatIteration(iteration int64, trimToday bool, now time.Time) string {
	s := strconv.FormatInt(iteration, 10)
	if len(s) != len(pool.IterationLayout) {
		return s
	}
	date := s[0:4] + "-" + s[4:6] + "-" + s[6:8]
	clock := s[8:10] + ":" + s[10:12] + ":" + s[12:14]
	if trimToday && date == now.Format("2006-01-02") {
		return clock
	}
	return date + " " + clock
}

// IterationDelta describes how far old lags behind latest, both read as local
// 14-digit timestamps: "45s", "12m", "3h 5m", "2d 4h". It returns "" when
// either iteration is not in that encoding.
func IterationDelta(old, latest int64) string {
	from, ok1 := pool.ParseIterationStamp(old, time.Local)
	to, ok2 := pool.ParseIterationStamp(latest, time.Local)
	if !ok1 || !ok2 {
		return ""
	}

	secs := int64(to.Sub(from) / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		h, m := secs/3600, (secs%3600)/60
		if m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	default:
		d, h := secs/86400, (secs%86400)/3600
		if h > 0 {
			return fmt.Sprintf("%dd %dh", d, h)
		}
		return fmt.Sprintf("%dd", d)
	}
}
