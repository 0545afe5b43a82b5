// Package series turns path query results into numeric series.
package series

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// clockLayout matches HH:MM:SS with an optional fractional second.
const clockLayout = "15:04:05"

// Normalize converts a scalar value into a float. Numbers and numeric
// strings are used as is and booleans map to 1 and 0. Clock strings
// (HH:MM:SS[.ffffff]) become Unix seconds on 1970-01-01 UTC. Anything else,
// including NaN and infinities, is not plottable.
func Normalize(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		return normalizeString(x)
	}
	return 0, false
}

func normalizeString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(f)
	}
	return clockSeconds(s)
}

func clockSeconds(s string) (float64, bool) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, false
	}
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return float64(secs) + float64(t.Nanosecond())/1e9, true
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
