// Package timestamp recognizes absolute date-times in decoded records.
package timestamp

import (
	"math"
	"strings"
	"time"
)

// Parser parses absolute timestamps. Values without a zone are UTC.
type Parser struct {
	layouts []string
}

// NewParser returns a parser for the common log timestamp layouts.
func NewParser() *Parser {
	return &Parser{layouts: []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006/01/02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006/01/02",
	}}
}

// ParseTimestamp converts v into a time. Strings must carry a date;
// clock-only strings are rejected. Numbers are Unix times whose unit is
// picked by magnitude: seconds, milliseconds, microseconds or nanoseconds.
func (p *Parser) ParseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		return p.parseString(x)
	case float64:
		return parseUnix(x)
	case float32:
		return parseUnix(float64(x))
	case int64:
		return parseUnix(float64(x))
	case int:
		return parseUnix(float64(x))
	case uint64:
		return parseUnix(float64(x))
	case time.Time:
		return x.UTC(), !x.IsZero()
	}
	return time.Time{}, false
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02") || !isDigit(s[0]) {
		return time.Time{}, false
	}
	s = commaDecimal(s)
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// commaDecimal rewrites "10:30:45,123" as "10:30:45.123".
func commaDecimal(s string) string {
	i := strings.LastIndexByte(s, ',')
	if i < 3 || i+1 >= len(s) || s[i-3] != ':' || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
		return s
	}
	return s[:i] + "." + s[i+1:]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func parseUnix(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, false
	}
	var ns float64
	switch {
	case v < 1e11:
		ns = v * 1e9
	case v < 1e14:
		ns = v * 1e6
	case v < 1e17:
		ns = v * 1e3
	default:
		ns = v
	}
	if ns > math.MaxInt64 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(ns)).UTC(), true
}

// UnixSeconds returns t as fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
