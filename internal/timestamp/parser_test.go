package timestamp

import (
	"testing"
	"time"
)

func TestParseTimestamp_Strings(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"RFC3339", "2024-01-15T10:30:45Z", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"RFC3339Nano", "2024-01-15T10:30:45.123456789Z", time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.UTC)},
		{"RFC3339 offset", "2024-01-15T10:30:45+05:00", time.Date(2024, 1, 15, 5, 30, 45, 0, time.UTC)},
		{"space separated", "2024-01-15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"millis", "2024-01-15 10:30:45.123", time.Date(2024, 1, 15, 10, 30, 45, 123000000, time.UTC)},
		{"micros", "2024-01-15 10:30:45.123456", time.Date(2024, 1, 15, 10, 30, 45, 123456000, time.UTC)},
		{"slashes", "2024/01/15 10:30:45.5", time.Date(2024, 1, 15, 10, 30, 45, 500000000, time.UTC)},
		{"comma decimal", "2024-01-15 10:30:45,250", time.Date(2024, 1, 15, 10, 30, 45, 250000000, time.UTC)},
		{"date only", "2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"padded", "  2024-01-15T10:30:45Z ", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.ParseTimestamp(tt.input)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Rejects(t *testing.T) {
	p := NewParser()

	for _, in := range []string{"", "10:30:45.123", "01:02:03", "1705312245", "not a date", "2024-13-45"} {
		if ts, ok := p.ParseTimestamp(in); ok {
			t.Errorf("ParseTimestamp(%q) = %v, want failure", in, ts)
		}
	}
	if _, ok := p.ParseTimestamp(nil); ok {
		t.Error("ParseTimestamp(nil) should fail")
	}
}

func TestParseTimestamp_UnixSeconds(t *testing.T) {
	p := NewParser()

	// 946684800 = 2000-01-01T00:00:00Z
	ts, ok := p.ParseTimestamp(float64(946684800))
	if !ok {
		t.Fatal("ParseTimestamp unix seconds failed")
	}
	if ts.Year() != 2000 {
		t.Errorf("unix seconds year = %d, want 2000", ts.Year())
	}

	ts, ok = p.ParseTimestamp(float64(1705312245))
	if !ok || ts.Year() != 2024 {
		t.Errorf("modern unix seconds = %v, %v; want 2024", ts, ok)
	}
}

func TestParseTimestamp_UnixMillis(t *testing.T) {
	p := NewParser()

	ts, ok := p.ParseTimestamp(float64(1600000000000))
	if !ok {
		t.Fatal("ParseTimestamp unix millis failed")
	}
	if ts.Year() != 2020 {
		t.Errorf("unix millis year = %d, want 2020", ts.Year())
	}
}

func TestParseTimestamp_UnixMicros(t *testing.T) {
	p := NewParser()

	ts, ok := p.ParseTimestamp(int64(1600000000000000))
	if !ok || ts.Year() != 2020 {
		t.Errorf("unix micros = %v, %v; want 2020", ts, ok)
	}
}

func TestParseTimestamp_UnixNanos(t *testing.T) {
	p := NewParser()

	// 1.6e18 ns = 1.6e9 seconds, September 2020
	ts, ok := p.ParseTimestamp(float64(1600000000000000000))
	if !ok {
		t.Fatal("ParseTimestamp unix nanos failed")
	}
	if ts.Year() != 2020 {
		t.Errorf("unix nanos year = %d, want 2020", ts.Year())
	}
}

func TestParseTimestamp_Int64(t *testing.T) {
	p := NewParser()

	ts, ok := p.ParseTimestamp(int64(946684800))
	if !ok {
		t.Fatal("ParseTimestamp int64 failed")
	}
	if ts.Year() != 2000 {
		t.Errorf("int64 year = %d, want 2000", ts.Year())
	}
}

func TestParseTimestamp_NonPositive(t *testing.T) {
	p := NewParser()

	if _, ok := p.ParseTimestamp(float64(0)); ok {
		t.Error("zero should not parse")
	}
	if _, ok := p.ParseTimestamp(int64(-5)); ok {
		t.Error("negative should not parse")
	}
}

func TestUnixSeconds(t *testing.T) {
	got := UnixSeconds(time.Date(1970, 1, 1, 1, 2, 3, 500000000, time.UTC))
	if got != 3723.5 {
		t.Errorf("UnixSeconds = %v, want 3723.5", got)
	}
}
