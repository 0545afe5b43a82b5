package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/dltscope/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"3.14", 3.14, true},
		{" 42 ", 42, true},
		{"-1e3", -1000, true},
		{int64(7), 7, true},
		{uint64(8), 8, true},
		{2.5, 2.5, true},
		{true, 1, true},
		{false, 0, true},
		{"01:02:03.500000", 3723.5, true},
		{"01:02:03", 3723, true},
		{"23:59:59.999999", 86399.999999, true},
		{"not-a-number", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"25:00:00", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		assert.Equal(t, tt.ok, ok, "Normalize(%#v)", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "Normalize(%#v)", tt.in)
		}
	}

	clock, _ := Normalize("01:02:03.500000")
	want := float64(time.Date(1970, 1, 1, 1, 2, 3, 500000000, time.UTC).UnixNano()) / 1e9
	assert.Equal(t, want, clock)
}

func pairs(t *testing.T, records ...string) []model.Pair {
	t.Helper()
	var out []model.Pair
	for _, js := range records {
		n, err := model.ParseJSON([]byte(js))
		require.NoError(t, err)
		leaf, ok := n.Get("a")
		if !ok {
			leaf = n
		}
		out = append(out, model.Pair{Root: n, Leaf: leaf})
	}
	return out
}

func TestExtractClockTimestamps(t *testing.T) {
	ps := pairs(t,
		`{"timestamp":"00:00:01.000000","a":{"b":1}}`,
		`{"timestamp":"00:00:02.000000","a":{"b":2}}`,
	)
	s, err := Extract(ps, "b")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.X)
	assert.Equal(t, []float64{1, 2}, s.Y)
	assert.Equal(t, "b", s.Field)
	assert.Equal(t, 2, s.Total)
}

func TestExtractAbsoluteTimestamps(t *testing.T) {
	ps := pairs(t,
		`{"timestamp":"2024/01/15 10:30:45.500000","v":1}`,
		`{"timestamp":"1700000000","v":2}`,
		`{"timestamp":12.5,"v":3}`,
	)
	s, err := Extract(ps, "v")
	require.NoError(t, err)
	base := float64(time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC).Unix())
	assert.Equal(t, []float64{base + 0.5, 1700000000, 12.5}, s.X)
	assert.Equal(t, []float64{1, 2, 3}, s.Y)
}

func TestExtractExpandsListsAndDropsBadPoints(t *testing.T) {
	ps := pairs(t,
		`{"timestamp":"1","v":[10,"x",11]}`,
		`{"timestamp":"garbage","v":99}`,
		`{"v":98}`,
		`{"timestamp":"2","v":"12.5"}`,
		`{"timestamp":"3","other":1}`,
		`{"timestamp":"4","v":{"nested":1}}`,
	)
	s, err := Extract(ps, "v")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2}, s.X)
	assert.Equal(t, []float64{10, 11, 12.5}, s.Y)
}

func TestExtractNoNumericData(t *testing.T) {
	ps := pairs(t, `{"timestamp":"1","v":"abc"}`)
	_, err := Extract(ps, "v")
	assert.ErrorIs(t, err, ErrNoNumericData)

	_, err = Extract(nil, "v")
	assert.ErrorIs(t, err, ErrNoNumericData)
}

func ramp(n int) model.Series {
	s := model.Series{X: make([]float64, n), Y: make([]float64, n), Total: n}
	for i := range s.X {
		s.X[i] = float64(i)
		s.Y[i] = float64(i * 2)
	}
	return s
}

func TestDownsample(t *testing.T) {
	in := ramp(25000)
	out := Downsample(in, 10000)

	require.Equal(t, 10000, out.Len())
	assert.Equal(t, in.X[0], out.X[0])
	assert.Equal(t, in.Y[0], out.Y[0])
	assert.Equal(t, in.X[24999], out.X[9999])
	assert.Equal(t, in.Y[24999], out.Y[9999])
	assert.Equal(t, 25000, out.Total)
	for i := 1; i < out.Len(); i++ {
		require.Greater(t, out.X[i], out.X[i-1], "indices must be strictly increasing")
		require.Equal(t, out.X[i]*2, out.Y[i], "x and y must stay aligned")
	}
}

func TestDownsampleNoop(t *testing.T) {
	in := ramp(10)
	assert.Equal(t, in, Downsample(in, 10))
	assert.Equal(t, in, Downsample(in, 100))
	assert.Equal(t, in, Downsample(in, 0))
	assert.Equal(t, in, Downsample(in, -1))
}

func TestDownsampleSmallCaps(t *testing.T) {
	in := ramp(5)
	one := Downsample(in, 1)
	assert.Equal(t, []float64{0}, one.X)

	two := Downsample(in, 2)
	assert.Equal(t, []float64{0, 4}, two.X)

	three := Downsample(in, 3)
	assert.Equal(t, []float64{0, 2, 4}, three.X)
}
