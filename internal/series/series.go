package series

import (
	"errors"

	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/timestamp"
)

// ErrNoNumericData means no point survived normalization.
var ErrNoNumericData = errors.New("series: no valid numeric data")

var parser = timestamp.NewParser()

// Extract builds the series of field over pairs. X comes from each root
// record's timestamp, or from the leaf's when the root has none; Y comes
// from the leaf's field. List values give one point per element sharing
// the same X. Points where either coordinate cannot be normalized are
// dropped.
func Extract(pairs []model.Pair, field string) (model.Series, error) {
	s := model.Series{Field: field}
	for _, p := range pairs {
		x, ok := TimeOf(timeSource(p))
		if !ok {
			continue
		}
		raw, ok := p.Leaf.Get(field)
		if !ok {
			continue
		}

		switch {
		case raw.IsList():
			for _, e := range raw.Items() {
				if y, ok := yValue(e); ok {
					s.X = append(s.X, x)
					s.Y = append(s.Y, y)
				}
			}
		default:
			if y, ok := yValue(raw); ok {
				s.X = append(s.X, x)
				s.Y = append(s.Y, y)
			}
		}
	}
	if len(s.X) == 0 {
		return model.Series{}, ErrNoNumericData
	}
	s.Total = len(s.X)
	return s, nil
}

// TimeOf returns the X coordinate of a record: its timestamp field as Unix
// seconds when it is an absolute date, otherwise the normalized value.
func TimeOf(root model.Node) (float64, bool) {
	ts, ok := root.Get(model.TimestampField)
	if !ok || !ts.IsScalar() || ts.Value() == nil {
		return 0, false
	}
	if str, ok := ts.Value().(string); ok {
		if t, ok := parser.ParseTimestamp(str); ok {
			return timestamp.UnixSeconds(t), true
		}
	}
	return Normalize(ts.Value())
}

func timeSource(p model.Pair) model.Node {
	if _, ok := p.Root.Get(model.TimestampField); ok {
		return p.Root
	}
	return p.Leaf
}

func yValue(n model.Node) (float64, bool) {
	if !n.IsScalar() {
		return 0, false
	}
	return Normalize(n.Value())
}

// Downsample caps s at limit points by picking evenly spaced indices from
// the first to the last point inclusive. Values are never interpolated.
// A limit of zero or less leaves s unchanged.
func Downsample(s model.Series, limit int) model.Series {
	n := len(s.X)
	if limit <= 0 || n <= limit {
		return s
	}
	total := s.Total
	if total == 0 {
		total = n
	}

	out := model.Series{
		Path:  s.Path,
		Field: s.Field,
		X:     make([]float64, limit),
		Y:     make([]float64, limit),
		Total: total,
	}
	for i := 0; i < limit; i++ {
		idx := 0
		if limit > 1 {
			idx = int(int64(i) * int64(n-1) / int64(limit-1))
		}
		out.X[i] = s.X[idx]
		out.Y[i] = s.Y[idx]
	}
	return out
}
