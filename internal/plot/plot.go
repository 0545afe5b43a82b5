// Package plot renders extracted series as PNG or SVG charts.
package plot

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// ErrEmptySeries means there is nothing to draw.
var ErrEmptySeries = errors.New("plot: empty series")

// Format is an output image format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg". Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case PNG, SVG:
		return f, nil
	case "":
		return PNG, nil
	}
	return "", fmt.Errorf("plot: unknown format %q (want png or svg)", s)
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Options controls the chart layout. Zero sizes use 1024x480.
type Options struct {
	Title  string
	Width  int
	Height int
	Color  drawing.Color
}

// Render draws s as a line chart with time on the X axis.
func Render(w io.Writer, s model.Series, f Format, opts Options) error {
	if len(s.X) == 0 || len(s.X) != len(s.Y) {
		return ErrEmptySeries
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	if opts.Color.IsZero() {
		opts.Color = chart.ColorBlue
	}
	if opts.Title == "" {
		opts.Title = s.Path + " > " + s.Field
	}

	xs := make([]time.Time, len(s.X))
	for i, x := range s.X {
		xs[i] = unixTime(x)
	}
	ys := append([]float64(nil), s.Y...)

	style := chart.Style{StrokeColor: opts.Color, StrokeWidth: 1.5}
	if len(xs) == 1 {
		// go-chart needs two X values to build a range.
		xs = append(xs, xs[0].Add(time.Second))
		ys = append(ys, ys[0])
		style.DotWidth = 4
		style.DotColor = opts.Color
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 12}},
		XAxis: chart.XAxis{
			Name:           "Time",
			ValueFormatter: chart.TimeValueFormatterWithFormat(timeLayout(xs)),
		},
		YAxis: chart.YAxis{Name: s.Field, Range: yRange(ys)},
		Series: []chart.Series{chart.TimeSeries{
			Name:    s.Field,
			XValues: xs,
			YValues: ys,
			Style:   style,
		}},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	provider := chart.PNG
	if f == SVG {
		provider = chart.SVG
	}
	if err := ch.Render(provider, w); err != nil {
		return fmt.Errorf("plot: render %s: %w", f, err)
	}
	return nil
}

func unixTime(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}

func timeLayout(xs []time.Time) string {
	span := xs[len(xs)-1].Sub(xs[0])
	switch {
	case span < time.Minute:
		return "15:04:05.000"
	case span < 24*time.Hour:
		return "15:04:05"
	default:
		return "2006-01-02 15:04"
	}
}

// yRange widens a flat series so the axis range is not empty.
func yRange(ys []float64) *chart.ContinuousRange {
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	if lo != hi {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}
