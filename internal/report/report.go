// Package report turns detection results into confidence charts and
// summary statistics.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
)

// Chart dimensions.
const (
	Width  = 10 * vg.Inch
	Height = 4 * vg.Inch
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no confidence values")

// Summary describes a set of confidence percentages.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes the summary of values. StdDev is 0 for fewer than two
// values.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "no confidence values"
	}
	return fmt.Sprintf("n=%d mean=%.1f%% sd=%.1f min=%.1f%% max=%.1f%%", s.Count, s.Mean, s.StdDev, s.Min, s.Max)
}

// ImageConfidences extracts the plate confidences of an image result on
// their native 0-100 scale. Plates without a confidence are skipped.
func ImageConfidences(res *backend.ImageResult) (labels []string, values []float64) {
	if res == nil {
		return nil, nil
	}
	for i, p := range res.Plates {
		if p.Confidence == nil {
			continue
		}
		label := fmt.Sprintf("Plate %d", i+1)
		if p.PlateText != nil && *p.PlateText != "" {
			label = *p.PlateText
		}
		labels = append(labels, label)
		values = append(values, *p.Confidence)
	}
	return labels, values
}

// VideoConfidences extracts the best-frame confidences of a video result,
// scaled from 0-1 to percentages.
func VideoConfidences(res *backend.VideoResult) (labels []string, values []float64) {
	if res == nil {
		return nil, nil
	}
	for _, v := range res.Vehicles {
		if v.BestFrame == nil || v.BestFrame.Confidence == nil {
			continue
		}
		labels = append(labels, "Vehicle "+v.VehicleID)
		values = append(values, *v.BestFrame.Confidence*100)
	}
	return labels, values
}

// ConfidencePlot draws one bar per value on a 0-100% axis.
func ConfidencePlot(title string, labels []string, values []float64) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}
	if len(labels) != len(values) {
		return nil, fmt.Errorf("%d labels for %d values", len(labels), len(values))
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Confidence (%)"
	p.Y.Min = 0
	p.Y.Max = math.Max(100, floats.Max(values))

	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(24))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(labels...)

	if s := Summarize(values); s.Count > 1 {
		mean, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: s.Mean}, {X: float64(len(values)) - 0.5, Y: s.Mean}})
		if err != nil {
			return nil, fmt.Errorf("mean line: %w", err)
		}
		mean.Width = vg.Points(1)
		mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(mean)
		p.Legend.Add("mean", mean)
	}
	return p, nil
}

// SavePNG writes p to path.
func SavePNG(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// WritePNG renders p to w.
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
