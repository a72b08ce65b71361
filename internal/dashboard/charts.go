package dashboard

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/settings"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Point is one labelled value of a sample series.
type Point struct {
	Label string
	Value float64
}

// ModelPerformance is one row of the model performance card.
type ModelPerformance struct {
	Name     string
	Accuracy float64
	Speed    string
}

// Sample analytics shown on the dashboard. The backend exposes no history
// endpoints, so these are fixed.
var (
	SampleDailyInferences = []Point{
		{"Mon", 45}, {"Tue", 52}, {"Wed", 38}, {"Thu", 67}, {"Fri", 89}, {"Sat", 34}, {"Sun", 23},
	}
	SampleConfidenceDistribution = []Point{
		{"90-100%", 45}, {"80-89%", 32}, {"70-79%", 28}, {"60-69%", 15}, {"50-59%", 8}, {"<50%", 3},
	}
	SampleProcessingTime = []Point{
		{"00:00", 120}, {"04:00", 95}, {"08:00", 150}, {"12:00", 180}, {"16:00", 140}, {"20:00", 110},
	}
	SampleModelPerformance = []ModelPerformance{
		{Name: "License Plate Detection", Accuracy: 94, Speed: "Fast"},
		{Name: "Character Recognition", Accuracy: 87, Speed: "Medium"},
		{Name: "Vehicle Tracking", Accuracy: 91, Speed: "Fast"},
	}
)

func labels(points []Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Label
	}
	return out
}

func barData(points []Point) []opts.BarData {
	out := make([]opts.BarData, len(points))
	for i, p := range points {
		out[i] = opts.BarData{Value: p.Value}
	}
	return out
}

func lineData(points []Point) []opts.LineData {
	out := make([]opts.LineData, len(points))
	for i, p := range points {
		out[i] = opts.LineData{Value: p.Value}
	}
	return out
}

func (s *Server) chartInit(title string) charts.GlobalOpts {
	theme := "white"
	if s.settings.Theme() == settings.ThemeDark {
		theme = "dark"
	}
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:  title,
		Theme:      theme,
		Width:      "100%",
		Height:     "360px",
		AssetsHost: echartsAssetsHost,
	})
}

func (s *Server) dailyChart() components.Charter {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.chartInit("Daily Inferences"),
		charts.WithTitleOpts(opts.Title{Title: "Daily Inferences", Subtitle: "Sample data"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels(SampleDailyInferences)).
		AddSeries("inferences", barData(SampleDailyInferences),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func (s *Server) confidenceChart() components.Charter {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.chartInit("Confidence Distribution"),
		charts.WithTitleOpts(opts.Title{Title: "Confidence Distribution", Subtitle: "Sample data"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels(SampleConfidenceDistribution)).
		AddSeries("detections", barData(SampleConfidenceDistribution))
	return bar
}

func (s *Server) processingTimeChart() components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		s.chartInit("Processing Time"),
		charts.WithTitleOpts(opts.Title{Title: "Processing Time (ms)", Subtitle: "Sample data"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(labels(SampleProcessingTime)).
		AddSeries("processing time", lineData(SampleProcessingTime)).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func (s *Server) modelsChart() components.Charter {
	names := make([]string, len(SampleModelPerformance))
	data := make([]opts.BarData, len(SampleModelPerformance))
	for i, m := range SampleModelPerformance {
		names[i] = m.Name
		data[i] = opts.BarData{Name: m.Speed, Value: m.Accuracy}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.chartInit("Model Performance"),
		charts.WithTitleOpts(opts.Title{Title: "Model Performance", Subtitle: "Accuracy (%)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
	)
	bar.SetXAxis(names).
		AddSeries("accuracy", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// chartHandler renders the chart built by build as a standalone page.
func (s *Server) chartHandler(build func() components.Charter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := components.NewPage()
		page.SetAssetsHost(echartsAssetsHost)
		page.AddCharts(build())

		var buf bytes.Buffer
		if err := page.Render(&buf); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
