package render

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
)

const base = "http://localhost:8000"

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"image two decimals", FormatImageConfidence(87.345), "87.35%"},
		{"image integer", FormatImageConfidence(94), "94.00%"},
		{"image carry", FormatImageConfidence(99.999), "100.00%"},
		{"image small", FormatImageConfidence(0.005), "0.01%"},
		{"video scaled", FormatVideoConfidence(0.873), "87.3%"},
		{"video half up", FormatVideoConfidence(0.8735), "87.4%"},
		{"video whole", FormatVideoConfidence(1), "100.0%"},
		{"coordinate", FormatCoordinate(10), "10.0"},
		{"coordinate half up", FormatCoordinate(20.25), "20.3"},
		{"coordinate negative", FormatCoordinate(-1.25), "-1.3"},
		{"coordinate zero", FormatCoordinate(0), "0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestArtifactURL(t *testing.T) {
	u, ok := ArtifactURL(base+"/", "abc123", CroppedPlateArtifact(0))
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:8000/results/abc123/cropped_plate_0.jpg", u)

	u, ok = ArtifactURL(base, "abc123", VehicleBestArtifact("7"))
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:8000/results/abc123/vehicle_7_best.jpg", u)

	for _, id := range []string{"", "  "} {
		u, ok = ArtifactURL(base, id, CroppedPlateArtifact(1))
		assert.False(t, ok)
		assert.Empty(t, u)
	}
}

func TestImage(t *testing.T) {
	res := &backend.ImageResult{
		ResultID: "abc123",
		Plates: []backend.PlateDetection{
			{
				PlateText:   str("KA01AB1234"),
				BoundingBox: &backend.Box{X1: f64(10), Y1: f64(20.5), X2: f64(110.25), Y2: nil},
				Confidence:  f64(87.345),
				CharColorLegend: []backend.LegendEntry{
					{Char: "K", Color: backend.RGB{255, 0, 0}},
				},
			},
			{PlateText: str("OCR_FAILED"), ErrorMessage: "model missing", Confidence: f64(0)},
		},
	}

	want := ImageView{
		ResultID:          "abc123",
		OverviewURL:       base + "/results/abc123/plate_detection.jpg",
		OverviewAvailable: true,
		Plates: []PlateView{
			{
				Index:          0,
				Label:          "Plate 1",
				OCRText:        "KA01AB1234",
				BoxText:        "X1: 10.0, Y1: 20.5, X2: 110.3, Y2: N/A",
				Confidence:     "87.35%",
				CroppedURL:     base + "/results/abc123/cropped_plate_0.jpg",
				ImageAvailable: true,
				Legend:         []LegendSwatch{{Char: "K", CSS: "rgb(255,0,0)"}},
			},
			{
				Index:          1,
				Label:          "Plate 2",
				OCRText:        "OCR_FAILED",
				OCRFailed:      true,
				ErrorMessage:   "model missing",
				BoxText:        "X1: N/A, Y1: N/A, X2: N/A, Y2: N/A",
				CroppedURL:     base + "/results/abc123/cropped_plate_1.jpg",
				ImageAvailable: true,
			},
		},
	}
	if diff := cmp.Diff(want, Image(base, res)); diff != "" {
		t.Errorf("Image() mismatch (-want +got):\n%s", diff)
	}
}

func TestImage_MissingResultID(t *testing.T) {
	v := Image(base, &backend.ImageResult{Plates: []backend.PlateDetection{{}}})
	assert.False(t, v.OverviewAvailable)
	p := v.Plates[0]
	assert.False(t, p.ImageAvailable)
	assert.Empty(t, p.CroppedURL)
	assert.Equal(t, ImageUnavailable, p.Unavailable)
	assert.Equal(t, NotAvailable, p.OCRText)
	assert.Empty(t, p.Confidence)
}

func TestImage_Empty(t *testing.T) {
	assert.Equal(t, NoPlatesDetected, Image(base, nil).Empty)
	v := Image(base, &backend.ImageResult{ResultID: "x"})
	assert.Equal(t, NoPlatesDetected, v.Empty)
	assert.Empty(t, v.Plates)
}

func TestVideo(t *testing.T) {
	res := &backend.VideoResult{
		ResultID: "vid-9",
		Vehicles: []backend.TrackedVehicle{
			{
				VehicleID:   "7",
				VehicleType: "car",
				BestFrame: &backend.BestFrame{
					OCRText:     "MH12DE1433",
					Confidence:  f64(0.873),
					BoundingBox: &backend.Box{X1: f64(5), Y1: f64(6), X2: f64(7), Y2: f64(8)},
					FrameInfo:   "118",
				},
			},
			{VehicleID: "12"},
		},
	}

	want := VideoView{
		ResultID: "vid-9",
		Vehicles: []VehicleView{
			{
				VehicleID:      "7",
				Title:          "Vehicle 7",
				Type:           "Car",
				OCRText:        "MH12DE1433",
				Confidence:     "87.3%",
				Frame:          "118",
				BoxText:        "X1: 5.0, Y1: 6.0, X2: 7.0, Y2: 8.0",
				BestURL:        base + "/results/vid-9/vehicle_7_best.jpg",
				ImageAvailable: true,
			},
			{
				VehicleID:      "12",
				Title:          "Vehicle 12",
				Type:           UnknownVehicleType,
				OCRText:        NotAvailable,
				Confidence:     NotAvailable,
				Frame:          NotAvailable,
				BoxText:        "X1: N/A, Y1: N/A, X2: N/A, Y2: N/A",
				BestURL:        base + "/results/vid-9/vehicle_12_best.jpg",
				ImageAvailable: true,
			},
		},
	}
	if diff := cmp.Diff(want, Video(base, res)); diff != "" {
		t.Errorf("Video() mismatch (-want +got):\n%s", diff)
	}
}

func TestVideo_NoURLWithoutResultID(t *testing.T) {
	v := Video(base, &backend.VideoResult{Vehicles: []backend.TrackedVehicle{{VehicleID: "3"}}})
	for _, veh := range v.Vehicles {
		assert.False(t, veh.ImageAvailable)
		assert.Equal(t, ImageUnavailable, veh.Unavailable)
		assert.False(t, strings.Contains(veh.BestURL, "undefined") || strings.Contains(veh.BestURL, "null"))
	}
}

func TestVideo_BackendError(t *testing.T) {
	v := Video(base, &backend.VideoResult{Error: "Could not open video file."})
	assert.Equal(t, "Could not open video file.", v.Error)
	assert.Equal(t, NoVehiclesDetected, v.Empty)
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Truck", Capitalize("truck"))
	assert.Equal(t, "Über", Capitalize("über"))
	assert.Equal(t, "", Capitalize(""))
}
