package backend

import (
	"errors"
	"fmt"
)

// OCRMode selects the text recogniser the backend applies to cropped plates.
type OCRMode string

const (
	OCRModeLocal    OCRMode = "local"
	OCRModeRoboflow OCRMode = "roboflow"
)

// ErrInvalidOCRMode is returned for modes other than local and roboflow.
var ErrInvalidOCRMode = errors.New("invalid OCR mode")

// ParseOCRMode validates s as an OCR mode.
func ParseOCRMode(s string) (OCRMode, error) {
	switch m := OCRMode(s); m {
	case OCRModeLocal, OCRModeRoboflow:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOCRMode, s)
	}
}

// Toggle returns the other mode.
func (m OCRMode) Toggle() OCRMode {
	if m == OCRModeLocal {
		return OCRModeRoboflow
	}
	return OCRModeLocal
}

// Label is the button text shown for the mode.
func (m OCRMode) Label() string {
	if m == OCRModeRoboflow {
		return "Roboflow OCR"
	}
	return "Local OCR"
}

// Upload is a file handed to one of the processing endpoints.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Stats are the aggregate counters served by /api/v1/stats.
type Stats struct {
	TotalInferences   float64 `json:"totalInferences"`
	AvgConfidence     float64 `json:"avgConfidence"`
	OCRFailureRate    float64 `json:"ocrFailureRate"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
}

// RecentDetection is one row of /api/v1/recent-detections.
type RecentDetection struct {
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
}

// Box is a plate bounding box in pixel coordinates. Coordinates the backend
// left out are nil.
type Box struct {
	X1, Y1, X2, Y2 *float64
}

// RGB is one colour of a character legend.
type RGB [3]int

// LegendEntry maps a recognised character to the outline colour drawn
// around it on the cropped plate image.
type LegendEntry struct {
	Char  string
	Color RGB
}

// PlateDetection is one entry of an image result. Confidence is on the
// 0-100 scale the image endpoint reports.
type PlateDetection struct {
	PlateText       *string
	BoundingBox     *Box
	Confidence      *float64
	CharColorLegend []LegendEntry
	ErrorMessage    string
}

// ImageResult is the decoded /api/v1/process-image response.
type ImageResult struct {
	ResultID          string
	Plates            []PlateDetection
	AnnotatedImageURL string
}

// BestFrame is the highest-confidence plate shot of a tracked vehicle.
// Confidence is the 0-1 fraction the video endpoint reports.
type BestFrame struct {
	OCRText     string
	Confidence  *float64
	BoundingBox *Box
	FrameInfo   string
}

// TrackedVehicle is one entry of a video result.
type TrackedVehicle struct {
	VehicleID   string
	VehicleType string
	BestFrame   *BestFrame
	ShotCount   int
}

// VideoResult is the decoded /api/v1/process-video response. Error carries
// an error message the backend reported inside a 2xx body.
type VideoResult struct {
	ResultID string
	Vehicles []TrackedVehicle
	Error    string
}

// ItemCount returns the number of plates found.
func (r *ImageResult) ItemCount() int {
	if r == nil {
		return 0
	}
	return len(r.Plates)
}

// ItemCount returns the number of vehicles found.
func (r *VideoResult) ItemCount() int {
	if r == nil {
		return 0
	}
	return len(r.Vehicles)
}
