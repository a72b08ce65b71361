// Package render maps backend detection results to display records. It is
// pure: no I/O, no clocks, no shared state.
package render

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
)

// Display fallbacks.
const (
	NotAvailable        = "N/A"
	UnknownVehicleType  = "Unknown"
	ImageUnavailable    = "Cropped image not available"
	NoPlatesDetected    = "No license plates detected"
	NoVehiclesDetected  = "No vehicles or license plates detected"
	OCRFailed           = "OCR_FAILED"
	PlateDetectionImage = "plate_detection.jpg"
)

// ArtifactURL builds {baseURL}/results/{resultID}/{artifact}. It returns
// false, and no URL, when resultID or artifact is empty.
func ArtifactURL(baseURL, resultID, artifact string) (string, bool) {
	resultID = strings.TrimSpace(resultID)
	if resultID == "" || artifact == "" {
		return "", false
	}
	return strings.TrimRight(baseURL, "/") + "/results/" + url.PathEscape(resultID) + "/" + url.PathEscape(artifact), true
}

// CroppedPlateArtifact names the crop of the index-th plate of an image result.
func CroppedPlateArtifact(index int) string {
	return fmt.Sprintf("cropped_plate_%d.jpg", index)
}

// VehicleBestArtifact names the best shot of a tracked vehicle.
func VehicleBestArtifact(vehicleID string) string {
	return "vehicle_" + vehicleID + "_best.jpg"
}

// LegendSwatch is one character of a plate's colour legend.
type LegendSwatch struct {
	Char string `json:"char"`
	CSS  string `json:"css"`
}

// PlateView is one detected plate of an image result.
type PlateView struct {
	Index          int            `json:"index"`
	Label          string         `json:"label"`
	OCRText        string         `json:"ocr_text"`
	OCRFailed      bool           `json:"ocr_failed"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	BoxText        string         `json:"box_text"`
	Confidence     string         `json:"confidence"`
	CroppedURL     string         `json:"cropped_url"`
	ImageAvailable bool           `json:"image_available"`
	Unavailable    string         `json:"unavailable,omitempty"`
	Legend         []LegendSwatch `json:"legend,omitempty"`
}

// ImageView is the display form of an image result.
type ImageView struct {
	ResultID          string      `json:"result_id"`
	OverviewURL       string      `json:"overview_url"`
	OverviewAvailable bool        `json:"overview_available"`
	Plates            []PlateView `json:"plates"`
	Empty             string      `json:"empty,omitempty"`
}

// Image maps an image result. A nil result renders as empty.
func Image(baseURL string, res *backend.ImageResult) ImageView {
	var v ImageView
	if res == nil || len(res.Plates) == 0 {
		v.Empty = NoPlatesDetected
		if res == nil {
			return v
		}
	}
	v.ResultID = res.ResultID
	v.OverviewURL, v.OverviewAvailable = ArtifactURL(baseURL, res.ResultID, PlateDetectionImage)

	for i, p := range res.Plates {
		pv := PlateView{
			Index:        i,
			Label:        fmt.Sprintf("Plate %d", i+1),
			OCRText:      NotAvailable,
			ErrorMessage: p.ErrorMessage,
			BoxText:      BoxText(p.BoundingBox),
		}
		if p.PlateText != nil && *p.PlateText != "" {
			pv.OCRText = *p.PlateText
			pv.OCRFailed = *p.PlateText == OCRFailed
		}
		if p.Confidence != nil && *p.Confidence != 0 {
			pv.Confidence = FormatImageConfidence(*p.Confidence)
		}
		pv.CroppedURL, pv.ImageAvailable = ArtifactURL(baseURL, res.ResultID, CroppedPlateArtifact(i))
		if !pv.ImageAvailable {
			pv.Unavailable = ImageUnavailable
		}
		for _, e := range p.CharColorLegend {
			pv.Legend = append(pv.Legend, LegendSwatch{
				Char: e.Char,
				CSS:  fmt.Sprintf("rgb(%d,%d,%d)", e.Color[0], e.Color[1], e.Color[2]),
			})
		}
		v.Plates = append(v.Plates, pv)
	}
	return v
}

// VehicleView is one tracked vehicle of a video result.
type VehicleView struct {
	VehicleID      string `json:"vehicle_id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	OCRText        string `json:"ocr_text"`
	Confidence     string `json:"confidence"`
	Frame          string `json:"frame"`
	BoxText        string `json:"box_text"`
	BestURL        string `json:"best_url"`
	ImageAvailable bool   `json:"image_available"`
	Unavailable    string `json:"unavailable,omitempty"`
}

// VideoView is the display form of a video result.
type VideoView struct {
	ResultID string        `json:"result_id"`
	Vehicles []VehicleView `json:"vehicles"`
	Empty    string        `json:"empty,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Video maps a video result. A nil result renders as empty.
func Video(baseURL string, res *backend.VideoResult) VideoView {
	var v VideoView
	if res == nil || len(res.Vehicles) == 0 {
		v.Empty = NoVehiclesDetected
		if res == nil {
			return v
		}
	}
	v.ResultID = res.ResultID
	v.Error = res.Error

	for _, veh := range res.Vehicles {
		vv := VehicleView{
			VehicleID:  veh.VehicleID,
			Title:      "Vehicle " + veh.VehicleID,
			Type:       Capitalize(veh.VehicleType),
			OCRText:    NotAvailable,
			Confidence: NotAvailable,
			Frame:      NotAvailable,
			BoxText:    BoxText(nil),
		}
		if vv.Type == "" {
			vv.Type = UnknownVehicleType
		}
		if f := veh.BestFrame; f != nil {
			if f.OCRText != "" {
				vv.OCRText = f.OCRText
			}
			if f.Confidence != nil && *f.Confidence != 0 {
				vv.Confidence = FormatVideoConfidence(*f.Confidence)
			}
			if f.FrameInfo != "" {
				vv.Frame = f.FrameInfo
			}
			vv.BoxText = BoxText(f.BoundingBox)
		}
		if veh.VehicleID != "" {
			vv.BestURL, vv.ImageAvailable = ArtifactURL(baseURL, res.ResultID, VehicleBestArtifact(veh.VehicleID))
		}
		if !vv.ImageAvailable {
			vv.Unavailable = ImageUnavailable
		}
		v.Vehicles = append(v.Vehicles, vv)
	}
	return v
}

// BoxText renders a bounding box as "X1: 10.0, Y1: 20.5, X2: N/A, Y2: 60.0".
func BoxText(b *backend.Box) string {
	var c [4]*float64
	if b != nil {
		c = [4]*float64{b.X1, b.Y1, b.X2, b.Y2}
	}
	names := [4]string{"X1", "Y1", "X2", "Y2"}
	parts := make([]string, 4)
	for i, p := range c {
		val := NotAvailable
		if p != nil {
			val = FormatCoordinate(*p)
		}
		parts[i] = names[i] + ": " + val
	}
	return strings.Join(parts, ", ")
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
