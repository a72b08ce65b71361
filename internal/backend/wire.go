package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// The wire types mirror each endpoint's JSON exactly. The image endpoint
// reports plate_text and 0-100 confidences; the video endpoint reports
// ocr_result and 0-1 confidences. Adapters below convert them to the
// domain types without unifying those differences.

// flexString accepts a JSON string or number. The backend emits tracker ids
// and frame numbers as integers but a result id as a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type wireBox struct {
	X1 *float64 `json:"x1"`
	Y1 *float64 `json:"y1"`
	X2 *float64 `json:"x2"`
	Y2 *float64 `json:"y2"`
}

type wireOCRMode struct {
	OCRMode string `json:"ocr_mode"`
}

type wirePlate struct {
	PlateText       *string         `json:"plate_text"`
	BoundingBox     *wireBox        `json:"bounding_box"`
	Confidence      *float64        `json:"confidence"`
	CharColorLegend json.RawMessage `json:"char_color_legend"`
	ErrorMessage    string          `json:"error_message"`
}

type wireImageResponse struct {
	ResultID          flexString  `json:"result_id"`
	ResultIDCamel     flexString  `json:"resultId"`
	UUID              flexString  `json:"uuid"`
	ID                flexString  `json:"id"`
	Results           []wirePlate `json:"results"`
	AnnotatedImageURL string      `json:"annotated_image_url"`
}

type wirePlateDetails struct {
	Confidence  *float64 `json:"confidence"`
	BoundingBox *wireBox `json:"bounding_box"`
}

type wireFrame struct {
	OCRResult    *string           `json:"ocr_result"`
	PlateDetails *wirePlateDetails `json:"licence_plate_details"`
	FrameInfo    flexString        `json:"frame_info"`
}

type wireVehicle struct {
	VehicleID   flexString  `json:"vehicle_id"`
	VehicleType *string     `json:"vehicle_type"`
	BestFrames  []wireFrame `json:"best_frames"`
}

type wireVideoResponse struct {
	ResultID        flexString    `json:"result_id"`
	TrackedVehicles []wireVehicle `json:"tracked_vehicles"`
	Error           string        `json:"error"`
}

func adaptBox(b *wireBox) *Box {
	if b == nil {
		return nil
	}
	return &Box{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2}
}

// adaptImageResult converts the process-image payload. The result id is
// taken from result_id, falling back to the alternative keys older backend
// builds used.
func adaptImageResult(w *wireImageResponse) (*ImageResult, error) {
	res := &ImageResult{
		ResultID:          firstNonEmpty(w.ResultID, w.ResultIDCamel, w.UUID, w.ID),
		AnnotatedImageURL: w.AnnotatedImageURL,
		Plates:            make([]PlateDetection, 0, len(w.Results)),
	}
	for i, p := range w.Results {
		legend, err := decodeLegend(p.CharColorLegend)
		if err != nil {
			return nil, fmt.Errorf("results[%d].char_color_legend: %w", i, err)
		}
		res.Plates = append(res.Plates, PlateDetection{
			PlateText:       p.PlateText,
			BoundingBox:     adaptBox(p.BoundingBox),
			Confidence:      p.Confidence,
			CharColorLegend: legend,
			ErrorMessage:    p.ErrorMessage,
		})
	}
	return res, nil
}

// adaptVideoResult converts the process-video payload, keeping only the
// first (best) frame of each vehicle.
func adaptVideoResult(w *wireVideoResponse) *VideoResult {
	res := &VideoResult{
		ResultID: strings.TrimSpace(string(w.ResultID)),
		Error:    w.Error,
		Vehicles: make([]TrackedVehicle, 0, len(w.TrackedVehicles)),
	}
	for _, v := range w.TrackedVehicles {
		tv := TrackedVehicle{
			VehicleID: string(v.VehicleID),
			ShotCount: len(v.BestFrames),
		}
		if v.VehicleType != nil {
			tv.VehicleType = *v.VehicleType
		}
		if len(v.BestFrames) > 0 {
			f := v.BestFrames[0]
			best := &BestFrame{FrameInfo: string(f.FrameInfo)}
			if f.OCRResult != nil {
				best.OCRText = *f.OCRResult
			}
			if f.PlateDetails != nil {
				best.Confidence = f.PlateDetails.Confidence
				best.BoundingBox = adaptBox(f.PlateDetails.BoundingBox)
			}
			tv.BestFrame = best
		}
		res.Vehicles = append(res.Vehicles, tv)
	}
	return res
}

// decodeLegend reads a {"A": [r, g, b], ...} object preserving key order,
// which encoding/json maps would lose. Entries with fewer than three
// components are skipped.
func decodeLegend(raw json.RawMessage) ([]LegendEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var entries []LegendEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		char, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		var comps []float64
		if err := dec.Decode(&comps); err != nil {
			return nil, fmt.Errorf("colour for %q: %w", char, err)
		}
		if len(comps) < 3 {
			continue
		}
		entries = append(entries, LegendEntry{
			Char:  char,
			Color: RGB{clampByte(comps[0]), clampByte(comps[1]), clampByte(comps[2])},
		})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func clampByte(v float64) int {
	return int(math.Max(0, math.Min(255, math.Round(v))))
}

func firstNonEmpty(vals ...flexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}
