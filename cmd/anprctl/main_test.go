package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, mock *httputil.MockHTTPClient, args ...string) result {
	t.Helper()
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-backend", "http://anpr.test"}, args...), &stdout, &stderr, mock)
	return result{code, stdout.String(), stderr.String()}
}

func writePNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	path := filepath.Join(t.TempDir(), "car.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestUsage(t *testing.T) {
	r := runCLI(t, httputil.NewMockHTTPClient())
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "Usage: anprctl")

	r = runCLI(t, httputil.NewMockHTTPClient(), "bogus")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, `unknown command "bogus"`)
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &bytes.Buffer{}, httputil.NewMockHTTPClient())
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "anprctl "))
}

func TestHealth(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{}`)
	r := runCLI(t, mock, "health")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "Backend Online\n", r.stdout)
	assert.Equal(t, "http://anpr.test/", mock.GetRequest(0).URL.String())
}

func TestHealthOffline(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))
	r := runCLI(t, mock, "health")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "Backend Offline")
	assert.Contains(t, r.stdout, "http://anpr.test")
	assert.Contains(t, r.stderr, "error (network unreachable)")
}

func TestOCRMode(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"ocr_mode":"local"}`)
	r := runCLI(t, mock, "ocr-mode")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "Local OCR\n", r.stdout)

	mock = httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"ocr_mode":"roboflow"}`)
	r = runCLI(t, mock, "ocr-mode", "roboflow")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "Switched to Roboflow OCR\n", r.stdout)

	var body map[string]string
	require.NoError(t, json.Unmarshal(mock.GetBody(0), &body))
	assert.Equal(t, "roboflow", body["ocr_mode"])
}

func TestOCRModeInvalid(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	r := runCLI(t, mock, "ocr-mode", "cloud")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "invalid OCR mode")
	assert.Equal(t, 0, mock.RequestCount())
}

func TestStats(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`{"totalInferences": 1234, "avgConfidence": 87, "ocrFailureRate": 12, "avgProcessingTime": 145}`)
	r := runCLI(t, mock, "stats")
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "Total inferences")
	assert.Contains(t, r.stdout, "1234")
	assert.Contains(t, r.stdout, "145ms")
}

func TestStatsNonOK(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, `{"detail":"db down"}`)
	r := runCLI(t, mock, "stats")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "error (non-ok status)")
}

func TestRecent(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`[{"plate":"ABC123","confidence":94,"status":"Success","timestamp":"2024-01-15 14:30:22"},
		  {"plate":"XYZ789","confidence":87,"status":"Success","timestamp":"2024-01-15 14:28:15"}]`)
	r := runCLI(t, mock, "recent")
	assert.Equal(t, 0, r.code)
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PLATE")
	assert.Contains(t, lines[1], "ABC123")
	assert.Contains(t, lines[2], "XYZ789")
}

func TestImage(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{
		"result_id": "r1",
		"results": [
			{"plate_text": "ABC123", "confidence": 87.345, "bounding_box": {"x1": 1, "y1": 2, "x2": 3, "y2": 4}},
			{"plate_text": null, "confidence": 50}
		]
	}`)
	r := runCLI(t, mock, "image", writePNG(t))
	assert.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Result r1")
	assert.Contains(t, r.stdout, "Plate 1: ABC123")
	assert.Contains(t, r.stdout, "confidence: 87.35%")
	assert.Contains(t, r.stdout, "Plate 2: N/A")
	assert.Contains(t, r.stdout, "crop: http://anpr.test/results/r1/cropped_plate_0.jpg")
	assert.Contains(t, r.stdout, "n=2")

	req := mock.GetRequest(0)
	assert.Equal(t, "/api/v1/process-image", req.URL.Path)
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data")
}

func TestImageRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	mock := httputil.NewMockHTTPClient()
	r := runCLI(t, mock, "image", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unsupported file")
	assert.Equal(t, 0, mock.RequestCount())
}

func TestImageMissingArgument(t *testing.T) {
	r := runCLI(t, httputil.NewMockHTTPClient(), "image")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "expected exactly one file argument")
}

func TestImagePlotAndSave(t *testing.T) {
	dir := t.TempDir()
	plotPath := filepath.Join(dir, "chart.png")
	saveDir := filepath.Join(dir, "artifacts")

	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"result_id": "r1", "results": [{"plate_text": "ABC123", "confidence": 90}]}`).
		AddResponse(http.StatusNotFound, `{"detail":"Not Found"}`).
		AddResponse(http.StatusOK, "crop-bytes")

	r := runCLI(t, mock, "-plot", plotPath, "-save", saveDir, "image", writePNG(t))
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "chart written to "+plotPath)
	assert.Contains(t, r.stderr, "skipping plate_detection.jpg")

	chart, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(chart, []byte("\x89PNG")))

	crop, err := os.ReadFile(filepath.Join(saveDir, "cropped_plate_0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "crop-bytes", string(crop))
	assert.Equal(t, "/results/r1/cropped_plate_0.jpg", mock.GetRequest(2).URL.Path)
}

func TestVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	mp4 := append([]byte{0, 0, 0, 24}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)
	require.NoError(t, os.WriteFile(path, mp4, 0o644))

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{
		"result_id": "v1",
		"tracked_vehicles": [{
			"vehicle_id": 3,
			"vehicle_type": "truck",
			"best_frames": [{"ocr_result": "TRK001", "licence_plate_details": {"confidence": 0.9125}, "frame_info": "42"}]
		}]
	}`)
	r := runCLI(t, mock, "video", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Vehicle 3 (Truck): TRK001")
	assert.Contains(t, r.stdout, "confidence: 91.3%")
	assert.Contains(t, r.stdout, "best shot: http://anpr.test/results/v1/vehicle_3_best.jpg")
}

func TestVideoBackendError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	mp4 := append([]byte{0, 0, 0, 24}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)
	require.NoError(t, os.WriteFile(path, mp4, 0o644))

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"error": "video decode failed"}`)
	r := runCLI(t, mock, "video", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "video decode failed")
}

func TestVideoSaveSanitizesVehicleID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	mp4 := append([]byte{0, 0, 0, 24}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)
	require.NoError(t, os.WriteFile(path, mp4, 0o644))
	saveDir := filepath.Join(dir, "out")

	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"result_id": "v1", "tracked_vehicles": [{"vehicle_id": "..\\evil", "best_frames": []}]}`).
		AddResponse(http.StatusOK, "shot")

	r := runCLI(t, mock, "-save", saveDir, "video", path)
	require.Equal(t, 0, r.code, r.stderr)

	entries, err := os.ReadDir(saveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vehicle_.._evil_best.jpg", entries[0].Name())
}
