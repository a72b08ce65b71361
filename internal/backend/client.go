// Package backend is the client for the external ANPR detection service.
//
// Every method makes exactly one HTTP attempt and reports failures as an
// *Error classified as NetworkUnreachable, NonOKStatus or MalformedBody.
// Nothing is cached or persisted here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banshee-data/anpr.dashboard/internal/httputil"
)

// DefaultBaseURL is where the detection backend listens in a local setup.
const DefaultBaseURL = "http://localhost:8000"

// DefaultTimeout bounds a single request. Video processing runs inside the
// request on the backend, so this is generous.
const DefaultTimeout = 10 * time.Minute

const maxResponseBytes = 64 << 20

// Endpoint paths.
const (
	PathHealth           = "/"
	PathOCRMode          = "/api/v1/ocr-mode"
	PathStats            = "/api/v1/stats"
	PathRecentDetections = "/api/v1/recent-detections"
	PathProcessImage     = "/api/v1/process-image"
	PathProcessVideo     = "/api/v1/process-video"
	PathResults          = "/results"
)

// UploadField is the multipart field the processing endpoints read.
const UploadField = "file"

// Client talks to one detection backend.
type Client struct {
	http    httputil.HTTPClient
	baseURL string
}

// NewClient creates a client for baseURL. A nil httpClient uses a standard
// client with DefaultTimeout; an empty baseURL uses DefaultBaseURL.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil, DefaultTimeout)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: baseURL}
}

// BaseURL returns the backend address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth succeeds iff GET / answers with a 2xx status.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := c.do(ctx, "health", http.MethodGet, PathHealth, nil, "")
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// GetOCRMode returns the mode the backend currently applies.
func (c *Client) GetOCRMode(ctx context.Context) (OCRMode, error) {
	var w wireOCRMode
	if err := c.getJSON(ctx, "get-ocr-mode", PathOCRMode, &w); err != nil {
		return "", err
	}
	return OCRMode(w.OCRMode), nil
}

// SetOCRMode switches the backend's OCR mode and returns the echoed value.
// An invalid mode fails before any request is made.
func (c *Client) SetOCRMode(ctx context.Context, mode OCRMode) (OCRMode, error) {
	if _, err := ParseOCRMode(string(mode)); err != nil {
		return "", err
	}
	payload, err := json.Marshal(wireOCRMode{OCRMode: string(mode)})
	if err != nil {
		return "", fmt.Errorf("encode ocr mode: %w", err)
	}

	resp, err := c.do(ctx, "set-ocr-mode", http.MethodPost, PathOCRMode, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	defer drain(resp)

	var w wireOCRMode
	if err := decodeBody("set-ocr-mode", resp.Body, &w); err != nil {
		return "", err
	}
	return OCRMode(w.OCRMode), nil
}

// GetStats returns the backend's aggregate counters.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.getJSON(ctx, "stats", PathStats, &s); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// GetRecentDetections returns the latest detections, most recent first.
func (c *Client) GetRecentDetections(ctx context.Context) ([]RecentDetection, error) {
	var rows []RecentDetection
	if err := c.getJSON(ctx, "recent-detections", PathRecentDetections, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ProcessImage uploads an image for plate detection.
func (c *Client) ProcessImage(ctx context.Context, file Upload) (*ImageResult, error) {
	const op = "process-image"
	resp, err := c.upload(ctx, op, PathProcessImage, file)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var w wireImageResponse
	if err := decodeBody(op, resp.Body, &w); err != nil {
		return nil, err
	}
	res, err := adaptImageResult(&w)
	if err != nil {
		return nil, &Error{Op: op, Kind: MalformedBody, Err: err}
	}
	return res, nil
}

// ProcessVideo uploads a video for vehicle tracking and plate reading.
func (c *Client) ProcessVideo(ctx context.Context, file Upload) (*VideoResult, error) {
	const op = "process-video"
	resp, err := c.upload(ctx, op, PathProcessVideo, file)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var w wireVideoResponse
	if err := decodeBody(op, resp.Body, &w); err != nil {
		return nil, err
	}
	return adaptVideoResult(&w), nil
}

// FetchArtifact downloads a file the backend saved for a result, such as
// cropped_plate_0.jpg. It returns the bytes and their content type.
func (c *Client) FetchArtifact(ctx context.Context, resultID, name string) ([]byte, string, error) {
	const op = "fetch-artifact"
	if resultID == "" || name == "" || strings.Contains(name, "/") {
		return nil, "", fmt.Errorf("%s: invalid artifact reference %q/%q", op, resultID, name)
	}
	path := PathResults + "/" + url.PathEscape(resultID) + "/" + url.PathEscape(name)

	resp, err := c.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, "", err
	}
	defer drain(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", &Error{Op: op, Kind: MalformedBody, Err: err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ArtifactURL is the absolute address of a saved artifact, or false when
// the result has no id.
func (c *Client) ArtifactURL(resultID, name string) (string, bool) {
	if resultID == "" || name == "" {
		return "", false
	}
	return c.baseURL + PathResults + "/" + url.PathEscape(resultID) + "/" + url.PathEscape(name), true
}

func (c *Client) upload(ctx context.Context, op, path string, file Upload) (*http.Response, error) {
	body, contentType, err := httputil.MultipartFile(UploadField, file.Name, file.ContentType, bytes.NewReader(file.Data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, body, contentType)
}

func (c *Client) getJSON(ctx context.Context, op, path string, v interface{}) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)
	return decodeBody(op, resp.Body, v)
}

// do sends one request. On success the caller owns resp.Body; a non-2xx
// response is consumed here and returned as a NonOKStatus error.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: NetworkUnreachable, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		drain(resp)
		e := &Error{Op: op, Kind: NonOKStatus, StatusCode: resp.StatusCode}
		if detail != "" {
			e.Err = fmt.Errorf("%s", detail)
		}
		return nil, e
	}
	return resp, nil
}

func decodeBody(op string, r io.Reader, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(v); err != nil {
		return &Error{Op: op, Kind: MalformedBody, Err: err}
	}
	return nil
}

// readDetail extracts FastAPI's {"detail": "..."} message, if any.
func readDetail(r io.Reader) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	switch d := body.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}
