package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/db"
	"github.com/banshee-data/anpr.dashboard/internal/health"
	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/render"
	"github.com/banshee-data/anpr.dashboard/internal/report"
	"github.com/banshee-data/anpr.dashboard/internal/settings"
	"github.com/banshee-data/anpr.dashboard/internal/upload"
	"github.com/banshee-data/anpr.dashboard/internal/version"
)

// layoutData is shared by every page.
type layoutData struct {
	Title       string
	Path        string
	Theme       settings.Theme
	OCRMode     backend.OCRMode
	Health      health.Snapshot
	OfflineHint string
	Toasts      []notify.Toast
	Version     string
}

type chartLink struct {
	Title string
	Path  string
}

var indexCharts = []chartLink{
	{"Daily Inferences", "/charts/daily"},
	{"Confidence Distribution", "/charts/confidence"},
	{"Processing Time", "/charts/processing-time"},
	{"Model Performance", "/charts/models"},
}

type indexData struct {
	layoutData
	Data        backend.Snapshot
	Models      []ModelPerformance
	Charts      []chartLink
	Submissions []upload.Submission
	Counts      db.SubmissionCounts
	HasHistory  bool
}

// mediaData is the upload page of either kind. Exactly one of Image and
// Video is set once a result is available.
type mediaData struct {
	layoutData
	Kind        upload.Kind
	State       upload.State
	FileName    string
	Size        int
	PreviewURL  string
	ResultID    string
	Error       string
	SubmittedAt time.Time
	CompletedAt time.Time
	Image       *render.ImageView
	Video       *render.VideoView
	ChartURL    string
}

func (s *Server) layout(title, path string) layoutData {
	snap := s.poller.Snapshot()
	l := layoutData{
		Title:   title,
		Path:    path,
		Theme:   s.settings.Theme(),
		OCRMode: s.settings.OCRMode(),
		Health:  snap,
		Toasts:  s.feed.Recent(s.toastLimit),
		Version: version.String(),
	}
	if snap.Status == health.Offline {
		l.OfflineHint = health.OfflineHint(s.client.BaseURL())
	}
	return l
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		monitoring.Errorf("render %s: %v", name, err)
		httputil.InternalServerError(w, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// redirectBack sends the browser to the form's "next" value when it names
// a local path, otherwise to fallback.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	next := r.FormValue("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		next = fallback
	}
	httputil.SeeOther(w, r, next)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	statsCtx, cancel := context.WithTimeout(r.Context(), s.statsTimeout)
	defer cancel()
	data := indexData{
		layoutData: s.layout("ANPR Dashboard", r.URL.Path),
		Data:       backend.LoadDashboardData(statsCtx, s.client),
		Models:     SampleModelPerformance,
		Charts:     indexCharts,
	}
	if s.history != nil {
		subs, err := s.history.RecentSubmissions(r.Context(), s.recentLimit)
		if err != nil {
			monitoring.Warnf("loading submission history: %v", err)
		}
		counts, err := s.history.SubmissionCounts(r.Context())
		if err != nil {
			monitoring.Warnf("counting submissions: %v", err)
		}
		data.Submissions, data.Counts, data.HasHistory = subs, counts, true
	}
	s.renderPage(w, "index.html", data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.poller.Refresh()
	redirectBack(w, r, "/")
}

func (s *Server) handleToggleOCRMode(w http.ResponseWriter, r *http.Request) {
	if _, err := s.settings.ToggleOCRMode(r.Context(), s.client); err != nil {
		monitoring.Warnf("toggle OCR mode: %v", err)
	}
	redirectBack(w, r, "/")
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	if _, err := s.settings.ToggleTheme(r.Context()); err != nil {
		monitoring.Warnf("toggle theme: %v", err)
	}
	redirectBack(w, r, "/")
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.BadRequest(w, "invalid toast id")
		return
	}
	s.feed.Dismiss(id)
	redirectBack(w, r, "/")
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	item, ok := s.previews.Get(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, "preview not found")
		return
	}
	w.Header().Set("Content-Type", item.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, item.Name, time.Time{}, bytes.NewReader(item.Data))
}

// handleArtifact proxies a result artifact from the backend so pages can
// reference it with a dashboard-relative URL.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.client.FetchArtifact(r.Context(), r.PathValue("resultID"), r.PathValue("name"))
	if err != nil {
		var berr *backend.Error
		if errors.As(err, &berr) && berr.Kind == backend.NonOKStatus && berr.StatusCode == http.StatusNotFound {
			httputil.NotFound(w, "artifact not found")
			return
		}
		httputil.BadGateway(w, err.Error())
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// statusResponse is the JSON form of the status card.
type statusResponse struct {
	Status      string    `json:"status"`
	Label       string    `json:"label"`
	LastChecked time.Time `json:"last_checked,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	BackendURL  string    `json:"backend_url"`
	OCRMode     string    `json:"ocr_mode"`
	Theme       string    `json:"theme"`
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.poller.Snapshot()
	httputil.WriteJSONOK(w, statusResponse{
		Status:      snap.Status.String(),
		Label:       snap.Status.Label(),
		LastChecked: snap.LastChecked,
		LastError:   snap.LastError,
		BackendURL:  s.client.BaseURL(),
		OCRMode:     string(s.settings.OCRMode()),
		Theme:       string(s.settings.Theme()),
	})
}

// mediaPage describes the routes of one upload kind.
type mediaPage[R any] struct {
	path     string
	template string
	title    string
	// fill adds the rendered result to the page.
	fill func(*mediaData, R)
	// plot writes a PNG confidence chart of the result.
	plot func(io.Writer, R) error
}

func mountMedia[R any](s *Server, mux *http.ServeMux, c *upload.Controller[R], p mediaPage[R]) {
	mux.HandleFunc("GET "+p.path, func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, p.template, buildMediaData(s, c, p, r.URL.Path))
	})

	mux.HandleFunc("POST "+p.path+"/select", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile(backend.UploadField)
		if err != nil {
			s.feed.Error(fmt.Sprintf("No %s file received", c.Kind()))
			redirectBack(w, r, p.path)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("reading upload: %v", err))
			return
		}
		err = c.Select(backend.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
		switch {
		case errors.Is(err, upload.ErrUnsupportedFile):
			s.feed.Error(fmt.Sprintf("Unsupported %s file", c.Kind()))
		case err != nil:
			monitoring.Warnf("select %s: %v", c.Kind(), err)
		}
		redirectBack(w, r, p.path)
	})

	mux.HandleFunc("POST "+p.path+"/submit", func(w http.ResponseWriter, r *http.Request) {
		if err := c.SubmitAsync(s.bg); err != nil && !errors.Is(err, upload.ErrNoSelection) {
			monitoring.Infof("submit %s: %v", c.Kind(), err)
		}
		redirectBack(w, r, p.path)
	})

	mux.HandleFunc("POST "+p.path+"/reset", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Reset(); err != nil {
			monitoring.Infof("reset %s: %v", c.Kind(), err)
		}
		redirectBack(w, r, p.path)
	})

	mux.HandleFunc("GET /api"+p.path, func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, buildMediaData(s, c, p, r.URL.Path).api())
	})

	mux.HandleFunc("GET /charts/session"+p.path+".png", func(w http.ResponseWriter, r *http.Request) {
		v := c.Snapshot()
		if !v.HasResult {
			httputil.NotFound(w, "no result")
			return
		}
		var buf bytes.Buffer
		if err := p.plot(&buf, v.Result); err != nil {
			if errors.Is(err, errNoConfidences) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	})
}

func buildMediaData[R any](s *Server, c *upload.Controller[R], p mediaPage[R], path string) mediaData {
	v := c.Snapshot()
	d := mediaData{
		layoutData:  s.layout(p.title, path),
		Kind:        v.Kind,
		State:       v.State,
		FileName:    v.FileName,
		Size:        v.Size,
		ResultID:    v.ResultID,
		Error:       v.Error,
		SubmittedAt: v.SubmittedAt,
		CompletedAt: v.CompletedAt,
	}
	if v.PreviewID != "" {
		d.PreviewURL = "/preview/" + v.PreviewID
	}
	if v.HasResult {
		p.fill(&d, v.Result)
		d.ChartURL = "/charts/session" + p.path + ".png"
	}
	return d
}

// Pages link artifacts through the dashboard's own /results proxy, so
// they render with an empty base URL.
func (s *Server) fillImage(d *mediaData, res *backend.ImageResult) {
	view := render.Image("", res)
	d.Image = &view
}

func (s *Server) fillVideo(d *mediaData, res *backend.VideoResult) {
	view := render.Video("", res)
	d.Video = &view
}

// mediaResponse is the JSON form of an upload page. Artifact URLs in
// Image and Video are relative to the dashboard.
type mediaResponse struct {
	Kind        string            `json:"kind"`
	State       string            `json:"state"`
	FileName    string            `json:"file_name,omitempty"`
	Size        int               `json:"size,omitempty"`
	PreviewURL  string            `json:"preview_url,omitempty"`
	ResultID    string            `json:"result_id,omitempty"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at,omitzero"`
	CompletedAt time.Time         `json:"completed_at,omitzero"`
	Image       *render.ImageView `json:"image,omitempty"`
	Video       *render.VideoView `json:"video,omitempty"`
}

func (d mediaData) api() mediaResponse {
	return mediaResponse{
		Kind:        string(d.Kind),
		State:       d.State.String(),
		FileName:    d.FileName,
		Size:        d.Size,
		PreviewURL:  d.PreviewURL,
		ResultID:    d.ResultID,
		Error:       d.Error,
		SubmittedAt: d.SubmittedAt,
		CompletedAt: d.CompletedAt,
		Image:       d.Image,
		Video:       d.Video,
	}
}

var errNoConfidences = report.ErrNoData

func plotImage(w io.Writer, res *backend.ImageResult) error {
	labels, values := report.ImageConfidences(res)
	return writePlot(w, "Plate confidence (%)", labels, values)
}

func plotVideo(w io.Writer, res *backend.VideoResult) error {
	labels, values := report.VideoConfidences(res)
	return writePlot(w, "Vehicle confidence (%)", labels, values)
}

func writePlot(w io.Writer, title string, labels []string, values []float64) error {
	p, err := report.ConfidencePlot(title, labels, values)
	if err != nil {
		return err
	}
	return report.WritePNG(p, w)
}
