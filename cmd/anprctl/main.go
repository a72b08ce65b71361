// Command anprctl talks to an ANPR backend from the terminal.
//
//	anprctl [flags] health
//	anprctl [flags] ocr-mode [local|roboflow]
//	anprctl [flags] stats
//	anprctl [flags] recent
//	anprctl [flags] image <file>
//	anprctl [flags] video <file>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/config"
	"github.com/banshee-data/anpr.dashboard/internal/health"
	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/render"
	"github.com/banshee-data/anpr.dashboard/internal/report"
	"github.com/banshee-data/anpr.dashboard/internal/security"
	"github.com/banshee-data/anpr.dashboard/internal/upload"
	"github.com/banshee-data/anpr.dashboard/internal/version"
)

func main() {
	_ = config.LoadDotEnv(".env")
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, nil))
}

// cli holds the parsed global flags and output streams of one invocation.
type cli struct {
	client   *backend.Client
	stdout   io.Writer
	stderr   io.Writer
	plotPath string
	saveDir  string
}

// run executes one command and returns the process exit code. A nil
// httpClient selects a real client with the -timeout flag.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, httpClient httputil.HTTPClient) int {
	fs := flag.NewFlagSet("anprctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	defaultURL := os.Getenv(config.EnvBackendURL)
	if defaultURL == "" {
		defaultURL = backend.DefaultBaseURL
	}
	baseURL := fs.String("backend", defaultURL, "Backend base URL")
	timeout := fs.Duration("timeout", backend.DefaultTimeout, "Per-request timeout")
	plotPath := fs.String("plot", "", "Write a PNG confidence chart of an image/video result")
	saveDir := fs.String("save", "", "Download result artifacts into this directory")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: anprctl [flags] <health|ocr-mode|stats|recent|image|video> [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "anprctl", version.String())
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	monitoring.SetLogger(func(format string, v ...interface{}) {
		fmt.Fprintf(stderr, format+"\n", v...)
	})

	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil, *timeout)
	}
	c := &cli{
		client:   backend.NewClient(httpClient, *baseURL),
		stdout:   stdout,
		stderr:   stderr,
		plotPath: *plotPath,
		saveDir:  *saveDir,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case "health":
		err = c.health(ctx)
	case "ocr-mode":
		err = c.ocrMode(ctx, rest)
	case "stats":
		err = c.stats(ctx)
	case "recent":
		err = c.recent(ctx)
	case "image":
		err = c.image(ctx, rest)
	case "video":
		err = c.video(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		if kind := backend.KindOf(err); kind != 0 {
			fmt.Fprintf(stderr, "error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (c *cli) health(ctx context.Context) error {
	if err := c.client.CheckHealth(ctx); err != nil {
		fmt.Fprintln(c.stdout, health.Offline.Label())
		fmt.Fprintln(c.stdout, health.OfflineHint(c.client.BaseURL()))
		return err
	}
	fmt.Fprintln(c.stdout, health.Online.Label())
	return nil
}

func (c *cli) ocrMode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		mode, err := c.client.GetOCRMode(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, mode.Label())
		return nil
	}
	mode, err := backend.ParseOCRMode(args[0])
	if err != nil {
		return err
	}
	echoed, err := c.client.SetOCRMode(ctx, mode)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Switched to "+echoed.Label())
	return nil
}

func (c *cli) stats(ctx context.Context) error {
	s, err := c.client.GetStats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total inferences\t%g\n", s.TotalInferences)
	fmt.Fprintf(tw, "Avg confidence\t%g%%\n", s.AvgConfidence)
	fmt.Fprintf(tw, "OCR failure rate\t%g%%\n", s.OCRFailureRate)
	fmt.Fprintf(tw, "Avg processing time\t%gms\n", s.AvgProcessingTime)
	return tw.Flush()
}

func (c *cli) recent(ctx context.Context) error {
	rows, err := c.client.GetRecentDetections(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATE\tCONFIDENCE\tSTATUS\tTIMESTAMP")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%g%%\t%s\t%s\n", r.Plate, r.Confidence, r.Status, r.Timestamp)
	}
	return tw.Flush()
}

// readUpload loads a file argument as a backend upload.
func readUpload(args []string) (backend.Upload, error) {
	if len(args) != 1 {
		return backend.Upload{}, errors.New("expected exactly one file argument")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return backend.Upload{}, err
	}
	return backend.Upload{Name: filepath.Base(args[0]), Data: data}, nil
}

// submit runs file through a fresh controller so the CLI gets the same
// validation and failure handling as the dashboard.
func submit[R any](ctx context.Context, ctl *upload.Controller[R], file backend.Upload) (upload.View[R], error) {
	defer ctl.Close()
	if err := ctl.Select(file); err != nil {
		return upload.View[R]{}, err
	}
	if err := ctl.Submit(ctx); err != nil {
		return upload.View[R]{}, err
	}
	return ctl.Snapshot(), nil
}

func (c *cli) image(ctx context.Context, args []string) error {
	file, err := readUpload(args)
	if err != nil {
		return err
	}
	start := time.Now()
	v, err := submit(ctx, upload.NewImageController(c.client, upload.Options[*backend.ImageResult]{}), file)
	if err != nil {
		return err
	}

	view := render.Image(c.client.BaseURL(), v.Result)
	fmt.Fprintf(c.stdout, "Result %s (%s)\n", orNA(view.ResultID), time.Since(start).Round(time.Millisecond))
	if view.Empty != "" {
		fmt.Fprintln(c.stdout, view.Empty)
	}
	for _, p := range view.Plates {
		fmt.Fprintf(c.stdout, "%s: %s\n", p.Label, p.OCRText)
		if p.ErrorMessage != "" {
			fmt.Fprintf(c.stdout, "  error: %s\n", p.ErrorMessage)
		}
		if p.Confidence != "" {
			fmt.Fprintf(c.stdout, "  confidence: %s\n", p.Confidence)
		}
		fmt.Fprintf(c.stdout, "  box: %s\n", p.BoxText)
		if p.ImageAvailable {
			fmt.Fprintf(c.stdout, "  crop: %s\n", p.CroppedURL)
		} else {
			fmt.Fprintf(c.stdout, "  crop: %s\n", p.Unavailable)
		}
	}

	labels, values := report.ImageConfidences(v.Result)
	if err := c.finish(ctx, "Plate confidence (%)", labels, values); err != nil {
		return err
	}
	if c.saveDir == "" || view.ResultID == "" {
		return nil
	}
	names := []string{render.PlateDetectionImage}
	for _, p := range view.Plates {
		names = append(names, render.CroppedPlateArtifact(p.Index))
	}
	return c.save(ctx, view.ResultID, names)
}

func (c *cli) video(ctx context.Context, args []string) error {
	file, err := readUpload(args)
	if err != nil {
		return err
	}
	start := time.Now()
	v, err := submit(ctx, upload.NewVideoController(c.client, upload.Options[*backend.VideoResult]{}), file)
	if err != nil {
		return err
	}

	view := render.Video(c.client.BaseURL(), v.Result)
	fmt.Fprintf(c.stdout, "Result %s (%s)\n", orNA(view.ResultID), time.Since(start).Round(time.Millisecond))
	if view.Empty != "" {
		fmt.Fprintln(c.stdout, view.Empty)
	}
	for _, veh := range view.Vehicles {
		fmt.Fprintf(c.stdout, "%s (%s): %s\n", veh.Title, veh.Type, veh.OCRText)
		fmt.Fprintf(c.stdout, "  confidence: %s\n", veh.Confidence)
		if veh.Frame != "" {
			fmt.Fprintf(c.stdout, "  frame: %s\n", veh.Frame)
		}
		if veh.ImageAvailable {
			fmt.Fprintf(c.stdout, "  best shot: %s\n", veh.BestURL)
		} else {
			fmt.Fprintf(c.stdout, "  best shot: %s\n", veh.Unavailable)
		}
	}

	labels, values := report.VideoConfidences(v.Result)
	if err := c.finish(ctx, "Vehicle confidence (%)", labels, values); err != nil {
		return err
	}
	if c.saveDir == "" || view.ResultID == "" {
		return nil
	}
	var names []string
	for _, veh := range view.Vehicles {
		names = append(names, render.VehicleBestArtifact(veh.VehicleID))
	}
	return c.save(ctx, view.ResultID, names)
}

// finish prints the confidence summary and writes the -plot chart.
func (c *cli) finish(ctx context.Context, title string, labels []string, values []float64) error {
	fmt.Fprintln(c.stdout, report.Summarize(values))
	if c.plotPath == "" {
		return nil
	}
	p, err := report.ConfidencePlot(title, labels, values)
	if errors.Is(err, report.ErrNoData) {
		fmt.Fprintln(c.stderr, "nothing to plot")
		return nil
	}
	if err != nil {
		return err
	}
	if err := report.SavePNG(p, c.plotPath); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "chart written to %s\n", c.plotPath)
	return nil
}

// save downloads artifacts into saveDir. Missing artifacts are reported
// and skipped; other failures abort.
func (c *cli) save(ctx context.Context, resultID string, names []string) error {
	if err := os.MkdirAll(c.saveDir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		data, _, err := c.client.FetchArtifact(ctx, resultID, name)
		if backend.IsNonOKStatus(err) {
			fmt.Fprintf(c.stderr, "skipping %s: %v\n", name, err)
			continue
		}
		if err != nil {
			return err
		}
		path, err := security.ArtifactPath(c.saveDir, name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "saved %s\n", path)
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return render.NotAvailable
	}
	return s
}
