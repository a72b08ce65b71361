// Command anpr-dashboard serves the web dashboard for an ANPR backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/config"
	"github.com/banshee-data/anpr.dashboard/internal/dashboard"
	"github.com/banshee-data/anpr.dashboard/internal/db"
	"github.com/banshee-data/anpr.dashboard/internal/health"
	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/preview"
	"github.com/banshee-data/anpr.dashboard/internal/settings"
	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
	"github.com/banshee-data/anpr.dashboard/internal/upload"
	"github.com/banshee-data/anpr.dashboard/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a dashboard .json config file")
	envFile     = flag.String("env-file", ".env", "Optional .env file with ANPR_* overrides")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	backendURL  = flag.String("backend", "", "Backend base URL (overrides config)")
	dbPath      = flag.String("db-path", "", "Path to the dashboard sqlite database (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("anpr-dashboard", version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" {
			log.Fatalf("unknown command %q", args[0])
		}
		if err := db.RunMigrateCommand(args[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("anpr-dashboard: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig layers the config file, the .env file, ANPR_* variables and
// flags, in increasing priority.
func loadConfig() (*config.DashboardConfig, error) {
	cfg := config.EmptyDashboardConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if err := config.LoadDotEnv(*envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *backendURL != "" {
		cfg.BackendURL = backendURL
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.DashboardConfig) error {
	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	clock := timeutil.RealClock{}
	feed := notify.NewFeed(cfg.GetToastCapacity(), clock)
	previews := preview.NewStore()
	client := backend.NewClient(
		httputil.NewStandardClient(nil, cfg.GetRequestTimeout()),
		cfg.GetBackendURL(),
	)

	store := settings.NewStore(database, feed)
	if err := store.Load(ctx); err != nil {
		monitoring.Warnf("%v", err)
	}
	if err := store.SyncOCRMode(ctx, client); err != nil {
		monitoring.Warnf("reading backend OCR mode: %v", err)
	}

	imageCtl := upload.NewImageController(client, upload.Options[*backend.ImageResult]{
		Notifier: feed, Previews: previews, Recorder: database, Clock: clock,
	})
	videoCtl := upload.NewVideoController(client, upload.Options[*backend.VideoResult]{
		Notifier: feed, Previews: previews, Recorder: database, Clock: clock,
	})

	poller := health.NewPoller(client, health.Options{
		Interval: cfg.GetHealthInterval(),
		Timeout:  cfg.GetHealthTimeout(),
		Clock:    clock,
		Notifier: feed,
	})

	srvCfg := dashboard.Config{
		Address:      cfg.GetListen(),
		Client:       client,
		Image:        imageCtl,
		Video:        videoCtl,
		Poller:       poller,
		Settings:     store,
		Feed:         feed,
		Previews:     previews,
		History:      database,
		RecentLimit:  cfg.GetRecentSubmissions(),
		StatsTimeout: cfg.GetStatsTimeout(),
	}
	if cfg.GetAdminRoutes() {
		srvCfg.Admin = database
	}
	srv, err := dashboard.NewServer(srvCfg)
	if err != nil {
		return err
	}

	log.Printf("anpr-dashboard %s, backend %s, database %s", version.String(), client.BaseURL(), database.Path())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Start(gctx)
		<-gctx.Done()
		poller.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}
