package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/dashboard.defaults.json"

// Environment overrides.
const (
	EnvBackendURL = "ANPR_BACKEND_URL"
	EnvListen     = "ANPR_LISTEN"
	EnvDBPath     = "ANPR_DB_PATH"
)

// DashboardConfig is the dashboard's startup configuration. Fields left
// out of the file fall back to the Get* defaults.
type DashboardConfig struct {
	Listen            *string `json:"listen,omitempty"`
	BackendURL        *string `json:"backend_url,omitempty"`
	DBPath            *string `json:"db_path,omitempty"`
	HealthInterval    *string `json:"health_interval,omitempty"` // duration string like "30s"
	HealthTimeout     *string `json:"health_timeout,omitempty"`
	RequestTimeout    *string `json:"request_timeout,omitempty"`
	StatsTimeout      *string `json:"stats_timeout,omitempty"`
	ToastCapacity     *int    `json:"toast_capacity,omitempty"`
	RecentSubmissions *int    `json:"recent_submissions,omitempty"`
	AdminRoutes       *bool   `json:"admin_routes,omitempty"`
}

func ptrString(v string) *string { return &v }

// EmptyDashboardConfig returns a config with every field unset.
func EmptyDashboardConfig() *DashboardConfig {
	return &DashboardConfig{}
}

// Load reads a DashboardConfig from a .json file of at most 1MB.
func Load(path string) (*DashboardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDashboardConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics when the file cannot be found.
func MustLoadDefaultConfig() *DashboardConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without replacing variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the ANPR_* variables returned by getenv.
func (c *DashboardConfig) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvBackendURL)); v != "" {
		c.BackendURL = ptrString(v)
	}
	if v := strings.TrimSpace(getenv(EnvListen)); v != "" {
		c.Listen = ptrString(v)
	}
	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		c.DBPath = ptrString(v)
	}
	return c.Validate()
}

// Validate checks the values that are set.
func (c *DashboardConfig) Validate() error {
	if c.BackendURL != nil {
		u, err := url.Parse(*c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend_url must be an http(s) URL, got %q", *c.BackendURL)
		}
	}
	for name, d := range map[string]*string{
		"health_interval": c.HealthInterval,
		"health_timeout":  c.HealthTimeout,
		"request_timeout": c.RequestTimeout,
		"stats_timeout":   c.StatsTimeout,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}
	if c.ToastCapacity != nil && *c.ToastCapacity < 1 {
		return fmt.Errorf("toast_capacity must be at least 1, got %d", *c.ToastCapacity)
	}
	if c.RecentSubmissions != nil && *c.RecentSubmissions < 0 {
		return fmt.Errorf("recent_submissions must be non-negative, got %d", *c.RecentSubmissions)
	}
	return nil
}

func (c *DashboardConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

func (c *DashboardConfig) GetBackendURL() string {
	if c.BackendURL == nil || *c.BackendURL == "" {
		return "http://localhost:8000"
	}
	return strings.TrimRight(*c.BackendURL, "/")
}

func (c *DashboardConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "anpr_dashboard.db"
	}
	return *c.DBPath
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetHealthInterval is the backend health poll period.
func (c *DashboardConfig) GetHealthInterval() time.Duration {
	return parseDuration(c.HealthInterval, 30*time.Second)
}

// GetHealthTimeout bounds a single health check.
func (c *DashboardConfig) GetHealthTimeout() time.Duration {
	return parseDuration(c.HealthTimeout, 10*time.Second)
}

// GetRequestTimeout bounds every other backend request, including uploads.
func (c *DashboardConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Minute)
}

// GetStatsTimeout bounds the analytics fetch behind the index page. Past
// it the page falls back to sample data.
func (c *DashboardConfig) GetStatsTimeout() time.Duration {
	return parseDuration(c.StatsTimeout, 2*time.Second)
}

func (c *DashboardConfig) GetToastCapacity() int {
	if c.ToastCapacity == nil {
		return 32
	}
	return *c.ToastCapacity
}

func (c *DashboardConfig) GetRecentSubmissions() int {
	if c.RecentSubmissions == nil {
		return 10
	}
	return *c.RecentSubmissions
}

// GetAdminRoutes reports whether /debug/ admin routes are mounted.
func (c *DashboardConfig) GetAdminRoutes() bool {
	if c.AdminRoutes == nil {
		return true
	}
	return *c.AdminRoutes
}
