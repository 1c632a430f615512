package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dashcal/internal/weather"
)

// Environment variables that override the generator credential. The first
// non-empty one wins.
var apiKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// CalendarConfig is the day grid geometry.
type CalendarConfig struct {
	StartHour   int     `yaml:"start_hour" json:"start_hour"`
	WindowHours int     `yaml:"window_hours" json:"window_hours"`
	HourHeight  float64 `yaml:"hour_height" json:"hour_height"`
	MinHeight   float64 `yaml:"min_height" json:"min_height"`
}

// SeedConfig selects the startup schedule.
type SeedConfig struct {
	// ICS is an optional file path or http(s) URL. Empty uses the built-in
	// demo schedule.
	ICS string `yaml:"ics" json:"ics"`
	// CacheDir holds the last good copy of a remote ICS seed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// GeneratorConfig configures the AI schedule generator.
type GeneratorConfig struct {
	// APIKey is the generative language API key. Usually supplied through
	// GEMINI_API_KEY instead of the file.
	APIKey         string `yaml:"api_key" json:"-"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the per-call timeout.
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// WeatherConfig seeds the weather readout and selects an optional provider
// used for the one-shot location refinement.
type WeatherConfig struct {
	Default weather.Snapshot `yaml:"default" json:"default"`
	// Provider is "" (location string only) or "open-meteo".
	Provider string `yaml:"provider" json:"provider"`
}

// CaptureConfig controls periodic dashboard screenshots.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Refresh is a cron expression, e.g. "*/15 * * * *".
	Refresh string `yaml:"refresh" json:"refresh"`
	// URL to capture; empty means the local listen address.
	URL    string `yaml:"url" json:"url"`
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the dashboard/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone the calendar is laid out in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is debug, info or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Calendar  CalendarConfig  `yaml:"calendar" json:"calendar"`
	Seed      SeedConfig      `yaml:"seed" json:"seed"`
	Generator GeneratorConfig `yaml:"generator" json:"generator"`
	Weather   WeatherConfig   `yaml:"weather" json:"weather"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`

	// BasicAuth, if set with both fields, protects every endpoint except
	// /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "America/Los_Angeles",
		LogLevel: "info",
		Calendar: CalendarConfig{
			StartHour:   7,
			WindowHours: 15,
			HourHeight:  80,
			MinHeight:   20,
		},
		Seed: SeedConfig{
			CacheDir: "./var/ics-cache",
		},
		Generator: GeneratorConfig{
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 30,
		},
		Weather: WeatherConfig{
			Default: weather.DefaultSnapshot(),
		},
		Capture: CaptureConfig{
			Enabled: false,
			Refresh: "*/15 * * * *",
			Output:  "./var/preview.png",
			Width:   1280,
			Height:  800,
		},
	}
}

// Normalize fills zero or out-of-range values with defaults so older or
// partial files still produce a usable config.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if c.Calendar.StartHour < 0 || c.Calendar.StartHour > 23 {
		c.Calendar.StartHour = def.Calendar.StartHour
	}
	if c.Calendar.WindowHours <= 0 {
		c.Calendar.WindowHours = def.Calendar.WindowHours
	}
	if c.Calendar.StartHour+c.Calendar.WindowHours > 24 {
		c.Calendar.WindowHours = 24 - c.Calendar.StartHour
	}
	if c.Calendar.HourHeight <= 0 {
		c.Calendar.HourHeight = def.Calendar.HourHeight
	}
	if c.Calendar.MinHeight <= 0 {
		c.Calendar.MinHeight = def.Calendar.MinHeight
	}

	if c.Seed.CacheDir == "" {
		c.Seed.CacheDir = def.Seed.CacheDir
	}

	if c.Generator.Model == "" {
		c.Generator.Model = def.Generator.Model
	}
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = def.Generator.TimeoutSeconds
	}

	if c.Weather.Default == (weather.Snapshot{}) {
		c.Weather.Default = def.Weather.Default
	}
	switch c.Weather.Provider {
	case "", "open-meteo":
	default:
		c.Weather.Provider = ""
	}

	if c.Capture.Refresh == "" {
		c.Capture.Refresh = def.Capture.Refresh
	}
	if c.Capture.Output == "" {
		c.Capture.Output = def.Capture.Output
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// applyEnv loads an optional .env file next to the process and lets the
// environment override the generator credential.
func (c *Config) applyEnv() {
	_ = godotenv.Load()
	for _, key := range apiKeyEnv {
		if v := os.Getenv(key); v != "" {
			c.Generator.APIKey = v
			return
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions (parent created as needed) and returned.
//   - Otherwise the YAML is decoded over DefaultConfig and normalized.
//   - In both cases GEMINI_API_KEY / API_KEY (also read from .env) override
//     generator.api_key. The override is never written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			saveErr := Save(path, cfg)
			cfg.applyEnv()
			// Even if save fails, return cfg so the caller can decide.
			return cfg, saveErr
		}
		return nil, err
	}

	// Decode over the defaults so omitted keys keep them; Normalize only
	// repairs values that are present but out of range.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.applyEnv()

	return cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dashcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
