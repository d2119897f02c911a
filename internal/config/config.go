package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	Generator GeneratorConfig `yaml:"generator"`
	Store     StoreConfig     `yaml:"store"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	MaxConns        int    `yaml:"max_conns"`
	ReadTimeout     string `yaml:"read_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// CanvasConfig holds board defaults.
type CanvasConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Color     string `yaml:"color"`
	LineWidth int    `yaml:"line_width"`
	MaxBoards int    `yaml:"max_boards"`
	MaxSide   int    `yaml:"max_side"`
}

// GeneratorConfig configures the remote avatar generator.
type GeneratorConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	Backoff    string `yaml:"backoff"`
}

// StoreConfig configures the gallery database.
type StoreConfig struct {
	DSN string `yaml:"dsn"` // ":memory:" keeps the gallery for the process lifetime
}

// DiscoveryConfig configures mDNS advertising.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Timeout  string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxConns:        256,
			ReadTimeout:     "15s",
			ShutdownTimeout: "10s",
		},
		Canvas: CanvasConfig{
			Width:     canvas.DefaultWidth,
			Height:    canvas.DefaultHeight,
			Color:     canvas.DefaultColor,
			LineWidth: canvas.DefaultLineWidth,
			MaxBoards: 64,
			MaxSide:   4096,
		},
		Generator: GeneratorConfig{
			BaseURL:    "https://api.poehali.dev",
			Model:      "flux",
			Timeout:    "60s",
			MaxRetries: 2,
			Backoff:    "1s",
		},
		Store: StoreConfig{
			DSN: ":memory:",
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Instance: "speechparts",
			Service:  "_speechparts._tcp",
			Timeout:  "3s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("POEHALI_API_KEY"); key != "" {
		c.Generator.APIKey = key
	}
	if addr := os.Getenv("SPEECHPARTS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv("SPEECHPARTS_GENERATOR_URL"); url != "" {
		c.Generator.BaseURL = url
	}
	if dsn := os.Getenv("SPEECHPARTS_DSN"); dsn != "" {
		c.Store.DSN = dsn
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetGeneratorTimeout returns the per-request generator timeout.
func (c *Config) GetGeneratorTimeout() time.Duration {
	return parseDuration(c.Generator.Timeout, 60*time.Second)
}

// GetGeneratorBackoff returns the base retry delay.
func (c *Config) GetGeneratorBackoff() time.Duration {
	return parseDuration(c.Generator.Backoff, time.Second)
}

// GetDiscoveryTimeout returns how long discover waits for answers.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return parseDuration(c.Discovery.Timeout, 3*time.Second)
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is empty")
	}
	if c.Server.MaxConns <= 0 {
		return fmt.Errorf("server.max_conns must be positive, got %d", c.Server.MaxConns)
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas size %dx%d has zero area", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Canvas.Width > c.Canvas.MaxSide || c.Canvas.Height > c.Canvas.MaxSide {
		return fmt.Errorf("canvas size %dx%d exceeds max_side %d", c.Canvas.Width, c.Canvas.Height, c.Canvas.MaxSide)
	}
	if c.Canvas.LineWidth < canvas.MinLineWidth || c.Canvas.LineWidth > canvas.MaxLineWidth {
		return fmt.Errorf("canvas.line_width %d: %w", c.Canvas.LineWidth, canvas.ErrInvalidWidth)
	}
	if err := canvas.New(0, 0).SetColor(c.Canvas.Color); err != nil {
		return fmt.Errorf("canvas.color: %w", err)
	}
	if c.Canvas.MaxBoards <= 0 {
		return fmt.Errorf("canvas.max_boards must be positive, got %d", c.Canvas.MaxBoards)
	}
	if c.Generator.MaxRetries < 0 {
		return fmt.Errorf("generator.max_retries must not be negative")
	}

	valid := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	return nil
}

// GeneratorEnabled reports whether an API key is available.
func (c *Config) GeneratorEnabled() bool {
	return c.Generator.APIKey != ""
}
