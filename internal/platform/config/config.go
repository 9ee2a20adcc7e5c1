// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8000

	// DefaultMaxRequestSize is the default maximum request body size (1MB).
	DefaultMaxRequestSize = 1 << 20

	// DefaultClientRetryMaxAttempts is the default number of retry attempts.
	DefaultClientRetryMaxAttempts = 3

	// DefaultClientRetryMultiplier is the default exponential backoff multiplier.
	DefaultClientRetryMultiplier = 2.0

	// DefaultClientRetryJitterFactor is the default jitter percentage (±25%).
	DefaultClientRetryJitterFactor = 0.25

	// DefaultClientCircuitMaxFailures is the default failures before circuit opens.
	DefaultClientCircuitMaxFailures = 5

	// DefaultClientCircuitHalfOpenLimit is the default successes to close circuit.
	DefaultClientCircuitHalfOpenLimit = 3

	// DefaultTransportMaxIdleConns is the default max idle connections.
	DefaultTransportMaxIdleConns = 100

	// DefaultTransportMaxIdleConnsPerHost is the default max idle connections per host.
	DefaultTransportMaxIdleConnsPerHost = 10

	// DefaultLogFileMaxSizeMB is the default max log file size in megabytes.
	DefaultLogFileMaxSizeMB = 100

	// DefaultLogFileMaxBackups is the default number of old log files to retain.
	DefaultLogFileMaxBackups = 3

	// DefaultLogFileMaxAgeDays is the default max days to retain old log files.
	DefaultLogFileMaxAgeDays = 28

	// DefaultNotionMaxRetries is how many 429 responses are waited out.
	DefaultNotionMaxRetries = 5

	// DefaultRenderWidth and DefaultRenderHeight size cards for clients
	// that send no dimensions.
	DefaultRenderWidth  = 800
	DefaultRenderHeight = 480

	// DefaultRecentConnections is the size of the status ring buffer.
	DefaultRecentConnections = 10

	// DefaultConfigDir holds base.yaml and the profile files.
	DefaultConfigDir = "configs"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Notion    NotionConfig    `koanf:"notion"`
	Images    ImagesConfig    `koanf:"images"    validate:"required"`
	Database  DatabaseConfig  `koanf:"database"  validate:"required"`
	Render    RenderConfig    `koanf:"render"    validate:"required"`
	Fonts     FontsConfig     `koanf:"fonts"`
	Cache     CacheConfig     `koanf:"cache"     validate:"required"`
	Sync      SyncConfig      `koanf:"sync"`
	Status    StatusConfig    `koanf:"status"    validate:"required"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
	// RequestTimeout bounds a single image request, render included.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"required,min=1s"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ClientConfig contains HTTP client settings shared by upstream adapters.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

// RetryConfig contains retry settings for HTTP clients.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// CircuitBreakerConfig contains circuit breaker settings for HTTP clients.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// TransportConfig contains HTTP transport pool settings.
type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// NotionConfig points the catalog sync at a Notion database.
type NotionConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Token      string `koanf:"token"       validate:"required_if=Enabled true"`
	DatabaseID string `koanf:"database_id" validate:"required_if=Enabled true"`
	BaseURL    string `koanf:"base_url"    validate:"required,url"`
	Version    string `koanf:"version"     validate:"required"`

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
	Burst             int     `koanf:"burst"               validate:"min=0"`

	MaxRetries       int           `koanf:"max_retries"       validate:"required,min=1,max=20"`
	InitialBackoff   time.Duration `koanf:"initial_backoff"   validate:"required,min=10ms"`
	ImageConcurrency int           `koanf:"image_concurrency" validate:"required,min=1,max=64"`
}

// ImagesConfig bounds background downloads.
type ImagesConfig struct {
	Timeout  time.Duration `koanf:"timeout"   validate:"required,min=100ms"`
	MaxBytes int64         `koanf:"max_bytes" validate:"required,min=1024"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path        string        `koanf:"path"         validate:"required"`
	BusyTimeout time.Duration `koanf:"busy_timeout" validate:"required,min=100ms"`
}

// RenderConfig is the card layout and image pipeline.
type RenderConfig struct {
	DefaultWidth  int `koanf:"default_width"  validate:"required,min=16,max=8192"`
	DefaultHeight int `koanf:"default_height" validate:"required,min=16,max=8192"`

	PaddingWidth  float64 `koanf:"padding_width"  validate:"min=0,max=0.4"`
	PaddingHeight float64 `koanf:"padding_height" validate:"min=0,max=0.4"`

	QuoteHeight  float64 `koanf:"quote_height"  validate:"required,gt=0,max=1"`
	TitleHeight  float64 `koanf:"title_height"  validate:"required,gt=0,max=1"`
	AuthorHeight float64 `koanf:"author_height" validate:"required,gt=0,max=1"`

	QuoteColor  string `koanf:"quote_color"  validate:"required"`
	TitleColor  string `koanf:"title_color"  validate:"required"`
	AuthorColor string `koanf:"author_color" validate:"required"`
	StrokeColor string `koanf:"stroke_color" validate:"required"`

	QuoteMinSize int `koanf:"quote_min_size" validate:"required,min=1"`
	QuoteMaxSize int `koanf:"quote_max_size" validate:"required,gtefield=QuoteMinSize"`
	QuoteStep    int `koanf:"quote_step"     validate:"required,min=1"`
	LineSpacing  int `koanf:"line_spacing"   validate:"min=0"`

	Saturation float64 `koanf:"saturation" validate:"min=0,max=4"`
	Brightness float64 `koanf:"brightness" validate:"min=0,max=4"`
	Gamma      float64 `koanf:"gamma"      validate:"gt=0,max=4"`

	BlurSize       int     `koanf:"blur_size"       validate:"min=0,max=255"`
	BlurSigma      float64 `koanf:"blur_sigma"      validate:"min=0"`
	KuwaharaRadius int     `koanf:"kuwahara_radius" validate:"min=0,max=32"`
	JPEGQuality    int     `koanf:"jpeg_quality"    validate:"required,min=1,max=100"`

	UseStaticBackground bool   `koanf:"use_static_background"`
	FallbackImage       string `koanf:"fallback_image"`

	// PixelBudget bounds the summed area of renders in progress.
	PixelBudget int64 `koanf:"pixel_budget" validate:"min=0"`
}

// FontsConfig selects font files. Empty paths use the embedded Go fonts.
type FontsConfig struct {
	Quote  FontConfig `koanf:"quote"`
	Title  FontConfig `koanf:"title"`
	Author FontConfig `koanf:"author"`
}

// FontConfig is a font file and, for collections, the face index.
type FontConfig struct {
	Path  string `koanf:"path"`
	Index int    `koanf:"index" validate:"min=0"`
}

// CacheConfig controls the on-disk image cache.
type CacheConfig struct {
	Dir string `koanf:"dir" validate:"required"`
	// Enabled turns on the processed card cache. Downloaded backgrounds
	// are always cached.
	Enabled bool `koanf:"enabled"`
}

// SyncConfig schedules the catalog sync.
type SyncConfig struct {
	Enabled   bool   `koanf:"enabled"`
	OnStartup bool   `koanf:"on_startup"`
	TimeOfDay string `koanf:"time_of_day" validate:"required_if=Enabled true,omitempty,timeofday"`
	// RetryPause is waited after a failed cycle before scheduling again.
	RetryPause time.Duration `koanf:"retry_pause" validate:"omitempty,min=1s"`
	// Timeout bounds one sync run.
	Timeout time.Duration `koanf:"timeout" validate:"omitempty,min=1s"`
}

// StatusConfig controls the status page.
type StatusConfig struct {
	RecentConnections int `koanf:"recent_connections" validate:"required,min=1,max=1000"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "ditto",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,
		"server.request_timeout":  "45s",

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/ditto.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "ditto",
		"telemetry.sampling_rate": 1.0,

		"client.timeout":                           "30s",
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":               DefaultClientRetryJitterFactor,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       "90s",

		"notion.enabled":             false,
		"notion.token":               "",
		"notion.database_id":         "",
		"notion.base_url":            "https://api.notion.com",
		"notion.version":             "2022-06-28",
		"notion.requests_per_second": 3.0,
		"notion.burst":               3,
		"notion.max_retries":         DefaultNotionMaxRetries,
		"notion.initial_backoff":     "1s",
		"notion.image_concurrency":   4,

		"images.timeout":   "30s",
		"images.max_bytes": 32 << 20,

		"database.path":         "data/ditto.db",
		"database.busy_timeout": "5s",

		"render.default_width":         DefaultRenderWidth,
		"render.default_height":        DefaultRenderHeight,
		"render.padding_width":         0.03125,
		"render.padding_height":        0.01875,
		"render.quote_height":          0.8,
		"render.title_height":          0.075,
		"render.author_height":         0.05,
		"render.quote_color":           "white",
		"render.title_color":           "white",
		"render.author_color":          "white",
		"render.stroke_color":          "black",
		"render.quote_min_size":        24,
		"render.quote_max_size":        96,
		"render.quote_step":            2,
		"render.line_spacing":          4,
		"render.saturation":            1.2,
		"render.brightness":            1.0,
		"render.gamma":                 0.85,
		"render.blur_size":             35,
		"render.blur_sigma":            5.0,
		"render.kuwahara_radius":       0,
		"render.jpeg_quality":          70,
		"render.use_static_background": false,
		"render.fallback_image":        "",
		"render.pixel_budget":          4096 * 4096,

		"fonts.quote.path":   "",
		"fonts.quote.index":  0,
		"fonts.title.path":   "",
		"fonts.title.index":  0,
		"fonts.author.path":  "",
		"fonts.author.index": 0,

		"cache.dir":     "data",
		"cache.enabled": false,

		"sync.enabled":     false,
		"sync.on_startup":  true,
		"sync.time_of_day": "00:00",
		"sync.retry_pause": "60s",
		"sync.timeout":     "10m",

		"status.recent_connections": DefaultRecentConnections,
	}
}

// Load reads configuration from DefaultConfigDir. See LoadDir.
func Load(profile string) (*Config, error) {
	return LoadDir(DefaultConfigDir, profile)
}

// LoadDir loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (APP_ prefix)
//  2. Profile config file ({dir}/{profile}.yaml)
//  3. Base config file ({dir}/base.yaml)
//  4. Default values
func LoadDir(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	err := k.Load(confmap.Provider(defaults(), "."), nil)
	if err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. Load base config file if it exists
	err = loadFileIfExists(k, filepath.Join(dir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	// 3. Load profile config file if it exists
	if profile != "" {
		err := loadFileIfExists(k, filepath.Join(dir, profile+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	// 4. Load environment variables with APP_ prefix
	keys := envKeys(k.Keys())

	err = k.Load(env.Provider("APP_", ".", func(s string) string {
		return envKey(keys, s)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config

	err = k.Unmarshal("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeys indexes every known key by its environment spelling so that
// APP_NOTION_DATABASE_ID resolves to notion.database_id, not
// notion.database.id.
func envKeys(known []string) map[string]string {
	out := make(map[string]string, len(known))
	for _, key := range known {
		out[strings.ReplaceAll(key, ".", "_")] = key
	}

	return out
}

func envKey(keys map[string]string, s string) string {
	name := strings.ToLower(strings.TrimPrefix(s, "APP_"))
	if key, ok := keys[name]; ok {
		return key
	}

	return strings.ReplaceAll(name, "_", ".")
}

// loadFileIfExists loads a YAML config file if it exists.
// Returns nil if the file doesn't exist, error only for parse/read failures.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}

// Profile returns the profile to load: APP_ENVIRONMENT, else "local".
func Profile() string {
	if p := os.Getenv("APP_ENVIRONMENT"); p != "" {
		return p
	}

	return "local"
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
