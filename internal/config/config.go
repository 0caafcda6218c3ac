package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lensmatch/internal/domain"
)

// Config holds the lensmatch configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Detector DetectorConfig `yaml:"detector"`
	Host     HostConfig     `yaml:"host"`
	Search   SearchConfig   `yaml:"search"`
	Caption  CaptionConfig  `yaml:"caption"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Janitor  JanitorConfig  `yaml:"janitor"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// DetectorConfig selects and tunes the object detector.
type DetectorConfig struct {
	Driver            string   `yaml:"driver"` // onnx, http (default: onnx)
	ModelPath         string   `yaml:"model_path"`
	SharedLibraryPath string   `yaml:"shared_library_path"`
	Layout            string   `yaml:"layout"` // yolov5, yolov8 (default: yolov8)
	InputSize         int      `yaml:"input_size"`
	InputName         string   `yaml:"input_name"`
	OutputName        string   `yaml:"output_name"`
	ConfThreshold     float64  `yaml:"conf_threshold"`
	IoUThreshold      float64  `yaml:"iou_threshold"`
	MaxDetections     int      `yaml:"max_detections"`
	Labels            []string `yaml:"labels"`
	InferenceURL      string   `yaml:"inference_url"`
	TimeoutSec        int      `yaml:"timeout_sec"`
}

// RetryConfig bounds the retry policy of one external service.
type RetryConfig struct {
	TimeoutSec     int `yaml:"timeout_sec"`
	MaxRetries     int `yaml:"max_retries"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms"`
}

// Timeout returns the per-attempt timeout.
func (r RetryConfig) Timeout() time.Duration { return time.Duration(r.TimeoutSec) * time.Second }

// InitialDelay returns the first backoff interval.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff interval cap.
func (r RetryConfig) MaxDelay() time.Duration { return time.Duration(r.MaxDelayMs) * time.Millisecond }

// HostConfig holds image host settings.
type HostConfig struct {
	Endpoint string      `yaml:"endpoint"`
	ClientID string      `yaml:"client_id"`
	Retry    RetryConfig `yaml:"retry"`
	CacheTTL int         `yaml:"cache_ttl_sec"`
}

// QuotaConfig holds search call budget settings.
type QuotaConfig struct {
	DailyLimit   int64  `yaml:"daily_limit"`   // 0 = unlimited
	MonthlyLimit int64  `yaml:"monthly_limit"` // 0 = unlimited
	Action       string `yaml:"action"`        // "reject" | "warn" (default)
}

// SearchConfig holds visual search settings.
type SearchConfig struct {
	Endpoint string      `yaml:"endpoint"`
	Engine   string      `yaml:"engine"`
	APIKey   string      `yaml:"api_key"`
	Country  string      `yaml:"country"`
	Retry    RetryConfig `yaml:"retry"`
	Quota    QuotaConfig `yaml:"quota"`
	CacheTTL int         `yaml:"cache_ttl_sec"`
}

// CaptionConfig holds the optional crop captioner settings. Empty APIKey disables it.
type CaptionConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxTokens  int    `yaml:"max_tokens"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Enabled reports whether captioning is configured.
func (c CaptionConfig) Enabled() bool { return c.APIKey != "" }

// RetailConfig holds the match allow-list policy.
type RetailConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Domains       []string `yaml:"domains"`
	MaxCandidates int      `yaml:"max_candidates"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	WorkDir            string       `yaml:"work_dir"`
	CropMaxSide        int          `yaml:"crop_max_side"`
	MaxImagePixels     int          `yaml:"max_image_pixels"`
	WorkspaceMaxAgeMin int          `yaml:"workspace_max_age_min"`
	Retail             RetailConfig `yaml:"retail_filter"`
}

// CacheConfig holds the KV store connection. Empty Addrs disables caching and quota persistence.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a KV store is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// HistoryConfig holds scan history settings. Empty Path disables history.
type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Enabled reports whether scan history is configured.
func (c HistoryConfig) Enabled() bool { return c.Path != "" }

// JanitorConfig holds the cleanup schedule.
type JanitorConfig struct {
	Schedule string `yaml:"schedule"` // cron spec, empty disables the janitor
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 30
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 10 << 20
	}

	c.applyDetectorDefaults()

	if c.Host.Endpoint == "" {
		c.Host.Endpoint = "https://api.imgur.com/3/image"
	}
	applyRetryDefaults(&c.Host.Retry)
	if c.Host.CacheTTL <= 0 {
		c.Host.CacheTTL = 7 * 24 * 3600
	}

	if c.Search.Endpoint == "" {
		c.Search.Endpoint = "https://serpapi.com/search.json"
	}
	if c.Search.Engine == "" {
		c.Search.Engine = "google_lens"
	}
	if c.Search.Country == "" {
		c.Search.Country = domain.DefaultSearchCountry
	}
	applyRetryDefaults(&c.Search.Retry)
	if c.Search.CacheTTL <= 0 {
		c.Search.CacheTTL = 24 * 3600
	}

	if c.Caption.Model == "" {
		c.Caption.Model = "gpt-4o-mini"
	}
	if c.Caption.MaxTokens <= 0 {
		c.Caption.MaxTokens = 40
	}
	if c.Caption.TimeoutSec <= 0 {
		c.Caption.TimeoutSec = 20
	}

	if c.Pipeline.WorkspaceMaxAgeMin <= 0 {
		c.Pipeline.WorkspaceMaxAgeMin = 60
	}
	if c.Pipeline.MaxImagePixels <= 0 {
		c.Pipeline.MaxImagePixels = domain.DefaultMaxImagePixels
	}
	if c.Pipeline.Retail.MaxCandidates <= 0 {
		c.Pipeline.Retail.MaxCandidates = domain.DefaultMaxCandidates
	}

	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.History.RetentionDays <= 0 {
		c.History.RetentionDays = 30
	}
}

func (c *Config) applyDetectorDefaults() {
	d := &c.Detector
	if d.Driver == "" {
		d.Driver = "onnx"
	}
	if d.Layout == "" {
		d.Layout = "yolov8"
	}
	if d.InputSize <= 0 {
		d.InputSize = 640
	}
	if d.InputName == "" {
		d.InputName = "images"
	}
	if d.OutputName == "" {
		d.OutputName = "output0"
	}
	if d.ConfThreshold <= 0 {
		d.ConfThreshold = 0.25
	}
	if d.IoUThreshold <= 0 {
		d.IoUThreshold = 0.45
	}
	if d.MaxDetections <= 0 {
		d.MaxDetections = 300
	}
	if d.TimeoutSec <= 0 {
		d.TimeoutSec = 60
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.TimeoutSec <= 0 {
		r.TimeoutSec = 30
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.InitialDelayMs <= 0 {
		r.InitialDelayMs = 500
	}
	if r.MaxDelayMs <= 0 {
		r.MaxDelayMs = 5000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return c.ValidatePipeline()
}

// ValidatePipeline checks everything a scan needs, ignoring the HTTP section.
func (c *Config) ValidatePipeline() error {
	if err := c.validateDetector(); err != nil {
		return err
	}
	if c.Host.ClientID == "" {
		return fmt.Errorf("host.client_id is required")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required")
	}
	for name, ep := range map[string]string{"host.endpoint": c.Host.Endpoint, "search.endpoint": c.Search.Endpoint} {
		if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, ep)
		}
	}
	switch c.Search.Quota.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("search.quota.action must be \"warn\" or \"reject\", got %q", c.Search.Quota.Action)
	}
	if c.Pipeline.MaxImagePixels < 0 {
		return fmt.Errorf("pipeline.max_image_pixels must not be negative, got %d", c.Pipeline.MaxImagePixels)
	}
	if c.Pipeline.CropMaxSide < 0 {
		return fmt.Errorf("pipeline.crop_max_side must not be negative, got %d", c.Pipeline.CropMaxSide)
	}
	return nil
}

func (c *Config) validateDetector() error {
	d := c.Detector
	switch d.Driver {
	case "onnx":
		if d.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the onnx driver")
		}
		if d.Layout != "yolov5" && d.Layout != "yolov8" {
			return fmt.Errorf("detector.layout must be \"yolov5\" or \"yolov8\", got %q", d.Layout)
		}
	case "http":
		if d.InferenceURL == "" {
			return fmt.Errorf("detector.inference_url is required for the http driver")
		}
	default:
		return fmt.Errorf("detector.driver must be \"onnx\" or \"http\", got %q", d.Driver)
	}
	if d.ConfThreshold > 1 || d.IoUThreshold > 1 {
		return fmt.Errorf("detector thresholds must be in (0,1]")
	}
	return nil
}

// DomainPipeline builds the orchestrator configuration object.
func (c *Config) DomainPipeline() domain.PipelineConfig {
	modelPath := c.Detector.ModelPath
	if c.Detector.Driver == "http" {
		modelPath = c.Detector.InferenceURL
	}
	return domain.PipelineConfig{
		DetectorModelPath: modelPath,
		HostCredential:    c.Host.ClientID,
		SearchCredential:  c.Search.APIKey,
		SearchCountry:     c.Search.Country,
		WorkDir:           c.Pipeline.WorkDir,
		CropMaxSide:       c.Pipeline.CropMaxSide,
		Retail: domain.RetailFilter{
			Enabled:       c.Pipeline.Retail.Enabled,
			Domains:       c.Pipeline.Retail.Domains,
			MaxCandidates: c.Pipeline.Retail.MaxCandidates,
		},
	}.WithDefaults()
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
