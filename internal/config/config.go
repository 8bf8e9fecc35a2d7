// Package config provides configuration loading for slide-creator.
// Supports YAML files, .env files, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for slide-creator.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Images        ImageConfig         `yaml:"images"`
	Retry         RetryConfig         `yaml:"retry"`
	Validation    ValidationConfig    `yaml:"validation"`
	Visual        VisualConfig        `yaml:"visual"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	PDF           PDFConfig           `yaml:"pdf"`
	Presentation  PresentationConfig  `yaml:"presentation"`
	Cache         CacheConfig         `yaml:"cache"`
	Database      DatabaseConfig      `yaml:"database"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig selects and tunes the text completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openrouter, openai or gemini
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Referer     string        `yaml:"referer"`
	AppTitle    string        `yaml:"app_title"`
}

// ImageConfig selects the image generation provider.
type ImageConfig struct {
	Provider   string        `yaml:"provider"` // openai or none
	Model      string        `yaml:"model"`
	Size       string        `yaml:"size"`
	APIKey     string        `yaml:"-"`
	MaxWorkers int           `yaml:"max_workers"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetryConfig holds retry settings for text completions.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// ValidationConfig holds response validation thresholds.
type ValidationConfig struct {
	StrictJSON    bool    `yaml:"strict_json"`
	MaxConcepts   int     `yaml:"max_concepts"`
	MinConfidence float64 `yaml:"min_confidence"`
	MaxConfidence float64 `yaml:"max_confidence"`
	MinSlides     int     `yaml:"min_slides"`
	MaxSlides     int     `yaml:"max_slides"`
	MaxBullets    int     `yaml:"max_bullets"`
	MaxTitleWords int     `yaml:"max_title_words"`
}

// VisualConfig holds visual-text mapping thresholds.
type VisualConfig struct {
	Detect           bool    `yaml:"detect"`
	MinMappingScore  float64 `yaml:"min_mapping_score"`
	SuggestionFloor  float64 `yaml:"suggestion_floor"`
	ContextFloor     float64 `yaml:"context_floor"`
	HighConfidence   float64 `yaml:"high_confidence"`
	ChartThreshold   float64 `yaml:"chart_threshold"`
	DetectionWidth   int     `yaml:"detection_width"`
	MinParagraphSize int     `yaml:"min_paragraph_size"`
}

// WorkflowConfig holds orchestrator settings.
type WorkflowConfig struct {
	ImagePromptBatchSize int    `yaml:"image_prompt_batch_size"`
	AnalyzePageImages    bool   `yaml:"analyze_page_images"`
	WorkDir              string `yaml:"work_dir"`
	KeepWorkDir          bool   `yaml:"keep_work_dir"`
}

// PDFConfig holds input handling settings.
type PDFConfig struct {
	Quality       int    `yaml:"quality"`
	MaxFileSizeMB int64  `yaml:"max_file_size_mb"`
	TextBackend   string `yaml:"text_backend"` // fitz or ledongthuc
	ValidateInput bool   `yaml:"validate_input"`
}

// PresentationConfig holds pptx writer settings.
type PresentationConfig struct {
	LicenseKey string `yaml:"-"`
	TitleSlide bool   `yaml:"title_slide"`
	EmitJSON   bool   `yaml:"emit_json"`
}

// CacheConfig holds LLM response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds run history settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // none, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// Load reads .env files, an optional YAML file and environment overrides.
func Load(path string) (*Config, error) {
	// Missing .env files are not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "openai/gpt-4o-mini",
			BaseURL:     "https://openrouter.ai/api/v1",
			Timeout:     120 * time.Second,
			Temperature: 0.2,
			MaxTokens:   4096,
			Referer:     "https://github.com/spherical/slide-creator",
			AppTitle:    "Slide Creator",
		},
		Images: ImageConfig{
			Provider:   "openai",
			Model:      "dall-e-3",
			Size:       "1024x1024",
			MaxWorkers: 4,
			Timeout:    120 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Validation: ValidationConfig{
			MaxConcepts:   20,
			MinConfidence: 0.0,
			MaxConfidence: 1.0,
			MinSlides:     3,
			MaxSlides:     20,
			MaxBullets:    8,
			MaxTitleWords: 12,
		},
		Visual: VisualConfig{
			Detect:           true,
			MinMappingScore:  0.3,
			SuggestionFloor:  0.4,
			ContextFloor:     0.5,
			HighConfidence:   0.7,
			ChartThreshold:   0.6,
			DetectionWidth:   1000,
			MinParagraphSize: 50,
		},
		Workflow: WorkflowConfig{
			ImagePromptBatchSize: 10,
		},
		PDF: PDFConfig{
			Quality:       85,
			MaxFileSizeMB: 100,
			TextBackend:   "fitz",
			ValidateInput: true,
		},
		Presentation: PresentationConfig{
			TitleSlide: true,
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        24 * time.Hour,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "slide-creator:",
			},
		},
		Database: DatabaseConfig{
			Driver: "none",
			SQLite: SQLiteConfig{
				Path: "slide-creator.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     15 * time.Minute,
			RequestTimeout:   15 * time.Minute,
			GracefulShutdown: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openrouter", "openai", "gemini":
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	if c.Images.Provider != "openai" && c.Images.Provider != "none" {
		return fmt.Errorf("invalid image provider: %s", c.Images.Provider)
	}

	if c.Images.MaxWorkers < 1 {
		return fmt.Errorf("images.max_workers must be at least 1")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}

	if c.Validation.MinConfidence > c.Validation.MaxConfidence {
		return fmt.Errorf("validation confidence range is empty: [%g, %g]",
			c.Validation.MinConfidence, c.Validation.MaxConfidence)
	}

	if c.Validation.MinSlides > c.Validation.MaxSlides {
		return fmt.Errorf("validation.min_slides (%d) exceeds validation.max_slides (%d)",
			c.Validation.MinSlides, c.Validation.MaxSlides)
	}

	if c.Workflow.ImagePromptBatchSize < 1 {
		return fmt.Errorf("workflow.image_prompt_batch_size must be at least 1")
	}

	if c.PDF.TextBackend != "fitz" && c.PDF.TextBackend != "ledongthuc" {
		return fmt.Errorf("invalid pdf text backend: %s", c.PDF.TextBackend)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Database.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	switch cfg.LLM.Provider {
	case "openrouter":
		cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if v := os.Getenv("IMAGE_PROVIDER"); v != "" {
		cfg.Images.Provider = v
	}

	if v := os.Getenv("IMAGE_MODEL"); v != "" {
		cfg.Images.Model = v
	}

	cfg.Images.APIKey = os.Getenv("OPENAI_API_KEY")

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("UNIDOC_LICENSE_API_KEY"); v != "" {
		cfg.Presentation.LicenseKey = v
	}
}
