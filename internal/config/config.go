package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Generator GeneratorConfig `yaml:"generator" envconfig:"GENERATOR"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RefreshRPS      float64       `yaml:"refresh_rps" envconfig:"REFRESH_RPS"`
	RefreshBurst    int           `yaml:"refresh_burst" envconfig:"REFRESH_BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration.
// Relative paths are resolved against DataDir.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	TradesFile string `yaml:"trades_file" envconfig:"TRADES_FILE"`
	MetricsDir string `yaml:"metrics_dir" envconfig:"METRICS_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
}

// PipelineConfig contains batch computation configuration
type PipelineConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY"`
	PollInterval   time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
}

// GeneratorConfig controls the synthetic trade generator
type GeneratorConfig struct {
	BondsPerBucket int   `yaml:"bonds_per_bucket" envconfig:"BONDS_PER_BUCKET"`
	MinTrades      int   `yaml:"min_trades" envconfig:"MIN_TRADES"`
	MaxTrades      int   `yaml:"max_trades" envconfig:"MAX_TRADES"`
	Seed           int64 `yaml:"seed" envconfig:"SEED"`
}

// DefaultConfig returns the built-in configuration defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RefreshRPS:      1,
			RefreshBurst:    2,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: filepath.Join("logs", "bondmap.log"),
		},
		Paths: PathsConfig{
			DataDir:    "data",
			TradesFile: "raw_trade_events.csv",
			MetricsDir: "metrics",
			ReportsDir: "reports",
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 4,
			PollInterval:   15 * time.Minute,
		},
		Generator: GeneratorConfig{
			BondsPerBucket: 8,
			MinTrades:      80,
			MaxTrades:      200,
		},
	}
}

// Load loads configuration with precedence: defaults, then the optional
// config file, then BONDMAP_* environment variables.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath())
}

// LoadFromFile loads configuration from the given yaml file (if it exists)
// with environment variable overrides applied on top of file values.
func LoadFromFile(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment wins over file values
	if err := envconfig.Process("BONDMAP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configFilePath returns the default config file location
func configFilePath() string {
	if p := os.Getenv("BONDMAP_CONFIG"); p != "" {
		return p
	}
	return "bondmap.yaml"
}

// resolvePaths makes store paths absolute relative to DataDir
func (c *Config) resolvePaths() {
	if !filepath.IsAbs(c.Paths.TradesFile) {
		c.Paths.TradesFile = filepath.Join(c.Paths.DataDir, c.Paths.TradesFile)
	}
	if !filepath.IsAbs(c.Paths.MetricsDir) {
		c.Paths.MetricsDir = filepath.Join(c.Paths.DataDir, c.Paths.MetricsDir)
	}
	if !filepath.IsAbs(c.Paths.ReportsDir) {
		c.Paths.ReportsDir = filepath.Join(c.Paths.DataDir, c.Paths.ReportsDir)
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline max_concurrency must be at least 1, got %d", c.Pipeline.MaxConcurrency)
	}

	if c.Generator.MinTrades < 1 || c.Generator.MaxTrades < c.Generator.MinTrades {
		return fmt.Errorf("invalid generator trade bounds: min=%d max=%d",
			c.Generator.MinTrades, c.Generator.MaxTrades)
	}
	if c.Generator.BondsPerBucket < 1 {
		return fmt.Errorf("generator bonds_per_bucket must be at least 1, got %d", c.Generator.BondsPerBucket)
	}

	return nil
}

// EnsureDirectories creates all configured directories if missing
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		filepath.Dir(c.Paths.TradesFile),
		c.Paths.MetricsDir,
		c.Paths.ReportsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
