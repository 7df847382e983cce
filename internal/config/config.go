package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/curasupply/curaledger/internal/logging"
	"github.com/curasupply/curaledger/internal/store/postgres"
	"github.com/curasupply/curaledger/internal/store/resilient"
)

// FileName is the config file looked up in the working directory.
const FileName = "curaledger.yaml"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverCSV      = "csv"
	DriverPostgres = "postgres"
)

// Config represents the top-level curaledger.yaml configuration.
type Config struct {
	Business BusinessConfig `yaml:"business"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  logging.Config `yaml:"logging"`
	Cart     CartConfig     `yaml:"cart"`
	Git      GitConfig      `yaml:"git"`
}

// BusinessConfig identifies the business running the back office.
type BusinessConfig struct {
	Name string `yaml:"name"`
}

// StoreConfig selects and configures persistence.
type StoreConfig struct {
	Driver     string           `yaml:"driver"` // memory, csv or postgres
	DataDir    string           `yaml:"data_dir"`
	Postgres   postgres.Config  `yaml:"postgres"`
	Resilience resilient.Config `yaml:"resilience"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// EventsConfig configures event publishing. No brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`

	// Timeout bounds each publish; zero uses the publisher's default.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// CartConfig locates the storefront cart state.
type CartConfig struct {
	Path string `yaml:"path"`
}

// GitConfig controls committing ledger changes when the project directory
// is a git repository.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a curaledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(""), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new installation.
func Default(businessName string) *Config {
	return &Config{
		Business: BusinessConfig{Name: businessName},
		Store: StoreConfig{
			Driver:     DriverCSV,
			DataDir:    "data",
			Postgres:   postgres.DefaultConfig(),
			Resilience: resilient.DefaultConfig(),
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "curaledger",
		},
		Logging: logging.DefaultConfig(),
		Cart:    CartConfig{Path: "data/cart.yaml"},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "curaledger",
			AuthorEmail: "ledger@curasupply.local",
		},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables.
func ApplyEnv(cfg *Config) error {
	cfg.Store.Driver = getEnv("CURALEDGER_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DataDir = getEnv("CURALEDGER_DATA_DIR", cfg.Store.DataDir)
	cfg.HTTP.Addr = getEnv("CURALEDGER_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Cart.Path = getEnv("CURALEDGER_CART_PATH", cfg.Cart.Path)

	pg := &cfg.Store.Postgres
	pg.URL = getEnv("DATABASE_URL", pg.URL)
	pg.Host = getEnv("DB_HOST", pg.Host)
	pg.User = getEnv("DB_USER", pg.User)
	pg.Password = getEnv("DB_PASSWORD", pg.Password)
	pg.Database = getEnv("DB_NAME", pg.Database)
	pg.SSLMode = getEnv("DB_SSLMODE", pg.SSLMode)
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		pg.Port = port
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = nil
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Events.Brokers = append(cfg.Events.Brokers, broker)
			}
		}
	}

	cfg.Metrics.Enabled = getBoolEnv("CURALEDGER_METRICS", cfg.Metrics.Enabled)
	cfg.Logging = logging.ApplyEnv(cfg.Logging)
	return cfg.Validate()
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres:
	case DriverCSV:
		if c.Store.DataDir == "" {
			return errors.New("store.data_dir is required for the csv driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
