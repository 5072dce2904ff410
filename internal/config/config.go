package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EFFECTSIM_LOG_LEVEL.
const EnvPrefix = "EFFECTSIM_"

// Simulation holds all configuration for the effect simulation host.
type Simulation struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Tick loop
	TickRate int           `yaml:"tick_rate" env:"TICK_RATE"` // ticks per second
	Seed     uint64        `yaml:"seed" env:"SEED"`           // 0 = random
	Duration time.Duration `yaml:"duration" env:"DURATION"`   // 0 = run until interrupted

	// Content
	CatalogPath string `yaml:"catalog" env:"CATALOG"`

	Store       StoreConfig       `yaml:"store" envPrefix:"STORE_"`
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DB_"`
	Replication ReplicationConfig `yaml:"replication" envPrefix:"REPLICATION_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing     TracingConfig     `yaml:"tracing" envPrefix:"TRACING_"`

	Entities []EntityConfig `yaml:"entities"`
}

// StoreConfig selects where entity snapshots are persisted.
type StoreConfig struct {
	Driver           string        `yaml:"driver" env:"DRIVER"` // sqlite | postgres | none
	SQLitePath       string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"NAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ReplicationConfig configures the websocket replication hub.
type ReplicationConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	ListenAddr   string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	SendQueue    int           `yaml:"send_queue" env:"SEND_QUEUE"` // per-observer buffered records
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// TracingConfig configures OpenTelemetry export. An empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// EntityConfig declares one simulated entity and its scripted
// applications.
type EntityConfig struct {
	Name          string              `yaml:"name"`
	AttributeSets []string            `yaml:"attribute_sets"`
	Tags          []string            `yaml:"tags"`
	Apply         []ApplicationConfig `yaml:"apply"`
}

// ApplicationConfig applies Effect from Source (default: the entity
// itself) at At, then every Every when set.
type ApplicationConfig struct {
	Effect      string             `yaml:"effect"`
	Level       float64            `yaml:"level"`
	Source      string             `yaml:"source"`
	At          time.Duration      `yaml:"at"`
	Every       time.Duration      `yaml:"every"`
	SetByCaller map[string]float64 `yaml:"set_by_caller"`
}

// DefaultSimulation returns Simulation config with sensible defaults.
func DefaultSimulation() Simulation {
	return Simulation{
		LogLevel:    "info",
		TickRate:    20,
		CatalogPath: "config/effects.yaml",
		Store: StoreConfig{
			Driver:           "sqlite",
			SQLitePath:       "effectsim.db",
			SnapshotInterval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "effectsim",
			Password: "effectsim",
			DBName:   "effectsim",
			SSLMode:  "disable",
			MaxConns: 4,
		},
		Replication: ReplicationConfig{
			Enabled:      true,
			ListenAddr:   "127.0.0.1:7780",
			SendQueue:    256,
			WriteTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9108",
		},
		Tracing: TracingConfig{
			ServiceName: "effectsim",
		},
	}
}

// LoadSimulation loads config from a YAML file, then applies EFFECTSIM_*
// environment overrides. If the file doesn't exist, defaults are used.
func LoadSimulation(path string) (Simulation, error) {
	cfg := DefaultSimulation()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges and references between entities.
func (c Simulation) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", c.TickRate)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	names := make(map[string]bool, len(c.Entities))
	for _, e := range c.Entities {
		if e.Name == "" || names[e.Name] {
			return fmt.Errorf("entity name %q empty or duplicate", e.Name)
		}
		names[e.Name] = true
	}
	for _, e := range c.Entities {
		for _, a := range e.Apply {
			if a.Effect == "" {
				return fmt.Errorf("entity %s: application without effect", e.Name)
			}
			if a.Source != "" && !names[a.Source] {
				return fmt.Errorf("entity %s: unknown source %q", e.Name, a.Source)
			}
		}
	}
	return nil
}

// TickInterval returns the duration of one tick.
func (c Simulation) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
