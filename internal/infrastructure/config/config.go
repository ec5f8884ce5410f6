package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Service  string   `yaml:"service"`
	Env      string   `yaml:"env"`
	HTTPAddr string   `yaml:"http_addr"`
	Storage  Storage  `yaml:"storage"`
	Log      Log      `yaml:"log"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Events   Events   `yaml:"events"`
	// LowStockSweep is the interval of the low-stock gauge refresh; zero
	// disables the job.
	LowStockSweep time.Duration `yaml:"low_stock_sweep"`
	// SeedFile is an optional YAML menu loaded into the in-memory catalog.
	SeedFile string `yaml:"seed_file"`
}

type Storage struct {
	Driver   string   `yaml:"driver"`
	Postgres Postgres `yaml:"postgres"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// Migrate applies the embedded schema at start-up.
	Migrate bool `yaml:"migrate"`
}

// DSN is the pgx connection string.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(int(p.MaxConns)))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RabbitMQ is disabled when URL is empty.
type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Events struct {
	QueueSize   int `yaml:"queue_size"`
	Concurrency int `yaml:"concurrency"`
}

func Default() Config {
	return Config{
		Service:  "restaurant-pos",
		Env:      "dev",
		HTTPAddr: ":8080",
		Storage: Storage{
			Driver: DriverMemory,
			Postgres: Postgres{
				Host:     "localhost",
				Port:     "5432",
				User:     "pos",
				Password: "pos",
				Database: "pos",
				SSLMode:  "disable",
				MaxConns: 10,
				Migrate:  true,
			},
		},
		Log:           Log{Level: "info"},
		RabbitMQ:      RabbitMQ{Exchange: "pos.events"},
		Events:        Events{QueueSize: 1024, Concurrency: 8},
		LowStockSweep: time.Minute,
	}
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE,
// then environment overrides, on top of Default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVICE_NAME", &c.Service)
	str("ENV", &c.Env)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("POSTGRES_HOST", &c.Storage.Postgres.Host)
	str("POSTGRES_PORT", &c.Storage.Postgres.Port)
	str("POSTGRES_USER", &c.Storage.Postgres.User)
	str("POSTGRES_PASSWORD", &c.Storage.Postgres.Password)
	str("POSTGRES_DB", &c.Storage.Postgres.Database)
	str("POSTGRES_SSLMODE", &c.Storage.Postgres.SSLMode)
	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("RABBITMQ_EXCHANGE", &c.RabbitMQ.Exchange)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("SEED_FILE", &c.SeedFile)

	if v, ok := lookup("POSTGRES_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: POSTGRES_MIGRATE: %w", err)
		}
		c.Storage.Postgres.Migrate = b
	}
	if v, ok := lookup("LOW_STOCK_SWEEP"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LOW_STOCK_SWEEP: %w", err)
		}
		c.LowStockSweep = d
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.HTTPAddr == "" {
		return errors.New("config: http address is required")
	}
	if c.LowStockSweep < 0 {
		return errors.New("config: low stock sweep must not be negative")
	}
	return nil
}
