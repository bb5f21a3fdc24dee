package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"ChartSync/internal/domain/models"
	"ChartSync/pkg/logger"
)

type Config struct {
	Environment string        `yaml:"environment" default:"dev"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage struct {
		Backend string `yaml:"backend" default:"sqlite"` // sqlite, postgres, clickhouse, redis
		SQLite  struct {
			Path string `yaml:"path" default:"chartsync.db"`
		} `yaml:"sqlite"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
		// LocalTTL > 0 puts an in-process layer in front of Redis. Another
		// instance may then serve the previous points for up to LocalTTL after
		// a replace.
		Redis struct {
			LocalTTL time.Duration `yaml:"local_ttl"`
		} `yaml:"redis"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"chartsync"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"chartsync"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		NotifyTopic  string   `yaml:"notify_topic" default:"chartsync.charts"`
		RefreshTopic string   `yaml:"refresh_topic" default:"chartsync.refresh"`
		NotifyBuffer int      `yaml:"notify_buffer" default:"256"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"chartsync"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Provider struct {
		BaseURL   string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout" default:"15s"`
		RateLimit struct {
			Capacity     float64 `yaml:"capacity" default:"10"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"0.5"`
		} `yaml:"rate_limit"`
	} `yaml:"provider"`
	Chart struct {
		Windows     map[string]WindowConfig `yaml:"windows"`
		Instruments []models.Instrument     `yaml:"instruments"`
	} `yaml:"chart"`
	Refresh struct {
		Enabled    bool          `yaml:"enabled"`
		Spec       string        `yaml:"spec" default:"@every 5m"`
		Currencies []string      `yaml:"currencies" default:"[\"usd\"]"`
		RangeTypes []string      `yaml:"range_types" default:"[\"today\",\"week1\"]"`
		LockTTL    time.Duration `yaml:"lock_ttl" default:"2m"`
		Queue      struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"2"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
			Prefix     string        `yaml:"prefix" default:"chartsync:queue"`
		} `yaml:"queue"`
	} `yaml:"refresh"`
}

// WindowConfig overrides the freshness window of one range type.
type WindowConfig struct {
	Range      time.Duration `yaml:"range"`
	Expiration time.Duration `yaml:"expiration"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR port: %w", err)
			}
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	return c.Validate()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("storage.backend 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("storage.backend must be one of sqlite, postgres, clickhouse, redis, got '%s'", c.Storage.Backend)
	}
	if c.Refresh.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("refresh.queue requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if len(c.Chart.Instruments) == 0 {
		return fmt.Errorf("chart.instruments cannot be empty")
	}
	for i, inst := range c.Chart.Instruments {
		if inst.UID == "" {
			return fmt.Errorf("chart.instruments[%d].uid is required", i)
		}
	}
	for name := range c.Chart.Windows {
		if !models.IsValidRangeType(models.RangeType(name)) {
			return fmt.Errorf("chart.windows: unknown range type '%s'", name)
		}
	}
	for _, rt := range c.Refresh.RangeTypes {
		if !models.IsValidRangeType(models.RangeType(rt)) {
			return fmt.Errorf("refresh.range_types: unknown range type '%s'", rt)
		}
	}
	return nil
}
