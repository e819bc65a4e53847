package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. AUDITWATCH_HTTP_ADDR
const EnvPrefix = "AUDITWATCH"

// Config holds runtime configuration for the alerting service.
type Config struct {
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"` // json or console
	HTTP      HTTPConfig     `mapstructure:"http"`
	Monitor   MonitorConfig  `mapstructure:"monitor"`
	Dispatch  DispatchConfig `mapstructure:"dispatch"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Archive   ArchiveConfig  `mapstructure:"archive"`

	// Seed data loaded into the registry at startup
	Rules    []RuleConfig    `mapstructure:"rules"`
	Channels []ChannelConfig `mapstructure:"channels"`
}

// HTTPConfig configures the admin API listener
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MonitorConfig configures the monitoring loop
type MonitorConfig struct {
	Interval    time.Duration     `mapstructure:"interval"`
	Targets     []string          `mapstructure:"targets"`
	Parallelism int               `mapstructure:"parallelism"`
	HistorySize int               `mapstructure:"history_size"`
	Sampler     string            `mapstructure:"sampler"` // synthetic or http
	ProbeURLs   map[string]string `mapstructure:"probe_urls"`
	AutoStart   bool              `mapstructure:"auto_start"`
}

// DispatchConfig configures notification fan-out
type DispatchConfig struct {
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
}

// KafkaConfig configures the notification event stream
type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig holds Kafka writer tuning
type ProducerConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Compression  string        `mapstructure:"compression"`
}

// RedisConfig configures cooldown persistence
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// ArchiveConfig configures the notification archive
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite or mysql
	DSN     string `mapstructure:"dsn"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:    60 * time.Second,
			Targets:     []string{"cbe", "eta", "fra", "asa", "egx"},
			Parallelism: 1,
			HistorySize: 100,
			Sampler:     "synthetic",
			AutoStart:   true,
		},
		Dispatch: DispatchConfig{
			ChannelTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "auditwatch.notifications",
			Producer: ProducerConfig{
				BatchSize:    1,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 5 * time.Second,
				RequiredAcks: -1,
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
				Compression:  "snappy",
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "auditwatch:rule_last_fired",
		},
		Archive: ArchiveConfig{
			Driver: "sqlite",
			DSN:    "auditwatch.db",
		},
		Rules: DefaultRules(),
	}
}

// Load reads configuration from an optional YAML file and AUDITWATCH_*
// environment variables on top of Default().
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Seed rules are replaced wholesale, never merged with the defaults
	if !v.IsSet("rules") {
		cfg.Rules = DefaultRules()
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.targets", d.Monitor.Targets)
	v.SetDefault("monitor.parallelism", d.Monitor.Parallelism)
	v.SetDefault("monitor.history_size", d.Monitor.HistorySize)
	v.SetDefault("monitor.sampler", d.Monitor.Sampler)
	v.SetDefault("monitor.auto_start", d.Monitor.AutoStart)

	v.SetDefault("dispatch.channel_timeout", d.Dispatch.ChannelTimeout)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.producer.batch_size", d.Kafka.Producer.BatchSize)
	v.SetDefault("kafka.producer.batch_timeout", d.Kafka.Producer.BatchTimeout)
	v.SetDefault("kafka.producer.write_timeout", d.Kafka.Producer.WriteTimeout)
	v.SetDefault("kafka.producer.required_acks", d.Kafka.Producer.RequiredAcks)
	v.SetDefault("kafka.producer.max_retries", d.Kafka.Producer.MaxRetries)
	v.SetDefault("kafka.producer.retry_backoff", d.Kafka.Producer.RetryBackoff)
	v.SetDefault("kafka.producer.compression", d.Kafka.Producer.Compression)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key", d.Redis.Key)

	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.driver", d.Archive.Driver)
	v.SetDefault("archive.dsn", d.Archive.DSN)
}

// Configuration errors
var (
	ErrNonPositiveInterval = errors.New("monitor.interval must be positive")
	ErrNonPositiveTimeout  = errors.New("dispatch.channel_timeout must be positive")
	ErrNoTargets           = errors.New("monitor.targets must list at least one target")
	ErrUnknownSampler      = errors.New("monitor.sampler must be synthetic or http")
	ErrUnknownDriver       = errors.New("archive.driver must be sqlite or mysql")
	ErrKafkaIncomplete     = errors.New("kafka requires brokers and topic when enabled")
)

// Validate checks the configuration and every seed rule and channel
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return ErrNonPositiveInterval
	}
	if c.Dispatch.ChannelTimeout <= 0 {
		return ErrNonPositiveTimeout
	}
	if len(c.Monitor.Targets) == 0 {
		return ErrNoTargets
	}
	if c.Monitor.HistorySize <= 0 {
		return fmt.Errorf("monitor.history_size must be positive, got %d", c.Monitor.HistorySize)
	}
	if c.Monitor.Parallelism <= 0 {
		return fmt.Errorf("monitor.parallelism must be positive, got %d", c.Monitor.Parallelism)
	}

	switch c.Monitor.Sampler {
	case "synthetic":
	case "http":
		for _, target := range c.Monitor.Targets {
			if c.Monitor.ProbeURLs[target] == "" {
				return fmt.Errorf("monitor.probe_urls missing URL for target %q", target)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSampler, c.Monitor.Sampler)
	}

	if c.Archive.Enabled && c.Archive.Driver != "sqlite" && c.Archive.Driver != "mysql" {
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Archive.Driver)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return ErrKafkaIncomplete
	}

	for i, rc := range c.Rules {
		rule := rc.Model()
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	for i, cc := range c.Channels {
		ch := cc.Model()
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
	}

	return nil
}
