package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Live      LiveConfig      `yaml:"live"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where the job map is persisted
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	FilePath    string        `yaml:"file_path"`
	RedisKey    string        `yaml:"redis_key"`
	SaveTimeout time.Duration `yaml:"save_timeout"`
}

// RetentionConfig bounds how many jobs are kept and for how long
type RetentionConfig struct {
	MaxJobs       int           `yaml:"max_jobs"`
	CompletedTTL  time.Duration `yaml:"completed_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// WebhookConfig holds webhook verification settings. An empty secret
// disables signature checks.
type WebhookConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
}

// LiveConfig tunes the websocket live channel
type LiveConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	ReadLimit    int64         `yaml:"read_limit"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// RabbitMQConfig holds the broker connection and the two optional
// integrations built on it
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Events     EventsConfig     `yaml:"events"`
	Intake     IntakeConfig     `yaml:"intake"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// EventsConfig controls publishing of job change events
type EventsConfig struct {
	Enabled    bool           `yaml:"enabled"`
	Exchange   ExchangeConfig `yaml:"exchange"`
	BufferSize int            `yaml:"buffer_size"`
}

// IntakeConfig controls consumption of target status messages
type IntakeConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Exchange      ExchangeConfig `yaml:"exchange"`
	Queue         QueueConfig    `yaml:"queue"`
	RoutingKey    string         `yaml:"routing_key"`
	ConsumerTag   string         `yaml:"consumer_tag"`
	Concurrency   int            `yaml:"concurrency"`
	PrefetchCount int            `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file. ${VAR} references in scalar
// values are expanded from the environment after parsing, so the variable
// content is never read as YAML.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	expandEnv(&root)

	var config Config
	if root.Kind != 0 {
		if err := root.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyDefaults()
	return &config, nil
}

func expandEnv(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		expanded := os.ExpandEnv(n.Value)
		if expanded != n.Value {
			n.Value = expanded
			if n.Style == 0 {
				// re-resolve so ${PORT} can still decode into an int
				n.Tag = ""
			}
		}
		return
	}
	for _, child := range n.Content {
		expandEnv(child)
	}
}

// ApplyDefaults fills every unset field that has a sensible default
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Backend == BackendFile && c.Store.FilePath == "" {
		c.Store.FilePath = "data/jobs.json"
	}
	if c.Store.RedisKey == "" {
		c.Store.RedisKey = "push-orchestrator:jobs"
	}
	if c.Store.SaveTimeout == 0 {
		c.Store.SaveTimeout = 10 * time.Second
	}

	if c.Retention.MaxJobs == 0 {
		c.Retention.MaxJobs = 100
	}
	if c.Retention.CompletedTTL == 0 {
		c.Retention.CompletedTTL = 24 * time.Hour
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = 24 * time.Hour
	}

	if c.Webhook.SignatureHeader == "" {
		c.Webhook.SignatureHeader = "X-Webhook-Signature"
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.RabbitMQ.Events.Exchange.Type == "" {
		c.RabbitMQ.Events.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Intake.Exchange.Type == "" {
		c.RabbitMQ.Intake.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Intake.Concurrency == 0 {
		c.RabbitMQ.Intake.Concurrency = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.Retention.MaxJobs <= 0 {
		return fmt.Errorf("retention max_jobs must be greater than 0")
	}
	if c.Retention.CompletedTTL <= 0 {
		return fmt.Errorf("retention completed_ttl must be greater than 0")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention sweep_interval must be greater than 0")
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.FilePath == "" {
			return fmt.Errorf("store file_path is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Events.Enabled && !c.RabbitMQ.Intake.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Events.Enabled && c.RabbitMQ.Events.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq events exchange name is required")
	}

	if c.RabbitMQ.Intake.Enabled {
		if c.RabbitMQ.Intake.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq intake exchange name is required")
		}
		if c.RabbitMQ.Intake.Queue.Name == "" {
			return fmt.Errorf("rabbitmq intake queue name is required")
		}
		if c.RabbitMQ.Intake.Concurrency <= 0 {
			return fmt.Errorf("rabbitmq intake concurrency must be greater than 0")
		}
	}

	return nil
}
