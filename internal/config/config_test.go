package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("PUSH_WEBHOOK_SECRET", "from-env")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
			assert.Equal(t, BackendPostgres, cfg.Store.Backend)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "push_db", cfg.Database.Database)
			assert.Equal(t, time.Hour, cfg.Retention.SweepInterval)
			assert.Equal(t, "from-env", cfg.Webhook.Secret)
			assert.Equal(t, "push_events", cfg.RabbitMQ.Events.Exchange.Name)
			assert.Equal(t, "push_status_queue", cfg.RabbitMQ.Intake.Queue.Name)
			assert.Equal(t, 2, cfg.RabbitMQ.Intake.Concurrency)
			assert.Equal(t, "push-orchestrator", cfg.App.Name)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_EnvValuesAreNotParsedAsYAML(t *testing.T) {
	t.Setenv("PUSH_WEBHOOK_SECRET", "abc #1: *ref")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "abc #1: *ref", cfg.Webhook.Secret)
}

func TestLoad_ExpandsNonStringFields(t *testing.T) {
	t.Setenv("PUSH_PORT", "9191")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: ${PUSH_PORT}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "data/jobs.json", cfg.Store.FilePath)
	assert.Equal(t, 100, cfg.Retention.MaxJobs)
	assert.Equal(t, 24*time.Hour, cfg.Retention.CompletedTTL)
	assert.Equal(t, 24*time.Hour, cfg.Retention.SweepInterval)
	assert.Equal(t, "X-Webhook-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "topic", cfg.RabbitMQ.Events.Exchange.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Webhook.Secret)
	assert.NoError(t, cfg.Validate())
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = -1 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Store.Backend = "s3" },
			errString: "unknown store backend",
		},
		{
			name:      "file backend without path",
			mutate:    func(c *Config) { c.Store.FilePath = "" },
			errString: "file_path is required",
		},
		{
			name:   "memory backend",
			mutate: func(c *Config) { c.Store.Backend = BackendMemory },
		},
		{
			name:      "postgres without host",
			mutate:    func(c *Config) { c.Store.Backend = BackendPostgres },
			errString: "database host is required",
		},
		{
			name: "postgres without database name",
			mutate: func(c *Config) {
				c.Store.Backend = BackendPostgres
				c.Database.Host = "localhost"
				c.Database.Port = 5432
			},
			errString: "database name is required",
		},
		{
			name:      "redis without addr",
			mutate:    func(c *Config) { c.Store.Backend = BackendRedis },
			errString: "redis addr is required",
		},
		{
			name: "redis backend",
			mutate: func(c *Config) {
				c.Store.Backend = BackendRedis
				c.Redis.Addr = "localhost:6379"
			},
		},
		{
			name:      "non-positive max jobs",
			mutate:    func(c *Config) { c.Retention.MaxJobs = -5 },
			errString: "max_jobs must be greater than 0",
		},
		{
			name:      "events without broker host",
			mutate:    func(c *Config) { c.RabbitMQ.Events.Enabled = true },
			errString: "rabbitmq host is required",
		},
		{
			name: "events without exchange",
			mutate: func(c *Config) {
				c.RabbitMQ.Events.Enabled = true
				c.RabbitMQ.Host = "localhost"
				c.RabbitMQ.Port = 5672
			},
			errString: "events exchange name is required",
		},
		{
			name: "intake without queue",
			mutate: func(c *Config) {
				c.RabbitMQ.Intake.Enabled = true
				c.RabbitMQ.Host = "localhost"
				c.RabbitMQ.Port = 5672
				c.RabbitMQ.Intake.Exchange.Name = "push_status"
			},
			errString: "intake queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
