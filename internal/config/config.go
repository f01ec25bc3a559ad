package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Remote       RemoteConfig       `yaml:"remote"`
	Queue        QueueConfig        `yaml:"queue"`
	Retry        RetryConfig        `yaml:"retry"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	API          APIConfig          `yaml:"api"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Exports      ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type QueueConfig struct {
	Capacity       int `yaml:"capacity"`
	SyncRetryLimit int `yaml:"sync_retry_limit"`
}

type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ConnectivityConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	FastThreshold time.Duration `yaml:"fast_threshold"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен, читаем если есть
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Connectivity.FastThreshold >= c.Connectivity.SlowThreshold {
		return fmt.Errorf("connectivity fast_threshold (%s) must be below slow_threshold (%s)",
			c.Connectivity.FastThreshold, c.Connectivity.SlowThreshold)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pklapps-agent"
	}

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = models.DefaultQueueCapacity
	}
	if c.Queue.SyncRetryLimit == 0 {
		c.Queue.SyncRetryLimit = models.DefaultSyncRetryLimit
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = models.DefaultMaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = 2
	}

	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = c.Remote.BaseURL + "/api/v1/ping"
	}
	if c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = models.DefaultProbeInterval
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = models.DefaultProbeTimeout
	}
	if c.Connectivity.FastThreshold == 0 {
		c.Connectivity.FastThreshold = models.DefaultFastThreshold
	}
	if c.Connectivity.SlowThreshold == 0 {
		c.Connectivity.SlowThreshold = models.DefaultSlowThreshold
	}

	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = models.DefaultRemoteTimeout
	}

	if c.Sync.RPS == 0 {
		c.Sync.RPS = models.DefaultSyncRPS
	}
	if c.Sync.Burst == 0 {
		c.Sync.Burst = models.DefaultSyncBurst
	}

	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8765
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
