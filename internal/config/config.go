package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"kerigma/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Sync          SyncConfig          `yaml:"sync"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Connectivity  ConnectivityConfig  `yaml:"connectivity"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Sentry        SentryConfig        `yaml:"sentry"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	API           APIConfig           `yaml:"api"`
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

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type StorageConfig struct {
	Backend    string `yaml:"backend"`
	Key        string `yaml:"key"`
	SQLitePath string `yaml:"sqlite_path"`
	// Failover mirrors a redis primary into sqlite_path; the mirror serves
	// reads while redis is down. Writes still require redis.
	Failover bool `yaml:"failover"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SyncConfig struct {
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	StartOnline     *bool         `yaml:"start_online"`
	Retry           RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type DeliveryConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Routes  map[string]string `yaml:"routes"`
	Timeout time.Duration     `yaml:"timeout"`
}

const (
	ConnectivitySignal = "signal"
	ConnectivityProbe  = "probe"
)

type ConnectivityConfig struct {
	Mode          string        `yaml:"mode"`
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type NotificationsConfig struct {
	Log      bool           `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type SentryConfig struct {
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; missing file is not an error.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

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
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Connectivity.Mode {
	case ConnectivitySignal:
	case ConnectivityProbe:
		if c.Connectivity.ProbeURL == "" {
			return errors.New("connectivity.probe_url is required for probe mode")
		}
	default:
		return fmt.Errorf("unknown connectivity mode %q", c.Connectivity.Mode)
	}

	if c.Notifications.Telegram.BotToken != "" && c.Notifications.Telegram.ChatID == 0 {
		return errors.New("notifications.telegram.chat_id is required when bot_token is set")
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.api_keys must not be empty when auth is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "kerigma-offline-sync"
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.Key == "" {
		c.Storage.Key = models.DefaultStorageKey
	}
	if (c.Storage.Backend == BackendSQLite || c.Storage.Failover) && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/offline.db"
	}

	if c.Sync.DeliveryTimeout <= 0 {
		c.Sync.DeliveryTimeout = models.DefaultDeliveryTimeout
	}
	if c.Sync.Retry.InitialDelay <= 0 {
		c.Sync.Retry.InitialDelay = 2 * time.Second
	}
	if c.Sync.Retry.MaxDelay <= 0 {
		c.Sync.Retry.MaxDelay = time.Minute
	}
	if c.Sync.Retry.BackoffFactor <= 0 {
		c.Sync.Retry.BackoffFactor = 2
	}

	if c.Delivery.Timeout <= 0 {
		c.Delivery.Timeout = c.Sync.DeliveryTimeout
	}

	c.Connectivity.Mode = strings.ToLower(strings.TrimSpace(c.Connectivity.Mode))
	if c.Connectivity.Mode == "" {
		c.Connectivity.Mode = ConnectivitySignal
	}
	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = 10 * time.Second
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		c.Connectivity.ProbeTimeout = 3 * time.Second
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
}

// StartOnline reports the initial connectivity assumed in signal mode.
func (c *Config) StartOnline() bool {
	if c.Sync.StartOnline == nil {
		return true
	}
	return *c.Sync.StartOnline
}
