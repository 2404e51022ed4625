package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "FLEET"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig selects the database/sql driver: "pgx" (jackc/pgx stdlib) or "postgres" (lib/pq).
type DatabaseConfig struct {
	URL    string `mapstructure:"url"`
	Driver string `mapstructure:"driver"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type IngestConfig struct {
	HMACSecret string        `mapstructure:"hmac_secret"`
	MaxSkew    time.Duration `mapstructure:"max_skew"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig enables the device lookup cache when Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	DeviceTTL time.Duration `mapstructure:"device_ttl"`
}

// MQTTConfig enables the MQTT ingest subscriber when Broker is set.
type MQTTConfig struct {
	Broker   string   `mapstructure:"broker"`
	ClientID string   `mapstructure:"client_id"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Topics   []string `mapstructure:"topics"`
	QoS      int      `mapstructure:"qos"`
}

type AlertsConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	NotifyTemplate string        `mapstructure:"notify_template"`
	NotifyTimeout  time.Duration `mapstructure:"notify_timeout"`
	NotifyCooldown time.Duration `mapstructure:"notify_cooldown"`
}

// SeedConfig points at a YAML fixture applied at startup.
type SeedConfig struct {
	File string `mapstructure:"file"`
}

// ChangeCallback receives the reloaded configuration.
type ChangeCallback func(cfg *Config) error

// Loader reads configuration from defaults, an optional YAML file and FLEET_* env vars.
type Loader struct {
	v    *viper.Viper
	path string

	mu         sync.Mutex
	lastChange time.Time
	debounce   time.Duration
}

// NewLoader constructs a loader. path may be empty.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, path: path, debounce: time.Second}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("ingest.hmac_secret", "")
	v.SetDefault("ingest.max_skew", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.device_ttl", 10*time.Minute)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topics", []string{"fleet/+/readings"})
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.notify_template", "")
	v.SetDefault("alerts.notify_timeout", 5*time.Second)
	v.SetDefault("alerts.notify_cooldown", time.Duration(0))
	v.SetDefault("seed.file", "")
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.path, err)
		}
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return &cfg, nil
}

// Watch reloads the file on write and passes the new configuration to cb.
// Bursts of events within the debounce interval are collapsed.
func (l *Loader) Watch(cb ChangeCallback) error {
	if l.path == "" {
		return errors.New("config: watch requires a config file")
	}
	if cb == nil {
		return errors.New("config: nil callback")
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		now := time.Now()
		if now.Sub(l.lastChange) < l.debounce {
			l.mu.Unlock()
			return
		}
		l.lastChange = now
		l.mu.Unlock()

		cfg, err := l.decode()
		if err != nil {
			return
		}
		_ = cb(cfg)
	})
	l.v.WatchConfig()
	return nil
}

// Validate enforces required keys.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for postgres storage")
		}
		switch c.Database.Driver {
		case "pgx", "postgres":
		default:
			return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config: unsupported storage.driver %q", c.Storage.Driver)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
