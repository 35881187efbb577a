// Package config loads the server configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	ContactLog  = "log"
	ContactMQTT = "mqtt"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// UploadURL is linked from the empty feed.
	UploadURL string `yaml:"upload_url"`
	ImageDir  string `yaml:"image_dir"`
	// MaxUploadBytes bounds multipart bodies on /upload-product.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" | "postgres" | "memory"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Key         string `yaml:"key"`
	QuotaBytes  int    `yaml:"quota_bytes"`
}

type AuthConfig struct {
	URL       string        `yaml:"url"`
	AnonKey   string        `yaml:"anon_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	Leeway    time.Duration `yaml:"leeway"`
	// ResetRedirectURL is where password recovery emails send the user.
	ResetRedirectURL string `yaml:"reset_redirect_url"`
}

// Enabled reports whether enough is configured to verify session tokens.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

type ContactConfig struct {
	Driver      string `yaml:"driver"` // "log" | "mqtt"
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	UseTLS      bool   `yaml:"use_tls"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Contact ContactConfig `yaml:"contact"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
			UploadURL:       "/post-upload",
			ImageDir:        "./images",
			MaxUploadBytes:  10 << 20,
		},
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "./cropfeed.db",
			Key:        "cropPosts",
			QuotaBytes: 5 * 1024 * 1024,
		},
		Auth: AuthConfig{
			Leeway: 60 * time.Second,
		},
		Contact: ContactConfig{
			Driver:      ContactLog,
			TopicPrefix: "cropfeed/contact",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of Default() and then applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			// Keys absent from the file keep their defaults.
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv lets deployment secrets stay out of the config file. Storage
// paths are resolved by the database packages themselves.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Auth.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		c.Auth.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Contact.Broker = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Storage.Driver {
	case StorageSQLite, StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Storage.Key == "" {
		return errors.New("storage.key cannot be empty")
	}

	switch c.Contact.Driver {
	case ContactLog:
	case ContactMQTT:
		if c.Contact.Broker == "" {
			return errors.New("contact.broker is required when contact.driver is mqtt")
		}
	default:
		return fmt.Errorf("unknown contact.driver %q", c.Contact.Driver)
	}

	if c.Contact.QoS > 2 {
		return fmt.Errorf("contact.qos %d must be 0, 1 or 2", c.Contact.QoS)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	return nil
}
