package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string  `yaml:"listen"`        // Address the HTTP gateway listens on, e.g. ":5001".
	LogLevel     int     `yaml:"log_level"`     // Logging level (e.g., 0: info, -4: debug).
	DefaultLimit int     `yaml:"default_limit"` // Default message count for listing endpoints.
	CacheSize    int     `yaml:"cache_size"`    // Maximum number of attachment cache entries.
	IMAP         Mailbox `yaml:"imap"`          // Retrieval server credentials.
	SMTP         Mailbox `yaml:"smtp"`          // Submission server credentials.
}

// Mailbox describes one protocol endpoint together with the account
// credentials used to authenticate against it. Values are immutable
// once loaded; secrets are expected to arrive via environment expansion.
type Mailbox struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	TLS         bool          `yaml:"tls"`      // Implicit TLS; false means STARTTLS upgrade.
	Address     string        `yaml:"address"`  // Account address, also used as the sender address.
	Password    string        `yaml:"password"` // Account secret.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Addr returns the host:port dial address of the endpoint.
func (m Mailbox) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

const (
	defaultListen      = ":5001"
	defaultLimit       = 10
	defaultCacheSize   = 256
	defaultDialTimeout = 30 * time.Second
)

func LoadConfig(cfgFilepath, envFilepath string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(envFilepath); err == nil {
		if err = godotenv.Load(envFilepath); err != nil {
			return cfg, fmt.Errorf("unable to load environment variables from file: %w", err)
		}
	}

	fileBytes, err := os.ReadFile(cfgFilepath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("configuration file at this cfgFilepath doesn't exist: %w", err)
		case errors.Is(err, os.ErrPermission):
			return cfg, fmt.Errorf("permission denied for accessing configuration file: %w", err)
		default:
			return cfg, fmt.Errorf("unexpected error during reading configuration file: %w", err)
		}
	}

	envExpanded := os.ExpandEnv(string(fileBytes))
	if err = yaml.Unmarshal([]byte(envExpanded), &cfg); err != nil {
		return cfg, fmt.Errorf("unable to unmarshal configuration file: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultLimit
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.IMAP.DialTimeout <= 0 {
		c.IMAP.DialTimeout = defaultDialTimeout
	}
	if c.SMTP.DialTimeout <= 0 {
		c.SMTP.DialTimeout = defaultDialTimeout
	}
}

func (c *Config) validate() error {
	for _, endpoint := range []struct {
		name string
		m    Mailbox
	}{
		{"imap", c.IMAP},
		{"smtp", c.SMTP},
	} {
		if endpoint.m.Host == "" {
			return fmt.Errorf("%s.host is required", endpoint.name)
		}
		if endpoint.m.Port == 0 {
			return fmt.Errorf("%s.port is required", endpoint.name)
		}
		if endpoint.m.Address == "" {
			return fmt.Errorf("%s.address is required", endpoint.name)
		}
		if endpoint.m.Password == "" {
			return fmt.Errorf("%s.password is required", endpoint.name)
		}
	}

	return nil
}
