package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bemfarelay/internal/client/logger"
	"bemfarelay/internal/client/session"
)

// Config is the relay configuration stored at ~/.bemfa-relay.yml.
// Values are loaded from defaults, then the YAML file, then BEMFA_* environment variables.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Status  StatusConfig  `yaml:"status"`
	Network NetworkConfig `yaml:"network"`
	Sentry  SentryConfig  `yaml:"sentry"`
	Debug   bool          `yaml:"debug"`

	// LogLevel is one of debug, info, warn, error. Debug forces debug.
	LogLevel string `yaml:"log_level"`
}

// BrokerConfig contains the bemfa endpoints.
type BrokerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	RegisterURL string `yaml:"register_url"`
	DNSServer   string `yaml:"dns_server"` // empty uses the system resolver
}

// SessionConfig contains pacing and timeout settings.
type SessionConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReplyTimeout     time.Duration `yaml:"reply_timeout"`
	ListenTimeout    time.Duration `yaml:"listen_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	MaxDelay         time.Duration `yaml:"max_delay"`
}

// StoreConfig locates the device state database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig configures the local status API.
type StatusConfig struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// NetworkConfig selects the interface watched for availability.
type NetworkConfig struct {
	Interface string `yaml:"interface"` // empty watches every interface
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns a Config pointing at the public bemfa service.
func Default() *Config {
	sc := session.DefaultConfig()
	rc := session.DefaultReconnectConfig()
	return &Config{
		Broker: BrokerConfig{
			Host:        sc.BrokerHost,
			Port:        sc.BrokerPort,
			RegisterURL: sc.RegisterURL,
		},
		Session: SessionConfig{
			TickInterval:     rc.InitialDelay,
			DialTimeout:      10 * time.Second,
			ReplyTimeout:     sc.ReplyTimeout,
			ListenTimeout:    sc.ListenTimeout,
			FailureThreshold: rc.FailureThreshold,
			MaxDelay:         rc.MaxDelay,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:4040",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "bemfa-relay.db"
	}
	return filepath.Join(home, ".bemfa-relay.db")
}

// GetConfigPath returns the config file path. BEMFA_CONFIG overrides the default.
func GetConfigPath() (string, error) {
	if p := os.Getenv("BEMFA_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bemfa-relay.yml"), nil
}

// LoadConfig reads .env, the config file and environment overrides.
// A missing config file yields the defaults.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads the YAML file at path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to the config path.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides applies BEMFA_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BEMFA_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("BEMFA_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BEMFA_BROKER_PORT: %w", err)
		}
		cfg.Broker.Port = port
	}
	if v := os.Getenv("BEMFA_REGISTER_URL"); v != "" {
		cfg.Broker.RegisterURL = v
	}
	if v := os.Getenv("BEMFA_DNS_SERVER"); v != "" {
		cfg.Broker.DNSServer = v
	}
	if v := os.Getenv("BEMFA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v, ok := os.LookupEnv("BEMFA_STATUS_ADDR"); ok {
		cfg.Status.Addr = v
	}
	if v := os.Getenv("BEMFA_NETWORK_IFACE"); v != "" {
		cfg.Network.Interface = v
	}
	if v := os.Getenv("BEMFA_SENTRY_DSN"); v != "" {
		cfg.Sentry.DSN = v
	}
	if v := os.Getenv("BEMFA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BEMFA_DEBUG"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.Broker.RegisterURL, "http://") && !strings.HasPrefix(c.Broker.RegisterURL, "https://") {
		errs = append(errs, "broker.register_url must be an http(s) URL")
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, "session.tick_interval must be positive")
	}
	if c.Session.ReplyTimeout <= 0 || c.Session.ListenTimeout <= 0 || c.Session.DialTimeout <= 0 {
		errs = append(errs, "session timeouts must be positive")
	}
	if c.Session.FailureThreshold < 0 {
		errs = append(errs, "session.failure_threshold must not be negative")
	}
	if c.Session.MaxDelay < c.Session.TickInterval {
		errs = append(errs, "session.max_delay must be at least session.tick_interval")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, "log_level: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Level returns the effective log level.
func (c *Config) Level() logger.Level {
	if c.Debug {
		return logger.LevelDebug
	}
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// SessionConfig returns the endpoints and timeouts for a session.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		BrokerHost:    c.Broker.Host,
		BrokerPort:    c.Broker.Port,
		RegisterURL:   c.Broker.RegisterURL,
		ReplyTimeout:  c.Session.ReplyTimeout,
		ListenTimeout: c.Session.ListenTimeout,
	}
}

// ReconnectConfig returns the driver pacing.
func (c *Config) ReconnectConfig() *session.ReconnectConfig {
	return &session.ReconnectConfig{
		InitialDelay:     c.Session.TickInterval,
		MaxDelay:         c.Session.MaxDelay,
		Multiplier:       2.0,
		FailureThreshold: c.Session.FailureThreshold,
	}
}
