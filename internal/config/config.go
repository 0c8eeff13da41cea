// Package config loads kcibridge settings from a YAML file, KCIBRIDGE_*
// environment variables and built-in defaults, in viper's precedence order.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. KCIBRIDGE_CHANNEL_URL.
const EnvPrefix = "KCIBRIDGE"

// TokenEnv names the environment variable holding the API token. It is
// never read from the config file.
const TokenEnv = "API_TOKEN"

// Config is the full kcibridge configuration. Values are read once at
// startup and not changed afterwards.
type Config struct {
	DBConfigs map[string]DBConfig `mapstructure:"db_configs"`
	Channel   ChannelConfig       `mapstructure:"channel"`
	KCIDB     KCIDBConfig         `mapstructure:"kcidb"`
	Origin    string              `mapstructure:"origin"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Tracing   TracingConfig       `mapstructure:"tracing"`

	// APIToken authenticates against the node stream and the KCIDB broker.
	APIToken string `mapstructure:"-"`
}

// DBConfig selects a regression store backend.
type DBConfig struct {
	// Type is "sqlite" or "badger".
	Type string `mapstructure:"type"`
	// Path is the database file (sqlite) or directory (badger).
	Path string `mapstructure:"path"`
}

// ChannelConfig locates the upstream node notification stream.
type ChannelConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	// ClientName identifies this process to the NATS server.
	ClientName string `mapstructure:"client_name"`
}

// KCIDBConfig locates the downstream KCIDB submission topic.
type KCIDBConfig struct {
	// URL of the broker. Empty reuses the channel connection.
	URL       string `mapstructure:"url"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	Submitter string `mapstructure:"submitter"`
	// FlushTimeout bounds the wait for the broker to acknowledge a revision.
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	// File receives spans as JSON. Empty disables tracing.
	File string `mapstructure:"file"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		DBConfigs: map[string]DBConfig{
			"default": {Type: "sqlite", Path: "regressions.db"},
		},
		Channel: ChannelConfig{
			URL:        "nats://127.0.0.1:4222",
			Subject:    "kernelci.node",
			ClientName: "kcibridge",
		},
		KCIDB: KCIDBConfig{
			Submitter:    "kernelci-pipeline",
			FlushTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers default values with v. db_configs is filled in by
// Load only when the file defines none.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("channel.url", defaults.Channel.URL)
	v.SetDefault("channel.subject", defaults.Channel.Subject)
	v.SetDefault("channel.client_name", defaults.Channel.ClientName)

	v.SetDefault("kcidb.url", defaults.KCIDB.URL)
	v.SetDefault("kcidb.project_id", defaults.KCIDB.ProjectID)
	v.SetDefault("kcidb.topic_name", defaults.KCIDB.TopicName)
	v.SetDefault("kcidb.submitter", defaults.KCIDB.Submitter)
	v.SetDefault("kcidb.flush_timeout", defaults.KCIDB.FlushTimeout)

	v.SetDefault("origin", defaults.Origin)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("tracing.file", defaults.Tracing.File)
}

// Load reads the config file at path (optional when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.DBConfigs) == 0 {
		cfg.DBConfigs = Default().DBConfigs
	}
	cfg.APIToken = os.Getenv(TokenEnv)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ErrUnknownDB is returned by DB for a name missing from db_configs.
var ErrUnknownDB = errors.New("unknown database config")

// DB returns the named database config.
func (c *Config) DB(name string) (DBConfig, error) {
	db, ok := c.DBConfigs[name]
	if !ok {
		return DBConfig{}, fmt.Errorf("%w %q (have: %s)", ErrUnknownDB, name, strings.Join(c.DBNames(), ", "))
	}
	return db, nil
}

// DBNames returns the configured database names, sorted.
func (c *Config) DBNames() []string {
	names := make([]string, 0, len(c.DBConfigs))
	for name := range c.DBConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
