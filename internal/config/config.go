// Package config loads claimrecon settings.
//
// Configuration hierarchy (highest to lowest priority):
//  1. CLI flags
//  2. Environment variables (CLAIMRECON_*, e.g. CLAIMRECON_ENGINE_CONCURRENCY_LIMIT)
//  3. Config file (~/.claimrecon/config.yaml or --config)
//  4. Defaults
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/claimrecon/internal/engine"
	"github.com/roach88/claimrecon/internal/notify"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/oracle"
	"github.com/roach88/claimrecon/internal/store"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CLAIMRECON"

// Config is the complete claimrecon configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine" json:"engine"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store" json:"store"`
	Oracle    OracleConfig    `mapstructure:"oracle" yaml:"oracle" json:"oracle"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http" json:"http"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify" json:"notify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// EngineConfig holds the reconciliation tunables in milliseconds.
type EngineConfig struct {
	ScanIntervalMs   int `mapstructure:"scan_interval_ms" yaml:"scan_interval_ms" json:"scan_interval_ms"`
	ConcurrencyLimit int `mapstructure:"concurrency_limit" yaml:"concurrency_limit" json:"concurrency_limit"`
	PerCallTimeoutMs int `mapstructure:"per_call_timeout_ms" yaml:"per_call_timeout_ms" json:"per_call_timeout_ms"`
}

// StoreConfig selects the claim store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	Path   string `mapstructure:"path" yaml:"path" json:"path"`
}

// OracleConfig selects and decorates the verification oracle.
type OracleConfig struct {
	Kind          string              `mapstructure:"kind" yaml:"kind" json:"kind"`
	BaseURL       string              `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	RatePerSecond float64             `mapstructure:"rate_per_second" yaml:"rate_per_second" json:"rate_per_second"`
	Burst         int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	CacheTTLMs    int                 `mapstructure:"cache_ttl_ms" yaml:"cache_ttl_ms" json:"cache_ttl_ms"`
	Script        map[string][]string `mapstructure:"script" yaml:"script,omitempty" json:"script,omitempty"`
}

// HTTPConfig configures the claim API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// NotifyConfig configures confirmation publishing.
type NotifyConfig struct {
	Driver  string `mapstructure:"driver" yaml:"driver" json:"driver"`
	AMQPURI string `mapstructure:"amqp_uri" yaml:"amqp_uri" json:"amqp_uri"`
	Topic   string `mapstructure:"topic" yaml:"topic" json:"topic"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Tracing string `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			ScanIntervalMs:   int(engine.DefaultScanInterval / time.Millisecond),
			ConcurrencyLimit: engine.DefaultConcurrencyLimit,
			PerCallTimeoutMs: int(engine.DefaultCallTimeout / time.Millisecond),
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			Path:   "claimrecon.db",
		},
		Oracle: OracleConfig{
			Kind:    oracle.KindHTTP,
			BaseURL: "http://localhost:8090",
			Burst:   1,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Notify: NotifyConfig{
			Driver: notify.DriverNone,
			Topic:  notify.DefaultTopic,
		},
		Telemetry: TelemetryConfig{
			Tracing: observability.TracingNone,
		},
	}
}

// Validate checks the values that have no safe fallback.
func (c Config) Validate() error {
	if _, err := c.Engine.EngineConfig(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	switch c.Oracle.Kind {
	case oracle.KindHTTP:
		if c.Oracle.BaseURL == "" {
			return errors.New("oracle.base_url is required for kind http")
		}
	case oracle.KindScripted:
	default:
		return fmt.Errorf("oracle.kind: unknown kind %q", c.Oracle.Kind)
	}
	if c.Oracle.RatePerSecond < 0 || c.Oracle.CacheTTLMs < 0 {
		return errors.New("oracle.rate_per_second and oracle.cache_ttl_ms must not be negative")
	}
	return nil
}

// EngineConfig converts the millisecond settings into an engine.Config.
func (e EngineConfig) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		ScanInterval:     time.Duration(e.ScanIntervalMs) * time.Millisecond,
		ConcurrencyLimit: e.ConcurrencyLimit,
		CallTimeout:      time.Duration(e.PerCallTimeoutMs) * time.Millisecond,
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("engine: %w", err)
	}
	return cfg, nil
}

// OracleConfig converts to oracle.Config.
func (o OracleConfig) OracleConfig() oracle.Config {
	return oracle.Config{
		Kind:          o.Kind,
		BaseURL:       o.BaseURL,
		Script:        o.Script,
		RatePerSecond: o.RatePerSecond,
		Burst:         o.Burst,
		CacheTTL:      time.Duration(o.CacheTTLMs) * time.Millisecond,
	}
}

// NotifyConfig converts to notify.Config.
func (n NotifyConfig) NotifyConfig() notify.Config {
	return notify.Config{
		Driver:  n.Driver,
		AMQPURI: n.AMQPURI,
		Topic:   n.Topic,
	}
}

// Load reads configuration from path (or the default location when path is
// empty), the environment and the given flags.
//
// flags maps config keys such as "store.path" to the flag that overrides
// them; only flags the user set take effect. Returns the loaded config and
// the config file used ("" if none).
func Load(path string, flags map[string]*pflag.Flag) (Config, string, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".claimrecon"))
		}
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range flags {
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, "", fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("engine.scan_interval_ms", d.Engine.ScanIntervalMs)
	v.SetDefault("engine.concurrency_limit", d.Engine.ConcurrencyLimit)
	v.SetDefault("engine.per_call_timeout_ms", d.Engine.PerCallTimeoutMs)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("oracle.kind", d.Oracle.Kind)
	v.SetDefault("oracle.base_url", d.Oracle.BaseURL)
	v.SetDefault("oracle.rate_per_second", d.Oracle.RatePerSecond)
	v.SetDefault("oracle.burst", d.Oracle.Burst)
	v.SetDefault("oracle.cache_ttl_ms", d.Oracle.CacheTTLMs)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("notify.driver", d.Notify.Driver)
	v.SetDefault("notify.amqp_uri", d.Notify.AMQPURI)
	v.SetDefault("notify.topic", d.Notify.Topic)
	v.SetDefault("telemetry.tracing", d.Telemetry.Tracing)
}

// WriteYAML writes cfg as YAML.
func WriteYAML(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// DefaultPath returns ~/.claimrecon/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".claimrecon", "config.yaml"), nil
}

// Init writes the default configuration to path. It refuses to overwrite
// an existing file.
func Init(path string) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	header := "# claimrecon configuration\n" +
		"#\n" +
		"# Configuration hierarchy (highest to lowest priority):\n" +
		"#   1. CLI flags\n" +
		"#   2. Environment variables (" + EnvPrefix + "_*)\n" +
		"#   3. This config file\n" +
		"#   4. Built-in defaults\n\n"
	if _, err := io.WriteString(f, header); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return WriteYAML(f, Default())
}
