// Package config loads the server's runtime configuration from the
// environment via viper, following the "env + file config" pairing
// `perplext-LLMrecon`'s config package builds on top of cobra
// (SPEC_FULL.md §5.3).
package config

import (
	"strings"

	"github.com/luxfi/ruth/pkg/errs"
	"github.com/spf13/viper"
)

// Config holds everything spec.md §6 names as "Configuration via
// environment": the oracle endpoint/API key, the store URL/credentials,
// and the protocol's numeric parameters.
type Config struct {
	// Oracle is the attestation verdict oracle's HTTP endpoint and API key.
	Oracle struct {
		Endpoint string `mapstructure:"endpoint"`
		APIKey   string `mapstructure:"api_key"`
	} `mapstructure:"oracle"`

	// Store is the durable store's connection info.
	Store struct {
		URL      string `mapstructure:"url"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"store"`

	// Quorum is the minimum accepted updates before a round aggregates (K).
	Quorum uint64 `mapstructure:"quorum"`

	// TrimRatio is the aggregator's alpha (default 0.1).
	TrimRatio float32 `mapstructure:"trim_ratio"`

	// MaxNorm bounds |scalar| emitted by any client step (default 5.0).
	MaxNorm float32 `mapstructure:"max_norm"`

	// Epsilon is the default perturbation magnitude (default 0.1).
	Epsilon float32 `mapstructure:"epsilon"`

	// PollIntervalSeconds is the collector trigger loop's scan cadence
	// (default 1, per spec.md §4.5).
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`

	// LogLevel sets internal/obs's zerolog level (e.g. "debug", "info").
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the configuration's zero-value-safe defaults.
func Default() *Config {
	cfg := &Config{
		Quorum:              10,
		TrimRatio:           0.1,
		MaxNorm:             5.0,
		Epsilon:             0.1,
		PollIntervalSeconds: 1,
		LogLevel:            "info",
	}
	cfg.Store.DB = 0
	return cfg
}

// Load builds a viper instance bound to environment variables prefixed
// RUTH_ (e.g. RUTH_ORACLE_ENDPOINT, RUTH_STORE_URL, RUTH_QUORUM), an
// optional config file named ruth.yaml on the current path or $HOME/.ruth, and
// falls back to Default() for anything unset.
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("ruth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.ruth")

	v.SetEnvPrefix("RUTH")
	v.SetEnvKeyReplacer(envKeyReplacer())
	v.AutomaticEnv()

	if err := bindDefaults(v, cfg); err != nil {
		return nil, errs.New(errs.ConfigError, "config.Load", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.New(errs.ConfigError, "config.Load", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.New(errs.ConfigError, "config.Load", err)
	}

	if len(cfg.Oracle.Endpoint) == 0 {
		return nil, errs.New(errs.ConfigError, "config.Load", errMissingOracleEndpoint)
	}
	if cfg.Quorum == 0 {
		return nil, errs.New(errs.ConfigError, "config.Load", errZeroQuorum)
	}

	return cfg, nil
}

// envKeyReplacer maps nested viper keys like "oracle.endpoint" onto
// RUTH_ORACLE_ENDPOINT, matching AutomaticEnv's flattened lookup.
func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// bindDefaults registers every Config key viper must resolve from the
// environment. AutomaticEnv only matches RUTH_* env vars against keys
// viper already knows about via a default, an explicit BindEnv, a config
// file, or a flag — oracle.endpoint/oracle.api_key/store.url/store.password
// have no sane zero-value default, so they're registered with BindEnv
// instead of SetDefault.
func bindDefaults(v *viper.Viper, cfg *Config) error {
	v.SetDefault("quorum", cfg.Quorum)
	v.SetDefault("trim_ratio", cfg.TrimRatio)
	v.SetDefault("max_norm", cfg.MaxNorm)
	v.SetDefault("epsilon", cfg.Epsilon)
	v.SetDefault("poll_interval_seconds", cfg.PollIntervalSeconds)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("store.db", cfg.Store.DB)

	for _, key := range []string{"oracle.endpoint", "oracle.api_key", "store.url", "store.password"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errMissingOracleEndpoint = sentinelErr("RUTH_ORACLE_ENDPOINT (or oracle.endpoint) must be set")
	errZeroQuorum            = sentinelErr("quorum (K) must be nonzero")
)
