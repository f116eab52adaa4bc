// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	ProgramID     string `mapstructure:"program_id"`
	OracleOwner   string `mapstructure:"oracle_owner"`
	WalletsFile   string `mapstructure:"wallets_file"`
	ScenarioFile  string `mapstructure:"scenario_file"`
	DatabaseDSN   string `mapstructure:"database_dsn"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	RPCURL        string `mapstructure:"rpc_url"`
	OracleFeed    string `mapstructure:"oracle_feed"`
	OracleRetries int    `mapstructure:"oracle_retries"`
	EventBuffer   int    `mapstructure:"event_buffer"`
	DebugLogging  bool   `mapstructure:"debug_logging"`
	LogFile       string `mapstructure:"log_file"`
	RedisAddr     string `mapstructure:"redis_addr"`
	KafkaBrokers  string `mapstructure:"kafka_brokers"`
	KafkaTopic    string `mapstructure:"kafka_topic"`
}

const (
	DefaultWalletsFile   = "configs/wallets.csv"
	DefaultScenarioFile  = "configs/scenario.yaml"
	DefaultOracleRetries = 3
	DefaultEventBuffer   = 1024
	DefaultLogFile       = "dice-roll.log"
	DefaultKafkaTopic    = "dice-roll.events"
)

// LoadConfig reads the file at path, applies defaults and DICE_ROLL_*
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Every key needs a default so AutomaticEnv can override it.
	defaults := map[string]interface{}{
		"program_id":     "",
		"oracle_owner":   "",
		"database_dsn":   "",
		"metrics_addr":   "",
		"rpc_url":        "",
		"oracle_feed":    "",
		"debug_logging":  false,
		"redis_addr":     "",
		"kafka_brokers":  "",
		"kafka_topic":    DefaultKafkaTopic,
		"wallets_file":   DefaultWalletsFile,
		"scenario_file":  DefaultScenarioFile,
		"oracle_retries": DefaultOracleRetries,
		"event_buffer":   DefaultEventBuffer,
		"log_file":       DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("DICE_ROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

// ProgramKey returns the configured program id, or ok=false when unset.
func (c *Config) ProgramKey() (key solana.PublicKey, ok bool) {
	if c.ProgramID == "" {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(c.ProgramID), true
}

// OracleOwnerKey returns the configured oracle owner, or ok=false when unset.
func (c *Config) OracleOwnerKey() (key solana.PublicKey, ok bool) {
	if c.OracleOwner == "" {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(c.OracleOwner), true
}

// OracleFeedKey returns the price account to mirror from rpc_url.
func (c *Config) OracleFeedKey() (key solana.PublicKey, ok bool) {
	if c.OracleFeed == "" {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(c.OracleFeed), true
}

// KafkaBrokerList splits kafka_brokers on commas. It is empty when event
// publishing is disabled.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func validateConfig(cfg *Config) error {
	keys := []struct {
		name, value string
	}{
		{"program_id", cfg.ProgramID},
		{"oracle_owner", cfg.OracleOwner},
		{"oracle_feed", cfg.OracleFeed},
	}
	for _, k := range keys {
		if k.value == "" {
			continue
		}
		if _, err := solana.PublicKeyFromBase58(k.value); err != nil {
			return fmt.Errorf("invalid %s: %w", k.name, err)
		}
	}

	if cfg.WalletsFile == "" {
		return errors.New("wallets_file is empty")
	}
	if cfg.ScenarioFile == "" {
		return errors.New("scenario_file is empty")
	}
	if cfg.RPCURL != "" {
		if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.OracleFeed != "" && cfg.RPCURL == "" {
		return errors.New("oracle_feed requires rpc_url")
	}
	if cfg.DatabaseDSN != "" {
		if err := validateURLWithCache(cfg.DatabaseDSN, "postgres"); err != nil {
			return errors.New("database_dsn must be a postgres URL")
		}
	}
	if len(cfg.KafkaBrokerList()) > 0 && cfg.KafkaTopic == "" {
		return errors.New("kafka_brokers requires kafka_topic")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.OracleRetries <= 0 {
		return errors.New("invalid oracle_retries")
	}
	if cfg.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}
