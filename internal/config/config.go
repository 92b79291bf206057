// Package config loads the chatflow server settings from flags, an optional
// config file and CHATFLOW_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CHATFLOW_REDIS_ADDR.
const EnvPrefix = "CHATFLOW"

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// FlowsDir is a Loam repository of flow documents.
	FlowsDir     string
	FlowCacheTTL time.Duration

	// RedisAddr enables the Redis session store when set; otherwise
	// sessions live in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	SessionTTL    time.Duration
	LockTTL       time.Duration

	LogLevel  string
	LogFormat string

	MaxSteps     int
	MaxInputSize int

	NotUnderstoodText string
	FallbackText      string
	HandoffText       string
	MainMenuText      string
	ConfirmationText  string
	TraversalGapText  string

	// EncryptionKey is a base64 AES-256 key sealing collected data at rest.
	EncryptionKey  string
	FallbackKeys   []string
	PIIFields      []string
	APIBase        string
	APIVersion     string
	AccessToken    string
	DryRunDelivery bool
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		MetricsAddr:       ":2112",
		FlowsDir:          "flows",
		FlowCacheTTL:      time.Minute,
		RedisPrefix:       "chatflow:",
		LockTTL:           30 * time.Second,
		LogLevel:          "info",
		LogFormat:         "json",
		MaxSteps:          32,
		MaxInputSize:      4096,
		NotUnderstoodText: "Sorry, I did not understand. Please try again.",
		FallbackText:      "Sorry, I did not understand that.",
		HandoffText:       "Transferring you to an agent. Please wait.",
		MainMenuText:      "Returning to the main menu.",
		ConfirmationText:  "Thanks, got it.",
		APIVersion:        "v21.0",
	}
}

// BindFlags declares the server flags on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	d := Default()
	fs.String("config-file", "", "Path to config file.")
	fs.String("http-addr", d.HTTPAddr, "address of the event and session API")
	fs.String("metrics-addr", d.MetricsAddr, "address of the Prometheus endpoint (empty disables it)")
	fs.String("flows-dir", d.FlowsDir, "directory holding flow documents")
	fs.Duration("flow-cache-ttl", d.FlowCacheTTL, "how long flow lookups are cached")
	fs.String("redis-addr", "", "redis host:port; sessions are kept in memory when empty")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", 0, "redis database")
	fs.String("redis-prefix", d.RedisPrefix, "namespace of every redis key")
	fs.Duration("session-ttl", 0, "expiration of stored sessions (0 keeps them)")
	fs.Duration("lock-ttl", d.LockTTL, "lease of the per-contact distributed lock")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "json or text")
	fs.Int("max-steps", d.MaxSteps, "node executions allowed per inbound event")
	fs.Int("max-input-size", d.MaxInputSize, "largest accepted user text in bytes")
	fs.String("encryption-key", "", "base64 AES-256 key sealing collected data at rest")
	fs.StringSlice("fallback-keys", nil, "previous base64 keys accepted for decryption")
	fs.StringSlice("pii-fields", nil, "regular expressions of collected fields masked in notifications")
	fs.String("api-base", "", "Cloud API base URL used when an event carries no credentials")
	fs.String("api-version", d.APIVersion, "Cloud API version")
	fs.Bool("dry-run", false, "log outbound messages instead of delivering them")
	return v.BindPFlags(fs)
}

// Load resolves the configuration. Flags win over environment variables,
// which win over the config file.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("not-understood-text", d.NotUnderstoodText)
	v.SetDefault("fallback-text", d.FallbackText)
	v.SetDefault("handoff-text", d.HandoffText)
	v.SetDefault("main-menu-text", d.MainMenuText)
	v.SetDefault("confirmation-text", d.ConfirmationText)
	v.SetDefault("traversal-gap-text", "")

	if configFile := v.GetString("config-file"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	c := Config{
		HTTPAddr:          v.GetString("http-addr"),
		MetricsAddr:       v.GetString("metrics-addr"),
		FlowsDir:          v.GetString("flows-dir"),
		FlowCacheTTL:      v.GetDuration("flow-cache-ttl"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		RedisPrefix:       v.GetString("redis-prefix"),
		SessionTTL:        v.GetDuration("session-ttl"),
		LockTTL:           v.GetDuration("lock-ttl"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
		MaxSteps:          v.GetInt("max-steps"),
		MaxInputSize:      v.GetInt("max-input-size"),
		NotUnderstoodText: v.GetString("not-understood-text"),
		FallbackText:      v.GetString("fallback-text"),
		HandoffText:       v.GetString("handoff-text"),
		MainMenuText:      v.GetString("main-menu-text"),
		ConfirmationText:  v.GetString("confirmation-text"),
		TraversalGapText:  v.GetString("traversal-gap-text"),
		EncryptionKey:     v.GetString("encryption-key"),
		FallbackKeys:      v.GetStringSlice("fallback-keys"),
		PIIFields:         v.GetStringSlice("pii-fields"),
		APIBase:           v.GetString("api-base"),
		APIVersion:        v.GetString("api-version"),
		AccessToken:       v.GetString("access-token"),
		DryRunDelivery:    v.GetBool("dry-run"),
	}
	return c, c.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max-steps must be positive, got %d", c.MaxSteps)
	}
	if c.EncryptionKey != "" {
		if _, _, err := c.EncryptionKeys(); err != nil {
			return err
		}
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys.
func (c Config) EncryptionKeys() ([]byte, [][]byte, error) {
	active, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption-key: %w", err)
	}
	fallback := make([][]byte, 0, len(c.FallbackKeys))
	for i, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback-keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
