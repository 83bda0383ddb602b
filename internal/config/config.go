package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "FEEDSYNC"
	defaultHTTPAddress        = "127.0.0.1:8090"
	defaultDatabasePath       = "feedsync.db"
	defaultLogLevel           = "info"
	defaultLogEncoding        = "json"
	defaultRequestsPerSecond  = 5.0
	defaultNodeTimeoutSeconds = 15
	defaultSyncInterval       = 5
	defaultPageSize           = 50
	defaultTokenTTLMinutes    = 60
	defaultRedisChannelPrefix = "feedsync"
)

// AppConfig captures runtime configuration for the sync engine and its API.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogEncoding        string
	NodeBaseURL        string
	NodeToken          string
	RequestsPerSecond  float64
	NodeTimeout        time.Duration
	Groups             []string
	SyncInterval       time.Duration
	PageSize           int
	PendingMaxAttempts int
	Publisher          string
	SigningSecret      string
	TokenTTL           time.Duration
	RedisAddress       string
	RedisChannelPrefix string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("node.requests_per_second", defaultRequestsPerSecond)
	configViper.SetDefault("node.timeout_seconds", defaultNodeTimeoutSeconds)
	configViper.SetDefault("sync.interval_seconds", defaultSyncInterval)
	configViper.SetDefault("sync.page_size", defaultPageSize)
	configViper.SetDefault("pending.max_attempts", 0)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("redis.channel_prefix", defaultRedisChannelPrefix)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogEncoding:        configViper.GetString("log.encoding"),
		NodeBaseURL:        strings.TrimRight(strings.TrimSpace(configViper.GetString("node.base_url")), "/"),
		NodeToken:          configViper.GetString("node.token"),
		RequestsPerSecond:  configViper.GetFloat64("node.requests_per_second"),
		NodeTimeout:        time.Duration(configViper.GetInt("node.timeout_seconds")) * time.Second,
		Groups:             splitGroups(configViper.GetStringSlice("sync.groups")),
		SyncInterval:       time.Duration(configViper.GetInt("sync.interval_seconds")) * time.Second,
		PageSize:           configViper.GetInt("sync.page_size"),
		PendingMaxAttempts: configViper.GetInt("pending.max_attempts"),
		Publisher:          strings.TrimSpace(configViper.GetString("identity.publisher")),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		RedisAddress:       strings.TrimSpace(configViper.GetString("redis.address")),
		RedisChannelPrefix: configViper.GetString("redis.channel_prefix"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireSync checks the settings the poller and one-shot sync need.
func (c AppConfig) RequireSync() error {
	if c.NodeBaseURL == "" {
		return fmt.Errorf("node.base_url is required")
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("sync.groups is required")
	}
	return nil
}

// RequireServe checks the settings the HTTP API needs.
func (c AppConfig) RequireServe() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	return c.RequireSync()
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("node.requests_per_second must be positive")
	}
	if c.PendingMaxAttempts < 0 {
		return fmt.Errorf("pending.max_attempts must not be negative")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}

// splitGroups accepts both list values and a single comma separated env value.
func splitGroups(raw []string) []string {
	groups := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			group := strings.TrimSpace(part)
			if group == "" {
				continue
			}
			if _, ok := seen[group]; ok {
				continue
			}
			seen[group] = struct{}{}
			groups = append(groups, group)
		}
	}
	return groups
}
