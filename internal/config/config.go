package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CODEREEF"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "codereef.db"
	defaultLogLevel          = "info"
	defaultTokenTTLMinutes   = 12 * 60
	defaultSnapshotLimit     = 10 << 20
	defaultClientOrigin      = "http://localhost:5173"
	defaultCommentTextLimit  = 4000
	defaultRelayBufferFrames = 64
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	SigningSecret      string
	TokenTTL           time.Duration
	LogLevel           string
	SnapshotLimitBytes int64
	ClientOrigin       string
	CommentTextLimit   int
	RelayBufferFrames  int
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
	configViper.SetDefault("http.client_origin", defaultClientOrigin)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("documents.snapshot_limit_bytes", defaultSnapshotLimit)
	configViper.SetDefault("comments.text_limit", defaultCommentTextLimit)
	configViper.SetDefault("relay.buffer_frames", defaultRelayBufferFrames)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LogLevel:           configViper.GetString("log.level"),
		SnapshotLimitBytes: configViper.GetInt64("documents.snapshot_limit_bytes"),
		ClientOrigin:       configViper.GetString("http.client_origin"),
		CommentTextLimit:   configViper.GetInt("comments.text_limit"),
		RelayBufferFrames:  configViper.GetInt("relay.buffer_frames"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SnapshotLimitBytes <= 0 {
		return fmt.Errorf("documents.snapshot_limit_bytes must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
