package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream"
	"github.com/dgnsrekt/votestream/internal/gateway"
	"github.com/dgnsrekt/votestream/internal/notify"
	"github.com/dgnsrekt/votestream/internal/topgg"
	"github.com/dgnsrekt/votestream/internal/votes"
)

const envPrefix = "VOTESTREAM"

var (
	ErrTokenRequired      = errors.New("token is required (set VOTESTREAM_TOKEN env var)")
	ErrTopggTokenRequired = errors.New("topgg_token is required (set VOTESTREAM_TOPGG_TOKEN env var)")
)

type Config struct {
	Token      string           `mapstructure:"token"`
	TopggToken string           `mapstructure:"topgg_token"`
	Name       string           `mapstructure:"name" validate:"required"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	API        APIConfig        `mapstructure:"api"`
	Topgg      TopggConfig      `mapstructure:"topgg"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Notify     notify.Config    `mapstructure:"notify"`
}

type GatewayConfig struct {
	URL                  string        `mapstructure:"url" validate:"required,url"`
	AutoReconnect        bool          `mapstructure:"auto_reconnect"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" validate:"gt=0"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay" validate:"gtefield=ReconnectDelay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" validate:"gte=0"`
}

type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type TopggConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown" validate:"gt=0"`
}

type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Load reads defaults, the optional YAML file and VOTESTREAM_* variables.
// Tokens are not required here; commands check the one they need.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("token", "")
	v.SetDefault("topgg_token", "")
	v.SetDefault("name", "votestream-cli")
	v.SetDefault("gateway.url", gateway.DefaultURL)
	v.SetDefault("gateway.auto_reconnect", true)
	v.SetDefault("gateway.reconnect_delay", gateway.DefaultReconnectDelay)
	v.SetDefault("gateway.max_reconnect_delay", gateway.DefaultMaxReconnectDelay)
	v.SetDefault("gateway.max_reconnect_attempts", 0)
	v.SetDefault("api.base_url", votes.DefaultBaseURL)
	v.SetDefault("api.cache_ttl", 5*time.Minute)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("topgg.base_url", topgg.DefaultBaseURL)
	v.SetDefault("topgg.rate_limit_cooldown", topgg.DefaultRateLimitCooldown)
	v.SetDefault("checkpoint.path", "votestream-checkpoint.json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
	notifyDefaults := notify.DefaultConfig()
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", notifyDefaults.Server)
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", notifyDefaults.Priority)
	v.SetDefault("notify.tags", notifyDefaults.Tags)
	v.SetDefault("notify.token", "")

	// Environment variable support
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("token", "VOTESTREAM_TOKEN")
	_ = v.BindEnv("topgg_token", "VOTESTREAM_TOPGG_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("votestream")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validateStruct(c)
}

// RequireToken fails when the vote-service token is missing.
func (c *Config) RequireToken() error {
	if c.Token == "" {
		return ErrTokenRequired
	}
	return nil
}

// RequireTopggToken fails when the bot-listing token is missing.
func (c *Config) RequireTopggToken() error {
	if c.TopggToken == "" {
		return ErrTopggTokenRequired
	}
	return nil
}

// Options maps the config onto client options.
func (c *Config) Options(logger *zap.Logger, reg prometheus.Registerer) votestream.Options {
	autoReconnect := c.Gateway.AutoReconnect
	return votestream.Options{
		Token:                c.Token,
		TopggToken:           c.TopggToken,
		Name:                 c.Name,
		GatewayURL:           c.Gateway.URL,
		APIBaseURL:           c.API.BaseURL,
		TopggBaseURL:         c.Topgg.BaseURL,
		AutoReconnect:        &autoReconnect,
		ReconnectDelay:       c.Gateway.ReconnectDelay,
		MaxReconnectDelay:    c.Gateway.MaxReconnectDelay,
		MaxReconnectAttempts: c.Gateway.MaxReconnectAttempts,
		CacheTTL:             c.API.CacheTTL,
		RateLimitCooldown:    c.Topgg.RateLimitCooldown,
		RequestTimeout:       c.API.Timeout,
		CheckpointPath:       c.Checkpoint.Path,
		Logger:               logger,
		Registerer:           reg,
	}
}
