package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FakeServerConfig configures cmd/fakeserver. It is read from VOTESTREAM_FAKE_*
// variables only.
type FakeServerConfig struct {
	Port           string        `mapstructure:"port" validate:"required,numeric"`
	Token          string        `mapstructure:"token" validate:"required"`
	TopggToken     string        `mapstructure:"topgg_token" validate:"required"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
	StreamInterval time.Duration `mapstructure:"stream_interval" validate:"gt=0"`
	Entities       []string      `mapstructure:"entities" validate:"omitempty,dive,required"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

func LoadFakeServer() (*FakeServerConfig, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("token", "dev-token")
	v.SetDefault("topgg_token", "dev-topgg-token")
	v.SetDefault("stream_enabled", true)
	v.SetDefault("stream_interval", 5*time.Second)
	v.SetDefault("entities", []string{"264811613708746752", "422087909634736160"})
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix + "_FAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg FakeServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling fake server config: %w", err)
	}
	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("validating fake server config: %w", err)
	}
	return &cfg, nil
}
