// Package config loads ccrelay's flat options record the way the teacher's
// internal/infrastructure/config does: viper, mapstructure tags, layered
// config.yaml discovery, environment override.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// BackendOptions holds the settings the core treats as opaque to the host:
// declared model list, OAuth client id/scope, and header constants (§9).
type BackendOptions struct {
	Name            string            `mapstructure:"name"`
	AccountsFile    string            `mapstructure:"accounts_file"`
	Models          []string          `mapstructure:"models"`
	OAuthClientID   string            `mapstructure:"oauth_client_id"`
	OAuthScope      string            `mapstructure:"oauth_scope"`
	OAuthAuthURL    string            `mapstructure:"oauth_auth_url"`
	OAuthTokenURL   string            `mapstructure:"oauth_token_url"`
	ExtraAuthParams map[string]string `mapstructure:"extra_auth_params"`
}

// Options is the flat, enumerated settings record spec §9 calls for —
// never an ad-hoc key/value dictionary.
type Options struct {
	Port              int              `mapstructure:"port"`
	Host              string           `mapstructure:"host"`
	APIKey            string           `mapstructure:"api_key"`
	DevMode           bool             `mapstructure:"dev_mode"`
	DefaultCooldownMs int              `mapstructure:"default_cooldown_ms"`
	OAuthCallbackPort int              `mapstructure:"oauth_callback_port"`
	Backends          []BackendOptions `mapstructure:"backends"`
}

const appName = "ccrelay"

func homeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// Load reads defaults, then ~/.ccrelay/config.yaml, then ./config.yaml
// (merged over the global layer), then CCRELAY_*-prefixed environment
// variables, in that ascending priority order.
func Load() (*Options, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(homeDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		local := viper.New()
		local.SetConfigFile("./config.yaml")
		if err := local.ReadInConfig(); err == nil {
			_ = v.MergeConfigMap(local.AllSettings())
		}
	}

	v.SetEnvPrefix("CCRELAY")
	v.AutomaticEnv()

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &opts, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8787)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("dev_mode", false)
	v.SetDefault("default_cooldown_ms", 60000)
	v.SetDefault("oauth_callback_port", 8976)
}
