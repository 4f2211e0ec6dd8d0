package audiotab

import (
	"os"

	"github.com/spf13/viper"
)

// EngineConfig holds process-wide engine settings, loaded from a config
// file plus environment variable overrides via viper. Per-graph settings
// (channel capacity, priority, node params) live in GraphConfig instead; this covers the
// knobs that apply across every pipeline a kernel runs.
type EngineConfig struct {
	LogLevel          string `mapstructure:"log_level"`
	DefaultBufferDepth int   `mapstructure:"default_buffer_depth"`
	MaxConcurrentNodes int   `mapstructure:"max_concurrent_nodes"`
	HardwareConfigPath string `mapstructure:"hardware_config_path"`
	RingBufferPath     string `mapstructure:"ring_buffer_path"`
	CommandServerAddr  string `mapstructure:"command_server_addr"`
}

// DefaultEngineConfig returns the engine's baseline settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LogLevel:           "info",
		DefaultBufferDepth: 8,
		MaxConcurrentNodes: 16,
		HardwareConfigPath: "hardware.json",
		RingBufferPath:     "audiotab.ring",
		CommandServerAddr:  ":7780",
	}
}

// LoadEngineConfig reads settings from configPath (if it exists), an
// AUDIOTAB_-prefixed environment namespace, and falls back to
// DefaultEngineConfig for anything unset.
func LoadEngineConfig(configPath string) (EngineConfig, error) {
	def := DefaultEngineConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("AUDIOTAB")
	v.AutomaticEnv()

	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("default_buffer_depth", def.DefaultBufferDepth)
	v.SetDefault("max_concurrent_nodes", def.MaxConcurrentNodes)
	v.SetDefault("hardware_config_path", def.HardwareConfigPath)
	v.SetDefault("ring_buffer_path", def.RingBufferPath)
	v.SetDefault("command_server_addr", def.CommandServerAddr)

	// a missing config file means "all defaults", whether viper reports
	// it as its own not-found type (search-path mode) or a PathError
	// (explicit file mode)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return EngineConfig{}, WrapError("LoadEngineConfig", err)
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, WrapError("LoadEngineConfig", err)
	}
	return cfg, nil
}
