package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. BROWSERPILOT_API_BASE_URL.
const EnvPrefix = "BROWSERPILOT"

// Interface is the read surface handed to components, allowing tests to
// substitute a fixed configuration.
type Interface interface {
	Logger() LoggerConfig
	API() APIConfig
	Stream() StreamConfig
	Browser() BrowserConfig
	Settings() SettingsConfig
}

// Config holds the whole application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	APICfg      APIConfig      `mapstructure:"api" yaml:"api"`
	StreamCfg   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	SettingsCfg SettingsConfig `mapstructure:"settings" yaml:"settings"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) API() APIConfig           { return c.APICfg }
func (c *Config) Stream() StreamConfig     { return c.StreamCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Settings() SettingsConfig { return c.SettingsCfg }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// APIConfig points the REST client at the pilot service.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	SOCKSProxy  string        `mapstructure:"socks_proxy" yaml:"socks_proxy"`
}

// StreamConfig points the live-channel manager at the streaming endpoint.
type StreamConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// FramesPerSecond caps outbound audio/video frames; zero disables the cap.
	FramesPerSecond float64 `mapstructure:"frames_per_second" yaml:"frames_per_second"`
	FrameBurst      int     `mapstructure:"frame_burst" yaml:"frame_burst"`
}

// BrowserConfig holds defaults for new remote browser sessions.
type BrowserConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	Headless      bool   `mapstructure:"headless" yaml:"headless"`
	IncludeHidden bool   `mapstructure:"include_hidden" yaml:"include_hidden"`
	MaxRetries    int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// SettingsConfig locates the user settings store.
type SettingsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults registers every default on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "browserpilot")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("api.base_url", "http://127.0.0.1:8800")
	v.SetDefault("api.dial_timeout", 15*time.Second)

	v.SetDefault("stream.base_url", "ws://127.0.0.1:8800")
	v.SetDefault("stream.frames_per_second", 2.0)
	v.SetDefault("stream.frame_burst", 4)

	v.SetDefault("browser.type", "chromium")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_retries", 3)

	v.SetDefault("settings.path", defaultSettingsPath())
}

// Load reads configuration from the given file (or the default search path
// when empty), applies environment overrides, and unmarshals the result.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".browserpilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func defaultSettingsPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "browserpilot-settings.json"
	}
	return filepath.Join(home, ".browserpilot", "settings.json")
}
