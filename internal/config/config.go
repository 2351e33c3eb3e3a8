package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reflow_oven/internal/logger"

	"github.com/spf13/viper"
)

const envPrefix = "REFLOW"

// Config is the process configuration read from configs/config.yml,
// overridable with REFLOW_* environment variables (e.g. REFLOW_RUN_TICK=500ms).
type Config struct {
	Port      string          `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Run       RunConfig       `mapstructure:"run"`
	Devices   DevicesConfig   `mapstructure:"devices"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// RunConfig tunes the run controller loop.
type RunConfig struct {
	Tick              time.Duration `mapstructure:"tick"`
	FollowUp          time.Duration `mapstructure:"follow_up"`
	MaxDeviceFailures int           `mapstructure:"max_device_failures"`
	OvershootBandC    float64       `mapstructure:"overshoot_band_c"`
	MaxTempC          float64       `mapstructure:"max_temp_c"`
}

// DevicesConfig controls discovery.
type DevicesConfig struct {
	Simulator        bool          `mapstructure:"simulator"`
	Serial           bool          `mapstructure:"serial"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ReplyTimeout     time.Duration `mapstructure:"reply_timeout"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
	RescanInterval   time.Duration `mapstructure:"rescan_interval"`
}

// SimulatorConfig parameterises the simulated oven's thermal model.
type SimulatorConfig struct {
	AmbientC   float64 `mapstructure:"ambient_c"`
	MaxTempC   float64 `mapstructure:"max_temp_c"`
	TauSeconds float64 `mapstructure:"tau_seconds"`
}

var (
	errEmptySigningKey = errors.New("auth.signing_key must not be empty")
	errInvalidTick     = errors.New("run.tick must be > 0")
	errInvalidFailures = errors.New("run.max_device_failures must be >= 1")
	errNoDrivers       = errors.New("at least one of devices.simulator / devices.serial must be enabled")
	errInvalidTau      = errors.New("simulator.tau_seconds must be > 0")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("log_format", logger.FormatConsole)
	v.SetDefault("db.path", "app.db")
	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("run.tick", time.Second)
	v.SetDefault("run.follow_up", 30*time.Second)
	v.SetDefault("run.max_device_failures", 2)
	v.SetDefault("run.overshoot_band_c", 10.0)
	v.SetDefault("run.max_temp_c", 300.0)
	v.SetDefault("devices.simulator", true)
	v.SetDefault("devices.serial", true)
	v.SetDefault("devices.probe_timeout", 2*time.Second)
	v.SetDefault("devices.reply_timeout", 500*time.Millisecond)
	v.SetDefault("devices.probe_concurrency", 4)
	v.SetDefault("devices.rescan_interval", 5*time.Second)
	v.SetDefault("simulator.ambient_c", 25.0)
	v.SetDefault("simulator.max_temp_c", 320.0)
	v.SetDefault("simulator.tau_seconds", 40.0)
}

// Load reads the config file named "config" from the given directories.
// A missing file is not an error: defaults and environment still apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if err := logger.ValidateLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return errEmptySigningKey
	}
	if c.Run.Tick <= 0 {
		return errInvalidTick
	}
	if c.Run.MaxDeviceFailures < 1 {
		return errInvalidFailures
	}
	if !c.Devices.Simulator && !c.Devices.Serial {
		return errNoDrivers
	}
	if c.Simulator.TauSeconds <= 0 {
		return errInvalidTau
	}
	return nil
}
