package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/sensor-dashboard/internal/logging"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/parser"
)

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

type Config struct {
	ConfigFile string        `yaml:"-"`
	LogLevel   zerolog.Level `yaml:"-"`
	LogFormat  string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	LogFile    string        `yaml:"log_file" env:"LOG_FILE"`

	ListenAddr        string        `yaml:"listen_addr" env:"LISTEN_ADDR" env-default:":8080"`
	MetricsURL        string        `yaml:"metrics_url" env:"METRICS_URL" env-default:"http://localhost:9101/metrics"`
	RefreshInterval   time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL" env-default:"30s"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" env:"CONNECTION_TIMEOUT" env-default:"10s"`

	TemperatureMax           float64 `yaml:"temperature_max" env:"TEMPERATURE_MAX" env-default:"40"`
	TemperatureMin           float64 `yaml:"temperature_min" env:"TEMPERATURE_MIN" env-default:"-20"`
	TemperatureLowThreshold  float64 `yaml:"temperature_low_threshold" env:"TEMPERATURE_LOW_THRESHOLD" env-default:"0"`
	TemperatureHighThreshold float64 `yaml:"temperature_high_threshold" env:"TEMPERATURE_HIGH_THRESHOLD" env-default:"35"`
	HumidityLowThreshold     float64 `yaml:"humidity_low_threshold" env:"HUMIDITY_LOW_THRESHOLD" env-default:"30"`
	HumidityHighThreshold    float64 `yaml:"humidity_high_threshold" env:"HUMIDITY_HIGH_THRESHOLD" env-default:"70"`
	BatteryLowThreshold      float64 `yaml:"battery_low_threshold" env:"BATTERY_LOW_THRESHOLD" env-default:"5"`

	// device id -> value, "id:value,id:value" in the environment
	DeviceGroups       map[string]string `yaml:"device_groups" env:"DEVICE_GROUPS"`
	DeviceDisplayNames map[string]string `yaml:"device_display_names" env:"DEVICE_DISPLAY_NAMES"`

	StateBackend string `yaml:"state_backend" env:"STATE_BACKEND" env-default:"sqlite"`
	StatePath    string `yaml:"state_path" env:"STATE_PATH" env-default:"data/dashboard.db"`

	NtfyTopic string `yaml:"ntfy_topic" env:"NTFY_TOPIC"`
	NtfyURL   string `yaml:"ntfy_url" env:"NTFY_URL" env-default:"https://ntfy.sh"`

	EnableDatadog bool     `yaml:"enable_datadog" env:"ENABLE_DATADOG"`
	DDAgentAddr   string   `yaml:"dd_agent_addr" env:"DD_AGENT_ADDR" env-default:"127.0.0.1:8125"`
	DDNamespace   string   `yaml:"dd_namespace" env:"DD_NAMESPACE" env-default:"sensor_dashboard."`
	DDTags        []string `yaml:"dd_tags" env:"DD_TAGS"`
}

// Load parses the command line and reads the configuration. It panics on an
// invalid configuration, like the rest of startup.
func Load() Config {
	var configFile, logLevel, logFormat string

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to dashboard config file (optional)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "", "Log format (json, console); overrides the config file")
	flag.Parse()

	cfg, err := LoadFrom(configFile)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	cfg.LogLevel = logging.ParseLevel(logLevel)
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return *cfg
}

// LoadFrom reads path when it exists, then the environment. A missing file is
// not an error.
func LoadFrom(path string) (*Config, error) {
	var cfg Config
	var err error

	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.ConfigFile = path
	cfg.LogLevel = zerolog.InfoLevel
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	var problems []string

	if err := cfg.Thresholds().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.RefreshInterval <= 0 {
		problems = append(problems, "refresh_interval must be positive")
	}
	if cfg.ConnectionTimeout <= 0 {
		problems = append(problems, "connection_timeout must be positive")
	}
	if cfg.MetricsURL == "" {
		problems = append(problems, "metrics_url is required")
	}

	cfg.StateBackend = strings.ToLower(cfg.StateBackend)
	switch cfg.StateBackend {
	case BackendSQLite, BackendFile:
		if cfg.StatePath == "" {
			problems = append(problems, "state_path is required for the "+cfg.StateBackend+" backend")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("state_backend must be one of sqlite, file, memory, got: %s", cfg.StateBackend))
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		problems = append(problems, fmt.Sprintf("log_format must be 'console' or 'json', got: %s", cfg.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (cfg *Config) Thresholds() model.Thresholds {
	return model.Thresholds{
		TempMin:    cfg.TemperatureMin,
		TempMax:    cfg.TemperatureMax,
		TempLow:    cfg.TemperatureLowThreshold,
		TempHigh:   cfg.TemperatureHighThreshold,
		HumidLow:   cfg.HumidityLowThreshold,
		HumidHigh:  cfg.HumidityHighThreshold,
		BatteryLow: cfg.BatteryLowThreshold,
	}
}

func (cfg *Config) Labels() parser.Labels {
	return parser.Labels{
		Groups:       cfg.DeviceGroups,
		DisplayNames: cfg.DeviceDisplayNames,
	}
}
