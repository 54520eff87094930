package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8080
	DefaultBaud          = 115200
	DefaultNamespace     = "/rti"
	DefaultPlotCapacity  = 100
	DefaultErrorHistory  = 10
	DefaultDashCapacity  = 500
	DefaultClientBuffer  = 64
	DefaultSimulatorName = "SIM0"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Serial    SerialConfig    `yaml:"serial" toml:"serial"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" toml:"heartbeat"`
	Broadcast BroadcastConfig `yaml:"broadcast" toml:"broadcast"`
	Dashboard DashboardConfig `yaml:"dashboard" toml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Simulator SimulatorConfig `yaml:"simulator" toml:"simulator"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" toml:"port"`
	Host           string   `yaml:"host" toml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// SerialConfig controls the port session and reader loop timing.
type SerialConfig struct {
	DefaultPort    string        `yaml:"default_port" toml:"default_port"`
	DefaultBaud    int           `yaml:"default_baud" toml:"default_baud"`
	PollInterval   time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	SettleInterval time.Duration `yaml:"settle_interval" toml:"settle_interval"`
	BreakDuration  time.Duration `yaml:"break_duration" toml:"break_duration"`
	StopTimeout    time.Duration `yaml:"stop_timeout" toml:"stop_timeout"`
	LineEnding     string        `yaml:"line_ending" toml:"line_ending"`
	ErrorHistory   int           `yaml:"error_history" toml:"error_history"`
}

type TelemetryConfig struct {
	Capacity        int    `yaml:"capacity" toml:"capacity"`
	TimestampFormat string `yaml:"timestamp_format" toml:"timestamp_format"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval"`
	Message  string        `yaml:"message" toml:"message"`
}

type BroadcastConfig struct {
	Namespace    string `yaml:"namespace" toml:"namespace"`
	ClientBuffer int    `yaml:"client_buffer" toml:"client_buffer"`
	MaxClients   int    `yaml:"max_clients" toml:"max_clients"`
}

type DashboardConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "console" or "json"
}

// SimulatorConfig describes the pty-backed fake instrument started by
// `river serve --simulate`.
type SimulatorConfig struct {
	Enabled          bool          `yaml:"enabled" toml:"enabled"`
	Name             string        `yaml:"name" toml:"name"`
	EnsembleInterval time.Duration `yaml:"ensemble_interval" toml:"ensemble_interval"`
	StartNumber      int           `yaml:"start_number" toml:"start_number"`
	BaseVoltage      float64       `yaml:"base_voltage" toml:"base_voltage"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: "127.0.0.1",
		},
		Serial: SerialConfig{
			DefaultBaud:    DefaultBaud,
			PollInterval:   10 * time.Millisecond,
			ReadTimeout:    5 * time.Millisecond,
			SettleInterval: 1200 * time.Millisecond,
			BreakDuration:  100 * time.Millisecond,
			StopTimeout:    2 * time.Second,
			LineEnding:     "\r",
			ErrorHistory:   DefaultErrorHistory,
		},
		Telemetry: TelemetryConfig{
			Capacity:        DefaultPlotCapacity,
			TimestampFormat: "2006-01-02 15:04:05.000000",
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
			Message:  "Server generated event",
		},
		Broadcast: BroadcastConfig{
			Namespace:    DefaultNamespace,
			ClientBuffer: DefaultClientBuffer,
			MaxClients:   100,
		},
		Dashboard: DashboardConfig{
			Capacity: DefaultDashCapacity,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Simulator: SimulatorConfig{
			Name:             DefaultSimulatorName,
			EnsembleInterval: time.Second,
			StartNumber:      1,
			BaseVoltage:      12.2,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. The format is chosen by extension:
// .toml uses TOML, anything else YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Serial.DefaultBaud <= 0 {
		errs = append(errs, fmt.Errorf("serial.default_baud must be positive"))
	}
	if c.Serial.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("serial.poll_interval must be positive"))
	}
	if c.Serial.SettleInterval <= 0 {
		errs = append(errs, fmt.Errorf("serial.settle_interval must be positive"))
	}
	if c.Serial.ErrorHistory <= 0 {
		errs = append(errs, fmt.Errorf("serial.error_history must be positive"))
	}
	if c.Telemetry.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.capacity must be positive"))
	}
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval must be positive"))
	}
	if c.Broadcast.ClientBuffer <= 0 {
		errs = append(errs, fmt.Errorf("broadcast.client_buffer must be positive"))
	}
	if c.Dashboard.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("dashboard.capacity must be positive"))
	}
	if c.Simulator.Enabled && c.Simulator.EnsembleInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulator.ensemble_interval must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
