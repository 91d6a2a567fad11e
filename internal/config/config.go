// File: internal/config/config.go
// Package config loads the server configuration.
// Author: momentics <momentics@gmail.com>
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// and FLEETLINK_* environment variables (FLEETLINK_TCP_LISTEN for tcp.listen).

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/momentics/fleetlink/internal/wire"
)

type TCPConfig struct {
	Listen     string        `mapstructure:"listen" yaml:"listen"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	BufferSize int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	KeepAlive  time.Duration `mapstructure:"keepalive" yaml:"keepalive"`
}

type UDPConfig struct {
	Listen     string  `mapstructure:"listen" yaml:"listen"`
	BufferSize int     `mapstructure:"buffer_size" yaml:"buffer_size"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst      int     `mapstructure:"burst" yaml:"burst"`
}

type TransferConfig struct {
	MaxSegmentLength uint64 `mapstructure:"max_segment_length" yaml:"max_segment_length"`
	BigBufferSize    int    `mapstructure:"big_buffer_size" yaml:"big_buffer_size"`
	MaxFileSize      uint64 `mapstructure:"max_file_size" yaml:"max_file_size"`
}

type StoreConfig struct {
	ControllerSlots int `mapstructure:"controller_slots" yaml:"controller_slots"`
}

type ExecutorConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	AllowListFile  string        `mapstructure:"allowlist_file" yaml:"allowlist_file"`
	ReloadInterval time.Duration `mapstructure:"reload_interval" yaml:"reload_interval"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level" yaml:"level"`
	OutputFile       string        `mapstructure:"output_file" yaml:"output_file"`
	ErrorFile        string        `mapstructure:"error_file" yaml:"error_file"`
	CounterFile      string        `mapstructure:"counter_file" yaml:"counter_file"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Config is the full server configuration.
type Config struct {
	WorkDir  string         `mapstructure:"work_dir" yaml:"work_dir"`
	TCP      TCPConfig      `mapstructure:"tcp" yaml:"tcp"`
	UDP      UDPConfig      `mapstructure:"udp" yaml:"udp"`
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		WorkDir: "./data",
		TCP: TCPConfig{
			Listen:     ":8081",
			Timeout:    35 * time.Second,
			BufferSize: 4096,
			KeepAlive:  30 * time.Second,
		},
		UDP: UDPConfig{
			Listen:     ":8082",
			BufferSize: 512,
			RateLimit:  2000,
			Burst:      200,
		},
		Transfer: TransferConfig{
			MaxSegmentLength: 64 << 10,
			BigBufferSize:    4 << 20,
			MaxFileSize:      1 << 30,
		},
		Store:    StoreConfig{ControllerSlots: 1024},
		Executor: ExecutorConfig{Workers: 0},
		Auth: AuthConfig{
			Enabled:        false,
			AllowListFile:  "./config/allowlist.txt",
			ReloadInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:            "info",
			OutputFile:       "./config/output.log",
			ErrorFile:        "./config/errors.log",
			CounterFile:      "./config/counters.log",
			SnapshotInterval: time.Minute,
		},
		Metrics: MetricsConfig{Listen: ""},
	}
}

// Load reads path (optional) on top of the defaults and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FLEETLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("tcp.listen", d.TCP.Listen)
	v.SetDefault("tcp.timeout", d.TCP.Timeout)
	v.SetDefault("tcp.buffer_size", d.TCP.BufferSize)
	v.SetDefault("tcp.keepalive", d.TCP.KeepAlive)
	v.SetDefault("udp.listen", d.UDP.Listen)
	v.SetDefault("udp.buffer_size", d.UDP.BufferSize)
	v.SetDefault("udp.rate_limit", d.UDP.RateLimit)
	v.SetDefault("udp.burst", d.UDP.Burst)
	v.SetDefault("transfer.max_segment_length", d.Transfer.MaxSegmentLength)
	v.SetDefault("transfer.big_buffer_size", d.Transfer.BigBufferSize)
	v.SetDefault("transfer.max_file_size", d.Transfer.MaxFileSize)
	v.SetDefault("store.controller_slots", d.Store.ControllerSlots)
	v.SetDefault("executor.workers", d.Executor.Workers)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.allowlist_file", d.Auth.AllowListFile)
	v.SetDefault("auth.reload_interval", d.Auth.ReloadInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.output_file", d.Log.OutputFile)
	v.SetDefault("log.error_file", d.Log.ErrorFile)
	v.SetDefault("log.counter_file", d.Log.CounterFile)
	v.SetDefault("log.snapshot_interval", d.Log.SnapshotInterval)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.WorkDir == "" {
		errs = append(errs, errors.New("work_dir must be set"))
	}
	if c.TCP.Listen == "" && c.UDP.Listen == "" {
		errs = append(errs, errors.New("at least one of tcp.listen and udp.listen must be set"))
	}
	if c.TCP.BufferSize < 1+wireNameFrame {
		errs = append(errs, fmt.Errorf("tcp.buffer_size must be at least %d", 1+wireNameFrame))
	}
	if c.UDP.BufferSize < 8 {
		errs = append(errs, errors.New("udp.buffer_size must be at least 8"))
	}
	if c.Transfer.MaxSegmentLength == 0 {
		errs = append(errs, errors.New("transfer.max_segment_length must be positive"))
	}
	if c.Transfer.BigBufferSize <= 0 {
		errs = append(errs, errors.New("transfer.big_buffer_size must be positive"))
	}
	if c.Store.ControllerSlots <= 0 {
		errs = append(errs, errors.New("store.controller_slots must be positive"))
	}
	if c.Auth.Enabled && c.Auth.AllowListFile == "" {
		errs = append(errs, errors.New("auth.allowlist_file must be set when auth is enabled"))
	}
	return errors.Join(errs...)
}

// wireNameFrame is the largest fixed request body (UploadFile).
const wireNameFrame = wire.FileNameLength + 8

// WriteDefault writes the default configuration as YAML. Existing files are kept.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, out, 0o644)
}
