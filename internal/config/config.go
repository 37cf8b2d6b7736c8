// Package config handles configuration loading, validation, and hot-reload
// for textinputd.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/godbus/dbus/v5"
	"gopkg.in/yaml.v3"

	"textinputd/internal/ime"
	"textinputd/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Socket configuration for the framework-facing endpoint.
	Socket SocketConfig `toml:"socket" json:"socket" yaml:"socket"`

	// IME configuration for the input method bridge.
	IME IMEConfig `toml:"ime" json:"ime" yaml:"ime"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// SocketConfig holds the unix socket endpoint configuration.
type SocketConfig struct {
	// Path is the unix socket path the daemon listens on.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RequireSameUser rejects connections from peers with a different UID.
	RequireSameUser bool `toml:"require_same_user" json:"require_same_user" yaml:"require_same_user"`
}

// IMEConfig holds the input method bridge configuration.
type IMEConfig struct {
	// Enabled determines whether the daemon talks to the input method
	// server at all. When false, show/hide requests are accepted and
	// dropped.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// BusName is the well-known session bus name of the input method server.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// ServerPath is the object path of the input method server.
	ServerPath string `toml:"server_path" json:"server_path" yaml:"server_path"`

	// ServerInterface is the interface used for outgoing method calls.
	ServerInterface string `toml:"server_interface" json:"server_interface" yaml:"server_interface"`

	// ContextInterface is the interface whose signals carry editing events.
	ContextInterface string `toml:"context_interface" json:"context_interface" yaml:"context_interface"`

	// SignalBuffer is the capacity of the incoming signal queue.
	SignalBuffer int `toml:"signal_buffer" json:"signal_buffer" yaml:"signal_buffer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output selects the destination: "stderr", "stdout", "file", "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the log file once it exceeds this size in megabytes.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	imeOpts := ime.DefaultOptions()
	return &Config{
		Version: Version,
		Socket: SocketConfig{
			Path:            DefaultSocketPath(),
			RequireSameUser: true,
		},
		IME: IMEConfig{
			Enabled:          true,
			BusName:          imeOpts.BusName,
			ServerPath:       string(imeOpts.ServerPath),
			ServerInterface:  imeOpts.ServerInterface,
			ContextInterface: imeOpts.ContextInterface,
			SignalBuffer:     imeOpts.SignalBuffer,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// DefaultSocketPath returns the default socket location. It prefers
// XDG_RUNTIME_DIR so the socket lives on a per-user tmpfs.
func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "textinputd", "textinputd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("textinputd-%d", os.Getuid()), "textinputd.sock")
}

// ConfigPath returns the default configuration file location under
// XDG_CONFIG_HOME.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, _ := os.UserHomeDir()
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "textinputd", "config.toml")
}

// ApplyEnvOverrides applies environment variable overrides.
// Variables are prefixed with TEXTINPUTD_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TEXTINPUTD_SOCKET_PATH"); v != "" {
		c.Socket.Path = v
	}
	if v := os.Getenv("TEXTINPUTD_REQUIRE_SAME_USER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Socket.RequireSameUser = b
		}
	}
	if v := os.Getenv("TEXTINPUTD_IME_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IME.Enabled = b
		}
	}
	if v := os.Getenv("TEXTINPUTD_IME_BUS_NAME"); v != "" {
		c.IME.BusName = v
	}
	if v := os.Getenv("TEXTINPUTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TEXTINPUTD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
		if c.Logging.Output == "" || c.Logging.Output == "stderr" {
			c.Logging.Output = "file"
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket.Path == "" {
		errs = append(errs, errors.New("socket: path must not be empty"))
	}

	if c.IME.Enabled {
		if c.IME.BusName == "" {
			errs = append(errs, errors.New("ime: bus_name must not be empty"))
		}
		if c.IME.ServerPath == "" || c.IME.ServerPath[0] != '/' {
			errs = append(errs, fmt.Errorf("ime: server_path %q is not an object path", c.IME.ServerPath))
		}
		if c.IME.SignalBuffer <= 0 {
			errs = append(errs, errors.New("ime: signal_buffer must be positive"))
		}
	}

	if c.Logging.Level != "" {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging: %w", err))
		}
	}
	if c.Logging.Format != "" {
		if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
			errs = append(errs, fmt.Errorf("logging: %w", err))
		}
	}
	switch c.Logging.Output {
	case "", "stderr", "stdout":
	case "file", "both":
		if c.Logging.FilePath == "" {
			errs = append(errs, errors.New("logging: file output requires file_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("logging: unknown output %q", c.Logging.Output))
	}

	return errors.Join(errs...)
}

// IMEOptions converts the IME section into bridge options. Empty fields
// fall back to the defaults.
func (c *Config) IMEOptions() ime.Options {
	opts := ime.DefaultOptions()
	if c.IME.BusName != "" {
		opts.BusName = c.IME.BusName
	}
	if c.IME.ServerPath != "" {
		opts.ServerPath = dbus.ObjectPath(c.IME.ServerPath)
	}
	if c.IME.ServerInterface != "" {
		opts.ServerInterface = c.IME.ServerInterface
	}
	if c.IME.ContextInterface != "" {
		opts.ContextInterface = c.IME.ContextInterface
	}
	if c.IME.SignalBuffer > 0 {
		opts.SignalBuffer = c.IME.SignalBuffer
	}
	return opts
}

// LoggingConfig converts the logging section into a logging.Config.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	cfg := logging.DefaultConfig()
	if c.Logging.Level != "" {
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	if c.Logging.Format != "" {
		format, err := logging.ParseFormat(c.Logging.Format)
		if err != nil {
			return nil, err
		}
		cfg.Format = format
	}
	if c.Logging.Output != "" {
		cfg.Output = c.Logging.Output
	}
	if c.Logging.FilePath != "" {
		cfg.FilePath = c.Logging.FilePath
	}
	if c.Logging.MaxSizeMB > 0 {
		cfg.MaxSize = c.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups > 0 {
		cfg.MaxBackups = c.Logging.MaxBackups
	}
	return cfg, nil
}

// Save writes the configuration to the given path. The format is chosen
// from the file extension, defaulting to TOML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = encodeTOML(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

func encodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
