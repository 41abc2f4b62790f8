// Package config loads omtest configuration from YAML files and
// environment variables.
//
// Values are layered: defaults, then the config file, then OMTEST_*
// environment variables. Call Validate on the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/session"
)

// Config contains all omtest settings.
type Config struct {
	Compiler CompilerConfig `yaml:"compiler"`
	Session  SessionConfig  `yaml:"session"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CompilerConfig describes how to reach the compiler.
type CompilerConfig struct {
	// Executable is the compiler binary, looked up in PATH.
	Executable string `yaml:"executable"`

	// Args are extra command-line flags for the compiler process.
	Args []string `yaml:"args,omitempty"`

	// Endpoint connects to an already running compiler (tcp://host:port)
	// instead of starting one.
	Endpoint string `yaml:"endpoint,omitempty"`

	// PortFileTimeout bounds the wait for a started compiler to publish its endpoint.
	PortFileTimeout time.Duration `yaml:"port_file_timeout"`

	// StopTimeout bounds the wait for a compiler to exit after quit().
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// SessionConfig bounds session creation and freeze recovery.
type SessionConfig struct {
	CreateAttempts int           `yaml:"create_attempts"`
	FreezeTimeout  time.Duration `yaml:"freeze_timeout"`
	FreezeRetries  int           `yaml:"freeze_retries"`

	// IgnoredDiagnostics are compiler messages that never fail a stage.
	// An entry must equal the whole text getErrorString() returns after a
	// call, trailing newline included, for example
	//
	//	"Warning: Requested package Modelica of version 3.2.3, but this package was already loaded with version 4.0.0.\n"
	//
	// The wording of such messages changes between compiler releases, so
	// none are ignored by default. Suites can add their own entries.
	IgnoredDiagnostics []string `yaml:"ignored_diagnostics,omitempty"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig sets log verbosity: "debug", "info", "warn" or "error".
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the stock configuration.
func Default() *Config {
	s := session.DefaultConfig()
	return &Config{
		Compiler: CompilerConfig{
			Executable:      "omc",
			PortFileTimeout: 5 * time.Second,
			StopTimeout:     3 * time.Second,
		},
		Session: SessionConfig{
			CreateAttempts: s.MaxCreateAttempts,
			FreezeTimeout:  s.FreezeTimeout,
			FreezeRetries:  s.MaxFreezeRetries,
		},
		Store: StoreConfig{
			Path: filepath.Join(".omtest", "history.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath is ~/.omtest/config.yaml, or "" if there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".omtest", "config.yaml")
}

// Load reads path, or DefaultPath if path is empty, and applies environment
// overrides. An explicit path must exist; a missing default file is skipped.
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			fileConfig, err := LoadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
			config = fileConfig
		case explicit || !errors.Is(statErr, os.ErrNotExist):
			return nil, fmt.Errorf("loading config file: %w", statErr)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile reads a YAML file on top of the defaults. Unknown keys are
// rejected.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return config, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Compiler.Executable == "" && c.Compiler.Endpoint == "" {
		return fmt.Errorf("compiler.executable or compiler.endpoint is required")
	}
	if c.Compiler.Endpoint != "" && !strings.Contains(c.Compiler.Endpoint, "://") {
		return fmt.Errorf("compiler.endpoint must be a transport URL such as tcp://127.0.0.1:5555, got %q", c.Compiler.Endpoint)
	}
	if c.Compiler.PortFileTimeout <= 0 {
		return fmt.Errorf("compiler.port_file_timeout must be positive, got %v", c.Compiler.PortFileTimeout)
	}
	if c.Session.CreateAttempts < 1 {
		return fmt.Errorf("session.create_attempts must be at least 1, got %d", c.Session.CreateAttempts)
	}
	if c.Session.FreezeTimeout <= 0 {
		return fmt.Errorf("session.freeze_timeout must be positive, got %v", c.Session.FreezeTimeout)
	}
	if c.Session.FreezeRetries < 1 {
		return fmt.Errorf("session.freeze_retries must be at least 1, got %d", c.Session.FreezeRetries)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
}

// LaunchConfig returns the compiler launch settings.
func (c *Config) LaunchConfig() omc.LaunchConfig {
	return omc.LaunchConfig{
		Executable:      c.Compiler.Executable,
		Args:            c.Compiler.Args,
		Endpoint:        c.Compiler.Endpoint,
		PortFileTimeout: c.Compiler.PortFileTimeout,
		StopTimeout:     c.Compiler.StopTimeout,
	}
}

// SessionConfig returns the lifecycle limits. Ignored diagnostics from a
// suite can be appended by the caller.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		MaxCreateAttempts:  c.Session.CreateAttempts,
		FreezeTimeout:      c.Session.FreezeTimeout,
		MaxFreezeRetries:   c.Session.FreezeRetries,
		IgnoredDiagnostics: append([]string(nil), c.Session.IgnoredDiagnostics...),
	}
}

func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("OMTEST_OMC"); v != "" {
		config.Compiler.Executable = v
	}
	if v := os.Getenv("OMTEST_ENDPOINT"); v != "" {
		config.Compiler.Endpoint = v
	}
	if v := os.Getenv("OMTEST_DB"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("OMTEST_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("OMTEST_CREATE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMTEST_CREATE_ATTEMPTS: %w", err)
		}
		config.Session.CreateAttempts = n
	}
	if v := os.Getenv("OMTEST_FREEZE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OMTEST_FREEZE_TIMEOUT: %w", err)
		}
		config.Session.FreezeTimeout = d
	}
	if v := os.Getenv("OMTEST_FREEZE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMTEST_FREEZE_RETRIES: %w", err)
		}
		config.Session.FreezeRetries = n
	}
	return nil
}
