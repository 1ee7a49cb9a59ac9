// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jolks/pipetask/internal/utils"
)

// ServerConfig holds MCP server settings
type ServerConfig struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Address       string `json:"address"`
	Port          int    `json:"port"`
	TransportMode string `json:"transport"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level    string `json:"level"`
	FilePath string `json:"file_path"`
}

// ProviderConfig holds default provider selection
type ProviderConfig struct {
	// Default is the provider activated when none is named explicitly
	Default string `json:"default"`
	// Model overrides the per-kind default model identifier
	Model string `json:"model"`
}

// EngineConfig holds task engine settings
type EngineConfig struct {
	// WorkDir is the working directory recorded on tasks
	WorkDir string `json:"work_dir"`
	// PlanTimeout bounds the planning exchange
	PlanTimeout time.Duration `json:"plan_timeout"`
	// StepTimeout bounds each step exchange
	StepTimeout time.Duration `json:"step_timeout"`
	// SummaryTimeout bounds the summary exchange
	SummaryTimeout time.Duration `json:"summary_timeout"`
}

// SchedulerConfig holds recurring-task scheduler settings
type SchedulerConfig struct {
	// DefaultTimeout bounds one scheduled task run end to end
	DefaultTimeout time.Duration `json:"default_timeout"`
}

// Config is the top-level configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Provider  ProviderConfig  `json:"provider"`
	Engine    EngineConfig    `json:"engine"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	wd, _ := os.Getwd()
	return &Config{
		Server: ServerConfig{
			Name:          "pipetask",
			Version:       "dev",
			Address:       "localhost",
			Port:          8765,
			TransportMode: "stdio",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Provider: ProviderConfig{
			Default: "null",
		},
		Engine: EngineConfig{
			WorkDir:        wd,
			PlanTimeout:    30 * time.Second,
			StepTimeout:    60 * time.Second,
			SummaryTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			DefaultTimeout: 10 * time.Minute,
		},
	}
}

// FromEnv overrides cfg with PIPETASK_* environment variables
func FromEnv(cfg *Config) {
	if v := os.Getenv("PIPETASK_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PIPETASK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PIPETASK_SERVER_TRANSPORT"); v != "" {
		cfg.Server.TransportMode = v
	}
	if v := os.Getenv("PIPETASK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PIPETASK_PROVIDER"); v != "" {
		cfg.Provider.Default = v
	}
	if v := os.Getenv("PIPETASK_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("PIPETASK_WORK_DIR"); v != "" {
		cfg.Engine.WorkDir = v
	}
}

// LoadFile merges the JSON config file at path into cfg. A missing file is
// not an error so a config path can be configured before the file exists.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := utils.JsonUnmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Server.TransportMode {
	case "stdio", "sse":
	default:
		return fmt.Errorf("invalid transport mode: %s", c.Server.TransportMode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Engine.PlanTimeout <= 0 || c.Engine.StepTimeout <= 0 || c.Engine.SummaryTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive")
	}
	return nil
}
