package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/classification/severity"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	switch cfg.Logging.Format {
	case "":
		cfg.Logging.Format = LogFormatText
	case LogFormatText, LogFormatJSON:
	default:
		return nil, fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	if err := cfg.Tracing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing config: %w", err)
	}

	def := engine.DefaultConfig()
	if cfg.Engine.Budget <= 0 {
		cfg.Engine.Budget = def.Budget
	}
	if cfg.Engine.HistoryDepth <= 0 {
		cfg.Engine.HistoryDepth = def.HistoryDepth
	}
	if cfg.Engine.BatchWorkers <= 0 {
		cfg.Engine.BatchWorkers = def.BatchWorkers
	}
	if cfg.Engine.BusinessHours.Start == 0 && cfg.Engine.BusinessHours.End == 0 {
		cfg.Engine.BusinessHours = def.BusinessHours
	}
	if cfg.Engine.BusinessHours.Start < 0 || cfg.Engine.BusinessHours.End > 24 ||
		cfg.Engine.BusinessHours.Start >= cfg.Engine.BusinessHours.End {
		return nil, fmt.Errorf("invalid business hours %d-%d",
			cfg.Engine.BusinessHours.Start, cfg.Engine.BusinessHours.End)
	}
	if cfg.Scoring.Version == "" {
		cfg.Scoring.Version = severity.TableVersion
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring table: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: LogFormatText},
		Engine:  engine.DefaultConfig(),
		Scoring: severity.DefaultTable(),
	}
}
