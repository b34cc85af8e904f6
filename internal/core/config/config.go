package config

import (
	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/classification/routing"
	"github.com/vietddude/triage/internal/classification/severity"
	redisclient "github.com/vietddude/triage/internal/infra/redis"
	"github.com/vietddude/triage/internal/infra/storage/postgres"
	"github.com/vietddude/triage/internal/infra/tracing"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig          `yaml:"server"`
	Redis        redisclient.Config    `yaml:"redis"`
	Logging      LoggingConfig         `yaml:"logging"`
	Tracing      tracing.Config        `yaml:"tracing"`
	Database     postgres.Config       `yaml:"database"`
	Engine       engine.Config         `yaml:"engine"`
	Scoring      severity.ScoringTable `yaml:"scoring"`
	Capabilities routing.Capabilities  `yaml:"capabilities"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health service
}

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EngineConfig returns the engine settings with the top-level scoring and
// capability sections folded in.
func (c *AppConfig) EngineConfig() engine.Config {
	cfg := c.Engine
	cfg.Scoring = c.Scoring
	cfg.Capabilities = c.Capabilities
	return cfg
}
