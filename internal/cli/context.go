package cli

import (
	"github.com/rs/zerolog"

	"agentwatch/internal/config"
	"agentwatch/pkg/logger"
)

// CLIContext carries what PersistentPreRunE prepared for the running command.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Close releases resources opened for the command.
func (c *CLIContext) Close() error {
	return logger.Close()
}

// Log returns a logger for the named command.
func (c *CLIContext) Log(command string) zerolog.Logger {
	return logger.Component(command)
}
