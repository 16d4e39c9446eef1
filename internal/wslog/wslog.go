// Package wslog provides the structured, process-wide logger shared by every
// ws tool. It mirrors the teacher's pkg/log package: a package-level Logger,
// an Init that configures level/format, and With* constructors for
// component-scoped child loggers.
package wslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a configured log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Sensible default so packages used from tests without explicit Init
	// still produce usable output.
	Init(Config{Level: InfoLevel})
}

// WithComponent creates a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithFilesystem creates a child logger tagged with the ws filesystem name.
func WithFilesystem(fs string) zerolog.Logger {
	return Logger.With().Str("filesystem", fs).Logger()
}

// WithWorkspace creates a child logger tagged with a workspace id.
func WithWorkspace(id string) zerolog.Logger {
	return Logger.With().Str("workspace_id", id).Logger()
}
