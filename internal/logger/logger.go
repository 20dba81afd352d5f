package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Options configure the global logger.
type Options struct {
	Level   string    // debug, info, warn or error; anything else means info
	Format  string    // "console" (default) or "json"
	Output  io.Writer // defaults to stdout
	LogFile string    // optional file written alongside Output
}

// Initialize sets up the global console logger at the given level.
func Initialize(logLevel string) {
	if err := Setup(Options{Level: logLevel}); err != nil {
		log.Error().Err(err).Msg("Failed to set up logger")
	}
}

// Setup configures the global logger and replaces zerolog's package logger with it.
func Setup(opts Options) error {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer
	switch strings.ToLower(opts.Format) {
	case "", "console":
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    out != os.Stdout,
		}
	case "json":
		writer = out
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.LogFile != "" {
		file, err := FileWriter(opts.LogFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(writer, file)
	}

	Logger = zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
	return nil
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering.
// Call it after Setup; a logger taken before that writes nowhere.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return file, nil
}
