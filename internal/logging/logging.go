// Package logging builds slog handlers for the appliance. The config file
// carries syslog-style level names (DEBUG..CRITICAL); BOSS_LOG_LEVEL
// overrides whatever the config says.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "BOSS_LOG_LEVEL"

// ResolveLevel applies the BOSS_LOG_LEVEL override to the configured level.
func ResolveLevel(configured string) string {
	if env := os.Getenv(EnvLogLevel); env != "" {
		return env
	}
	return configured
}

// SetupHandlerText configures a text slog handler with the provided writer and log level.
// CRITICAL maps to the error level; charmbracelet/log has no fatal-without-exit level.
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}

	reportCaller := false
	reportTimestamp := true
	lvl := charmlog.InfoLevel
	switch strings.ToLower(logLevel) {
	case "trace":
		reportCaller = true
		lvl = charmlog.DebugLevel
	case "debug":
		lvl = charmlog.DebugLevel
	case "info":
		lvl = charmlog.InfoLevel
	case "warn", "warning":
		lvl = charmlog.WarnLevel
	case "error", "critical":
		lvl = charmlog.ErrorLevel
	}

	return charmlog.NewWithOptions(writer, charmlog.Options{
		ReportTimestamp: reportTimestamp,
		ReportCaller:    reportCaller,
		Level:           lvl,
	})
}

// SetupHandlerJSON configures a JSON slog handler with the provided writer and log level.
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stdout
	}

	var level slog.Level
	addSource := false
	switch strings.ToLower(logLevel) {
	case "trace":
		addSource = true
		level = slog.LevelDebug
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "critical":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	})
}

// SetupLogger configures the default logger. When logFile is non-empty the
// handler appends to that file instead of stderr; open failures fall back to
// stderr so a bad path never silences the process.
func SetupLogger(logLevel, logFile string) {
	var writer io.Writer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("Failed to open log file, falling back to stderr", "path", logFile, "error", err)
		} else {
			writer = f
		}
	}
	handler := SetupHandlerText(ResolveLevel(logLevel), writer)
	slog.SetDefault(slog.New(handler))
}
