// Package main is the entry point for the country snapshot API server.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/worldsnap/country-snapshot-server/cmd/country-snapshot-api/app"
	"github.com/worldsnap/country-snapshot-server/internal/config"
)

// getLogLevel parses the CSNAP_LOG_LEVEL environment variable.
// Defaults to slog.LevelInfo if unset or invalid.
func getLogLevel() slog.Level {
	levelStr := os.Getenv(config.EnvPrefix + "_LOG_LEVEL")

	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid log level, using INFO", "value", levelStr)
		return slog.LevelInfo
	}
}

func main() {
	// Local development convenience; absence of a .env file is not an error
	_ = godotenv.Load()

	// Structured JSON logging on stderr keeps stdout clean for commands that
	// output data (e.g., version --format json)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLogLevel()})
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
