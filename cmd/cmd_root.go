// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/mediquery/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "mediquery",
	Short: "find pharmacies and medical stores around a place",
	Long: `
mediquery geocodes a place name and looks up pharmacies, chemists and other
medical stores around it in OpenStreetMap, through the public Overpass mirrors.

It runs as an HTTP API (serve) or directly from the command line (search).
Settings can also be given as environment variables or in a .env file.
`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// envFlags binds flag names to the environment variables that provide their
// default. Explicit flags win over the environment.
var envFlags = map[string]string{
	"environment":         "ENVIRONMENT",
	"log-level":           "LOG_LEVEL",
	"geocoder":            "GEOCODER",
	"nominatim-url":       "NOMINATIM_URL",
	"google-maps-api-key": "GOOGLE_MAPS_API_KEY",
	"google-key-name":     "GOOGLE_MAPS_KEY_NAME",
	"google-project":      "GOOGLE_CLOUD_PROJECT",
	"overpass-endpoints":  "OVERPASS_ENDPOINTS",
	"default-radius":      "DEFAULT_RADIUS",
	"max-radius":          "MAX_RADIUS",
	"host":                "HOST",
	"port":                "PORT",
	"rate-limit-window":   "RATE_LIMIT_WINDOW",
	"rate-limit-max":      "RATE_LIMIT_MAX",
	"cors-origins":        "CORS_ORIGINS",
	"trusted-proxies":     "TRUSTED_PROXIES",
	"audit-db":            "AUDIT_DB",
}

// loadEnvironment reads .env, when present, and fills every flag the user
// did not set from its environment variable.
func loadEnvironment(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var errs []error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		env, ok := envFlags[f.Name]
		if !ok || f.Changed {
			return
		}

		value, ok := os.LookupEnv(env)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}

		if err := f.Value.Set(envValue(f, value)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", env, value, err))
		}
	})

	return errors.Join(errs...)
}

// envValue adapts environment values to the flag syntax. Bare numbers given
// for durations are milliseconds.
func envValue(f *pflag.Flag, value string) string {
	value = strings.TrimSpace(value)

	if f.Value.Type() == "duration" && strings.Trim(value, "0123456789") == "" {
		return value + "ms"
	}

	return value
}

// newLogger builds the structured logger: text for development, JSON in
// production.
func newLogger(environment, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	handlerOptions := &slog.HandlerOptions{Level: lvl}

	if environment == server.EnvironmentProduction {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOptions)), nil
	}

	return slog.New(slog.NewTextHandler(os.Stderr, handlerOptions)), nil
}
