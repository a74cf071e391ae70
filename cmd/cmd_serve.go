// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/mediquery/audit"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	server.Options
	AuditDB string
}

var serveOpts = &serveOptions{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the store finder HTTP API",
	Long: `Serves POST /api/medical-stores until SIGINT or SIGTERM, then waits for the
searches in flight before exiting.

When --audit-db is set every served search is appended to a DuckDB search log,
which the audit command reports on.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serveOpts.Environment = pipeline.Environment
		serveOpts.Version = Version

		if len(pipeline.OverpassEndpoints) > 0 {
			serveOpts.OverpassURL = pipeline.OverpassEndpoints[0]
		}

		if serveOpts.Production() {
			gin.SetMode(gin.ReleaseMode)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.New(reg)

		f, err := pipeline.newFinder(ctx, m)
		if err != nil {
			return err
		}

		deps := server.Dependencies{
			Searcher: f.service,
			Logger:   f.logger,
			Gatherer: reg,
			Metrics:  m,
		}

		if serveOpts.AuditDB != "" {
			db, repo, err := openSearchLog(serveOpts.AuditDB)
			if err != nil {
				return err
			}
			defer db.Close()

			deps.SearchLog = repo

			log.Printf("📒 Recording searches in %s", serveOpts.AuditDB)
		}

		srv, err := server.NewServer(serveOpts.Options, deps)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		log.Printf("📍 Environment: %s", serveOpts.Environment)
		log.Printf("🗺️  Geocoder: %s, %d Overpass mirrors", f.geocoder.Name(), len(f.overpass.Endpoints()))

		return srv.Run(ctx)
	},
}

// openSearchLog opens the DuckDB search log at path, creating it when needed.
func openSearchLog(path string) (*sql.DB, audit.Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating audit db directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit database: %w", err)
	}

	repo := audit.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return db, repo, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.StringVar(&serveOpts.Host, "host", "", "Interface to listen on; empty means all")
	flags.IntVar(&serveOpts.Port, "port", 3000, "Port to listen on")
	flags.DurationVar(&serveOpts.RateLimitWindow, "rate-limit-window", server.DefaultRateLimitWindow,
		"Admission window per client; bare numbers are milliseconds when given through the environment")
	flags.IntVar(&serveOpts.RateLimitMax, "rate-limit-max", server.DefaultRateLimitMax,
		"Requests admitted per client and window; 0 disables the limit")
	flags.StringSliceVar(&serveOpts.CORSOrigins, "cors-origins", server.DefaultCORSOrigins,
		"Origins allowed in production")
	flags.StringSliceVar(&serveOpts.TrustedProxies, "trusted-proxies", nil,
		"Proxies whose X-Forwarded-For is trusted to identify the client")
	flags.StringVar(&serveOpts.AuditDB, "audit-db", "",
		"DuckDB file for the search log; empty disables it")
}
