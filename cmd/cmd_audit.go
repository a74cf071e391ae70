// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/mediquery/audit"
	"github.com/jcodagnone/mediquery/utils/textutils"
	"github.com/spf13/cobra"
)

type auditOptions struct {
	DBPath string
	Since  time.Duration
	Limit  int
}

var auditOpts = &auditOptions{}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Reports over the search log written by serve --audit-db",
}

// openAuditDB opens an existing search log.
func openAuditDB() (*sql.DB, audit.Repository, error) {
	if auditOpts.DBPath == "" {
		return nil, nil, errors.New("no search log configured: set --audit-db or AUDIT_DB")
	}

	if _, err := os.Stat(auditOpts.DBPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("search log not found at %s - run 'serve --audit-db' first", auditOpts.DBPath)
	}

	return openSearchLog(auditOpts.DBPath)
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the searches of a recent period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openAuditDB()
		if err != nil {
			return err
		}
		defer db.Close()

		since := time.Now().Add(-auditOpts.Since)

		summary, err := repo.Summary(cmd.Context(), since)
		if err != nil {
			return err
		}

		printSummary(os.Stdout, summary, since)

		return nil
	},
}

func printSummary(w io.Writer, s *audit.Summary, since time.Time) {
	fmt.Fprintf(w, "Searches since %s\n", since.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  total:          %s\n", textutils.FormatInt(s.Searches))
	fmt.Fprintf(w, "  failed:         %s\n", textutils.FormatInt(s.Failures))
	fmt.Fprintf(w, "  without stores: %s\n", textutils.FormatInt(s.EmptySearches))
	fmt.Fprintf(w, "  stores/search:  %.1f\n", s.AvgStores)
	fmt.Fprintf(w, "  avg duration:   %v\n", s.AvgDuration.Round(time.Millisecond))

	if len(s.ByErrorKind) == 0 {
		return
	}

	fmt.Fprintln(w, "Failures by kind")

	for _, kind := range slices.Sorted(maps.Keys(s.ByErrorKind)) {
		fmt.Fprintf(w, "  %-20s %s\n", kind+":", textutils.FormatInt(s.ByErrorKind[kind]))
	}
}

var auditGapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List the areas where searches keep finding no stores",
	Long: `Groups the searches that found no stores by H3 cell (resolution 7, about
5 km²) and lists the cells with the most of them. These are the areas where
OpenStreetMap is most likely missing pharmacies.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openAuditDB()
		if err != nil {
			return err
		}
		defer db.Close()

		gaps, err := repo.CoverageGaps(cmd.Context(), auditOpts.Limit)
		if err != nil {
			return err
		}

		printGaps(os.Stdout, gaps)

		return nil
	},
}

func printGaps(w io.Writer, gaps []audit.Gap) {
	a, b, c, d := strings.Repeat("─", 15), strings.Repeat("─", 21), strings.Repeat("─", 7), strings.Repeat("─", 40)
	fmt.Fprintf(w, "╭─%-15s─┬─%-21s─┬─%-7s─┬─%-40s╮\n", a, b, c, d)
	fmt.Fprintf(w, "│ %-15s │ %-21s │ %7s │ %-40s│\n", "Cell", "Center", "Empty", "Last location")
	fmt.Fprintf(w, "├─%-15s─┼─%-21s─┼─%-7s─┼─%-40s┤\n", a, b, c, d)

	for _, g := range gaps {
		center := fmt.Sprintf("%.4f,%.4f", g.Center.Lat, g.Center.Lon)
		fmt.Fprintf(w, "│ %15x │ %-21s │ %7s │ %-40s│\n",
			g.Cell, center, textutils.FormatInt(g.EmptySearches), truncate(g.LastLocation, 40))
	}

	fmt.Fprintf(w, "╰─%-15s─┴─%-21s─┴─%-7s─┴─%-40s╯\n", a, b, c, d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	auditCmd.AddCommand(auditGapsCmd)

	auditCmd.PersistentFlags().StringVar(&auditOpts.DBPath, "audit-db", "",
		"DuckDB file of the search log")
	auditSummaryCmd.Flags().DurationVar(&auditOpts.Since, "since", 24*time.Hour,
		"Length of the period to summarize, ending now")
	auditGapsCmd.Flags().IntVar(&auditOpts.Limit, "limit", 20, "Number of cells to list")
}
