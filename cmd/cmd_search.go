// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/mediquery/search"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type searchOptions struct {
	Radius   float64
	Interval time.Duration
}

var searchOpts = &searchOptions{}

// searchOutput is one line of the search command output.
type searchOutput struct {
	Location string         `json:"location"`
	Result   *search.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

var searchCmd = &cobra.Command{
	Use:   "search [location...]",
	Short: "Search medical stores around one or more places",
	Long: `Runs a store search for every location and prints one JSON document per
search on stdout. Without arguments locations are read from stdin, one per line.

$ mediquery search "Connaught Place, Delhi" --radius 3
{"location":"Connaught Place, Delhi","result":{"stores":[…],…}}

Searches run one after the other and start at most once per --interval, which
keeps batches within the public Nominatim usage policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var radius *float64
		if cmd.Flags().Changed("radius") {
			radius = &searchOpts.Radius
		}

		locations := args
		if len(locations) == 0 {
			if isatty.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(os.Stderr, "Enter the locations to search, one per line…")
			}

			var err error
			if locations, err = readLocations(os.Stdin); err != nil {
				return err
			}
		}

		if len(locations) == 0 {
			return errors.New("no locations given")
		}

		f, err := pipeline.newFinder(cmd.Context(), nil)
		if err != nil {
			return err
		}

		return runSearches(cmd.Context(), f.service, locations, radius, searchOpts.Interval, os.Stdout)
	},
}

// readLocations returns the non blank lines of r.
func readLocations(r io.Reader) ([]string, error) {
	var locations []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			locations = append(locations, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading locations: %w", err)
	}

	return locations, nil
}

// storeSearcher is the part of search.Service used by the command.
type storeSearcher interface {
	Search(ctx context.Context, location string, radiusKm *float64) (*search.Result, error)
}

// runSearches searches every location, writing one JSON line per search to
// out. A failed search does not stop the batch; all failures are returned
// together.
func runSearches(ctx context.Context, searcher storeSearcher, locations []string, radius *float64,
	interval time.Duration, out io.Writer,
) error {
	// rate.Every of a non positive interval is rate.Inf
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var bar *progressbar.ProgressBar
	if len(locations) > 1 && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(locations),
			progressbar.OptionSetDescription("Searching"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	enc := json.NewEncoder(out)

	var (
		errs  []error
		found int
	)

	for _, location := range locations {
		if err := limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting to search %q: %w", location, err))

			break
		}

		output := searchOutput{Location: location}

		result, err := searcher.Search(ctx, location, radius)
		if err != nil {
			errs = append(errs, fmt.Errorf("searching %q: %w", location, err))
			output.Error = err.Error()
		} else {
			output.Result = result
			found += len(result.Stores)
		}

		if err := enc.Encode(output); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if len(locations) > 1 {
		log.Printf("✅ %d searches, %d failed, %d stores found", len(locations), len(errs), found)
	}

	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64Var(&searchOpts.Radius, "radius", search.DefaultRadiusKm,
		"Search radius in km; clamped to the allowed range")
	searchCmd.Flags().DurationVar(&searchOpts.Interval, "interval", time.Second,
		"Minimum time between two searches; 0 disables throttling")
}
