// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/search"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugQueryCmd = &cobra.Command{
	Use:   "query <lat> <lon> [radius]",
	Short: "Print the Overpass query sent for a point",
	Long: `Prints the Overpass QL union query that a search around <lat>,<lon> sends to
the mirrors. The radius is in km and defaults to 5.

$ mediquery debug query 28.6315 77.2167 2 | curl -s --data-binary @- https://overpass-api.de/api/interpreter`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(_ *cobra.Command, args []string) error {
		point, radius, err := parseQueryArgs(args)
		if err != nil {
			return err
		}

		fmt.Print(overpass.BuildQuery(point, radius))

		return nil
	},
}

func parseQueryArgs(args []string) (spatial.Point, float64, error) {
	lat, errLat := strconv.ParseFloat(args[0], 64)
	lon, errLon := strconv.ParseFloat(args[1], 64)

	point := spatial.Point{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !point.Valid() {
		return point, 0, fmt.Errorf("invalid coordinates %s,%s", args[0], args[1])
	}

	radius := float64(search.DefaultRadiusKm)

	if len(args) > 2 {
		r, err := strconv.ParseFloat(args[2], 64)
		if err != nil || r <= 0 {
			return point, 0, fmt.Errorf("invalid radius %q", args[2])
		}

		radius = r
	}

	return point, radius, nil
}

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode <location>",
	Short: "Resolve a location with the configured geocoder",
	Long: `Prints the coordinates and display name the configured geocoder returns for
a location, without querying the Overpass mirrors.

$ mediquery debug geocode "Connaught Place, Delhi"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := pipeline.newFinder(cmd.Context(), nil)
		if err != nil {
			return err
		}

		result, err := f.geocoder.Geocode(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		if isatty.IsTerminal(os.Stdout.Fd()) {
			enc.SetIndent("", "  ")
		}

		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugQueryCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
}
