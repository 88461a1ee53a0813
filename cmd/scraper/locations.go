package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-estates/config"
)

func newLocationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List supported provinces, cities and deal districts",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printLocations(cmd.OutOrStdout())
		},
	}
}

func printLocations(w io.Writer) {
	fmt.Fprintln(w, "Auction locations (province: cities)")
	for _, code := range config.ProvinceCodes() {
		p := config.Provinces[code]
		cities := make([]string, 0, len(config.ProvinceCities[code]))
		for _, c := range config.ProvinceCities[code] {
			cities = append(cities, fmt.Sprintf("%s %s", c, config.Cities[c].Label))
		}
		if len(cities) == 0 {
			cities = append(cities, "(municipality)")
		}
		fmt.Fprintf(w, "  %s %s: %s\n", code, p.Label, strings.Join(cities, ", "))
	}

	fmt.Fprintln(w, "\nDeal districts (district: areas)")
	for _, d := range config.ShenzhenDistricts {
		fmt.Fprintf(w, "  %s: %s\n", d.Name, strings.Join(d.Areas, " "))
	}
}
