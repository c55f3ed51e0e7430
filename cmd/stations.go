package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solalog/solalog-server/internal/station"
)

var (
	nearLat float64
	nearLon float64
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Inspect the station list",
}

var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the loaded stations in match order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		idx, err := initStations(cfg)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tNAME\tLINE\tLAT\tLON")
		for i, s := range idx.Stations() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.6f\t%.6f\n", i, s.Name, s.Line, s.Lat, s.Lon)
		}
		return tw.Flush()
	},
}

var stationsNearCmd = &cobra.Command{
	Use:   "near",
	Short: "Show which station, if any, a coordinate counts as",
	RunE: func(cmd *cobra.Command, _ []string) error {
		idx, err := initStations(cfg)
		if err != nil {
			return err
		}

		s, ok := idx.FindNearby(nearLat, nearLon)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "no station within %.0fm\n", idx.Radius())
			return nil
		}
		d := station.DistanceMeters(nearLat, nearLon, s.Lat, s.Lon)
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) %.1fm\n", s.Name, s.Line, d)
		return nil
	},
}

func init() {
	stationsNearCmd.Flags().Float64Var(&nearLat, "lat", 0, "latitude")
	stationsNearCmd.Flags().Float64Var(&nearLon, "lon", 0, "longitude")
	_ = stationsNearCmd.MarkFlagRequired("lat")
	_ = stationsNearCmd.MarkFlagRequired("lon")

	stationsCmd.AddCommand(stationsListCmd)
	stationsCmd.AddCommand(stationsNearCmd)
	rootCmd.AddCommand(stationsCmd)
}
