// Package cmd wires the command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/heatwatch/heatwatch-go/internal/conf"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "heatwatch",
		Short: "Thermal inspection annotation service",
		Long: "HeatWatch stores transformer thermal inspections, runs anomaly " +
			"detection on maintenance images and reconciles detector output " +
			"with human annotations.",
	}

	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", settings.Debug, "Enable debug output")

	rootCmd.AddCommand(
		serveCommand(settings),
		reconcileCommand(settings),
		statsCommand(settings),
		cleanupCommand(settings),
	)
	return rootCmd
}
