// Package cmd is the CLI surface (spec §A.4): "serve" runs the data source
// core itself; "source" subcommands are a thin HTTP client against a
// running core's datasource REST API, mirroring the teacher's cmd/
// package layout of one cobra.Command per concern with persistent flags
// bound through viper.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

var cfgFile string

// RootCmd is the entrypoint cobra.Command; main.go calls RootCmd.Execute().
var RootCmd = &cobra.Command{
	Use:   "kismet-datasource",
	Short: "Kismet data source subsystem: capture helper lifecycle, framing, and channel hopping",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, defaults + env only)")
	RootCmd.PersistentFlags().String("api-url", "http://localhost:3502", "base URL of a running kismet-datasource serve instance, for source subcommands")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(sourceCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute runs the root command, printing any error through the shared
// leveled printer before returning its exit status to main.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		printer.Errorf("%v\n", err)
		return 1
	}
	return 0
}
