package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kismetwireless/kismet-datasource-core/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kismet-datasource build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(buildinfo.DisplayString())
		return nil
	},
}
