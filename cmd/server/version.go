package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	httpapi "github.com/garyjia/site-audit/internal/interfaces/http"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "site-audit %s (%s)\n", httpapi.Version, runtime.Version())
	},
}
