// Command webpodsd runs the multi-tenant append-only log service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webpods-go/webpods/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "webpodsd",
	Short:   "webpodsd serves hash-chained, multi-tenant append-only logs over HTTP",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Initialize()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
