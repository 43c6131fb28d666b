// Package cli implements the citymap command tree.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "citymap",
	Short:        "Export a zoomable image tile pyramid from a 2D point cloud",
	SilenceUsage: true,
	Long: `citymap turns a point cloud of images (x, y, url, caption) into a three-level
grid pyramid of representative thumbnails and JSON tiles for a pannable web viewer.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		log.SetOutput(cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every failed image candidate")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// discardLogs silences the standard logger, used by tests.
func discardLogs() func() {
	prev := log.Writer()
	log.SetOutput(io.Discard)
	return func() { log.SetOutput(prev) }
}
