// Command river bridges a serial ADCP to websocket and HTTP observers.
//
// Usage:
//
//	river serve -c river.yaml            # start the bridge
//	river serve --simulate --connect     # run against the built-in simulator
//	river ports                          # list serial ports
//	river version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X main.version=..." at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "river",
	Short: "Serial ADCP bridge",
	Long: `river owns one serial connection to an ADCP instrument, decodes the
ensemble stream and publishes raw text, ensemble numbers and a rolling
voltage plot to websocket clients.

Quick start:
  river ports
  river serve -c river.yaml
  open ws://127.0.0.1:8080/ws`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("river %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
