package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rowetechinc/river/internal/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and supported baud rates",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

func runPorts(cmd *cobra.Command, args []string) error {
	reg := serialport.NewRegistry(serialport.System{})
	ports, err := reg.List()
	if err != nil {
		return fmt.Errorf("listing ports: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"ports": ports, "bauds": serialport.BaudRates()})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tPRODUCT")
	for _, p := range ports {
		ids := ""
		if p.IsUSB {
			ids = p.VID + ":" + p.PID
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", p.Name, p.IsUSB, ids, p.Product)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(os.Stderr, "no serial ports found")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nbaud rates: %v\n", serialport.BaudRates())
	return nil
}
