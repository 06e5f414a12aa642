package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beacond",
	Short: "Eddystone beacon with a panic button",
	Long: `Runs a BLE beacon on a Linux or macOS host:

- Periodic advertising windows with a battery and button status record
- Emergency windows raised by a GPIO push button, with buzzer feedback
- Eddystone configuration service for slot, lock and tx power settings
- Eddystone-URL frames in non-connectable beacon mode

GPIO, buzzer, LEDs and the battery gauge are driven through periph.io.`,
	Version:      fmt.Sprintf("%s (%s, %s)", formatVersion(version), commit, date),
	RunE:         runBeacon,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Shorthand for --log-level debug")

	rootCmd.Flags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.Flags().String("serial", "", "Hex serial number used in the advertised name")
	rootCmd.Flags().String("url", "", "Eddystone URL preloaded into slot 0")
	rootCmd.Flags().Bool("no-boot-window", false, "Do not advertise right after start")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
