// Otapush finds provisioner devices on the local network and pushes
// firmware images to their update endpoint.
//
// Usage:
//
//	otapush list
//	otapush push firmware.bin --device bench-pico
//	otapush watch --host 192.168.1.64:8080
//
// Devices are discovered over mDNS (_provision._tcp); --host skips
// discovery. A device only answers while it is serving updates.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"provisioncode-go/logging"
	"provisioncode-go/version"
)

var (
	flagHost    string
	flagDevice  string
	flagTimeout int
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "otapush",
	Short: "Firmware push tool for provisioner devices",
	Long: `otapush talks to the update endpoint a provisioner device exposes
while it is serving updates. Devices are found over mDNS
(_provision._tcp), or addressed directly with --host.`,
	Version: version.Full(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			return logging.Initialize("debug")
		}
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "device address as host[:port] (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "device name to resolve over mDNS")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 10, "discovery timeout in seconds")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to the console")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("otapush", version.Full())
	},
}

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
