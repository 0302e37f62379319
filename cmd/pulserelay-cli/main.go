// pulserelay-cli drives a running pulserelay server over its HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL string
	apiKey    string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:           "pulserelay-cli",
	Short:         "Client for the pulserelay AI request mailbox",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "base URL of the pulserelay server")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("PULSERELAY_API_KEY"), "API key (defaults to PULSERELAY_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
