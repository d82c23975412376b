package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	appName    = "ccrelay"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "ccrelay — multi-backend AI reverse proxy",
		RunE:  runServe,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// waitForWriterLoop gives a one-shot CLI command's enqueued pool.SaveToDisk
// a moment to land before the process exits; the server process never needs
// this since it keeps running past any individual mutation.
func waitForWriterLoop() {
	time.Sleep(150 * time.Millisecond)
}
