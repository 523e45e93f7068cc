// Package cmd implements the echoboard CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/echoboard/echoboard/pkg/client"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	accountID  string
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "echoboard",
	Short: "CLI for the echoboard project directory",
	Long:  `echoboard is a command-line tool for managing projects, slugs and verification tokens.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if serverURL == "" {
			serverURL = os.Getenv("ECHOBOARD_SERVER")
		}
		if serverURL == "" {
			serverURL = client.DefaultServer
		}
		if accountID == "" {
			accountID = os.Getenv("ECHOBOARD_ACCOUNT")
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $ECHOBOARD_SERVER)")
	rootCmd.PersistentFlags().StringVar(&accountID, "account", "", "account id (default $ECHOBOARD_ACCOUNT)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// getClient creates a client with current flags.
func getClient() *client.Client {
	return client.New(accountID, client.WithServer(serverURL))
}

// fail prints the error and exits non-zero.
func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
