package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage verification tokens",
}

var tokensCreateCmd = &cobra.Command{
	Use:   "create <target-part>...",
	Short: "Issue a single-use verification token",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := getClient().TokenCreate(cmd.Context(), args...)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			printJSON(resp)
			return
		}
		fmt.Println("Token:", resp.Token)
		fmt.Println("Target:", resp.TargetID)
		fmt.Println("Expires:", time.Unix(resp.TTLEpochSec, 0).Format(time.RFC3339))
	},
}

var tokensVerifyCmd = &cobra.Command{
	Use:   "verify <token> <target-part>...",
	Short: "Consume a token and report validity",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		valid, err := getClient().TokenVerify(cmd.Context(), args[0], args[1:]...)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			printJSON(map[string]bool{"valid": valid})
			return
		}
		if valid {
			fmt.Println("Token valid")
		} else {
			fmt.Println("Token invalid or expired")
		}
	},
}

func init() {
	tokensCmd.AddCommand(tokensCreateCmd)
	tokensCmd.AddCommand(tokensVerifyCmd)
	rootCmd.AddCommand(tokensCmd)
}
