// Command console is a terminal front end for the grievance assistant. It
// runs the conversation engine in-process against the answer service and
// offers the identifier and status-formatting helpers as subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grievance-console",
		Short: "Terminal client for the grievance assistant",
		Long: `Chat with the grievance assistant from a terminal, or use its
identifier and status-formatting helpers directly.`,
		SilenceUsage: true,
	}
	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8000"
	}
	root.PersistentFlags().String("backend", backendURL, "answer service base URL (env BACKEND_URL)")
	root.AddCommand(newChatCmd(), newClassifyCmd(), newFormatStatusCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
