// Command taskgrove runs the hierarchical task server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskgrove",
	Short: "Hierarchical task server with paginated tree queries",
	Long: `taskgrove stores tasks as a tree of unbounded depth and serves them
page by page, so a client never has to load a whole subtree at once.

Completing a task completes its entire subtree; deleting a task deletes
its entire subtree. Both cascades run inside a single transaction.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (YAML)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
