package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recollect",
	Short: "Personal memory store with hybrid recall and a knowledge graph",
	Long:  "Recollect stores short text facts, indexes them by meaning and keyword, extracts entities into a knowledge graph, and ranks recall by semantic relevance blended with time-decayed importance.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(maintainCmd)
}
