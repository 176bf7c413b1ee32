package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintainEmbed bool

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run an importance maintenance pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, eng, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		defer eng.Stop()

		updated, err := eng.RunMaintenance()
		if err != nil {
			return err
		}
		fmt.Printf("maintenance: %d memories updated\n", updated)

		if maintainEmbed {
			embedded, err := eng.EmbedMissing(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("maintenance: %d embeddings backfilled\n", embedded)
		}
		return nil
	},
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainEmbed, "embed", false, "backfill missing or stale embeddings")
}
