package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var graphDepth int

var graphCmd = &cobra.Command{
	Use:   "graph [center]",
	Short: "Show the knowledge graph, optionally around an entity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, eng, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		defer eng.Stop()

		center := ""
		if len(args) > 0 {
			center = args[0]
		}

		view, err := eng.ReadGraph(context.Background(), center, graphDepth)
		if err != nil {
			return err
		}

		for _, ent := range view.Entities {
			fmt.Printf("%s (%s, importance %.2f)\n", ent.Name, ent.Type, ent.Importance)
			for _, obs := range ent.Observations {
				fmt.Printf("  - %s\n", obs)
			}
		}
		for _, rel := range view.Relations {
			fmt.Printf("%s --%s--> %s\n", rel.Source, rel.Relation, rel.Target)
		}
		for _, mem := range view.Memories {
			fmt.Printf("memory: %s\n", mem.Content)
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().IntVar(&graphDepth, "depth", 2, "traversal depth from the center entity (max 3)")
}
