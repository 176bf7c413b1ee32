package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rememberTags []string

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a new memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, eng, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		defer eng.Stop()

		id, err := eng.Remember(context.Background(), strings.Join(args, " "), rememberTags)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var recallLimit int

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories by meaning and keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, eng, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		defer eng.Stop()

		resp, err := eng.Recall(context.Background(), strings.Join(args, " "), recallLimit, nil)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			fmt.Println("no memories found")
			return nil
		}
		for _, res := range resp.Results {
			age := time.Since(time.UnixMilli(res.Memory.CreatedAt)).Round(time.Hour)
			fmt.Printf("%.3f  %s  [%s ago]\n", res.Score, res.Memory.Content, age)
		}
		fmt.Printf("(%d results, mode: %s)\n", len(resp.Results), resp.Mode)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, eng, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		defer eng.Stop()

		if err := eng.Forget(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

func init() {
	rememberCmd.Flags().StringSliceVar(&rememberTags, "tag", nil, "tag to attach (repeatable)")
	recallCmd.Flags().IntVar(&recallLimit, "limit", 10, "maximum results")
}
