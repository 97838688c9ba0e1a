package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from stored memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ans, err := env.Chain.Answer(ctx, args[0], askTopK)
		if err != nil {
			return err
		}

		fmt.Println(ans.Text)

		if len(ans.Sources) > 0 {
			fmt.Printf("\n--- %d sources (%s)", len(ans.Sources), ans.Source)
			if ans.Cached {
				fmt.Print(", cached")
			}
			fmt.Println(" ---")
			for _, s := range ans.Sources {
				text := s.Text
				if len(text) > 120 {
					text = text[:120] + "..."
				}
				fmt.Printf("  [%.3f] %s\n", s.Score, strings.ReplaceAll(text, "\n", " "))
			}
		}
		if len(ans.NewFacts) > 0 {
			fmt.Printf("\nRemembered %d new facts\n", len(ans.NewFacts))
		}

		return nil
	},
}

func init() {
	askCmd.Flags().IntVar(&askTopK, "k", 5, "number of memories to retrieve")
	rootCmd.AddCommand(askCmd)
}
