package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

var (
	searchTopK   int
	searchVector bool
)

// vectorSearchAPI is the similarity-only retrieval path.
type vectorSearchAPI interface {
	SearchScores(ctx context.Context, query string, k int) ([]model.Memory, error)
}

// runSearch executes exactly one retrieval path. The unselected path must
// not run; both paths cost an embedding call.
func runSearch(ctx context.Context, hybrid searchAPI, vector vectorSearchAPI, vectorOnly bool, query string, k int) ([]model.Memory, error) {
	if vectorOnly {
		return vector.SearchScores(ctx, query, k)
	}
	return hybrid.Search(ctx, query, k)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Long:  "Hybrid search fusing vector similarity with BM25 keyword matching. Use --vector for similarity-only results.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mems, err := runSearch(ctx, env.Hybrid, env.Memory, searchVector, args[0], searchTopK)
		if err != nil {
			return err
		}

		if len(mems) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		for i, m := range mems {
			source, _ := m.Metadata["source"].(string)
			if source != "" {
				source = " (" + source + ")"
			}
			text := strings.ReplaceAll(m.Text, "\n", " ")
			if len(text) > 160 {
				text = text[:160] + "..."
			}
			fmt.Printf("%2d. [%.3f]%s %s\n", i+1, m.Score, source, text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "k", 5, "number of results")
	searchCmd.Flags().BoolVar(&searchVector, "vector", false, "vector similarity only, skip keyword fusion")
	rootCmd.AddCommand(searchCmd)
}
