package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index size and query analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		idx, err := env.Memory.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Index %s: %d vectors, dimension %d\n\n", idx.IndexName, idx.VectorCount, idx.Dimension)

		m, err := env.Recorder.Metrics(ctx, time.Duration(statsDays)*24*time.Hour)
		if err != nil {
			return err
		}
		if m.TotalQueries == 0 {
			fmt.Printf("No queries in the last %d days.\n", statsDays)
			return nil
		}

		fmt.Printf("Last %d days:\n", statsDays)
		fmt.Printf("  Queries:        %d (%d unique)\n", m.TotalQueries, m.UniqueQueries)
		fmt.Printf("  Recall rate:    %.1f%%\n", m.RecallRate)
		fmt.Printf("  Error rate:     %.1f%%\n", m.ErrorRate)
		fmt.Printf("  Latency:        avg %.0fms, p50 %.0fms, p95 %.0fms, p99 %.0fms\n",
			m.AvgLatencyMs, m.MedianLatencyMs, m.P95LatencyMs, m.P99LatencyMs)
		fmt.Printf("  Avg results:    %.1f\n", m.AvgResults)

		if len(m.Sources) > 0 {
			fmt.Println("  Answer sources:")
			sources := make([]string, 0, len(m.Sources))
			for s := range m.Sources {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Printf("    %-14s %d\n", s, m.Sources[s])
			}
		}
		if len(m.TopQueries) > 0 {
			fmt.Println("  Top queries:")
			for _, q := range m.TopQueries {
				fmt.Printf("    %3dx %s\n", q.Count, q.Query)
			}
		}
		if len(m.FailurePatterns) > 0 {
			fmt.Println("  Recall failures:")
			for _, q := range m.FailurePatterns {
				fmt.Printf("    %3dx %s\n", q.Count, q.Query)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "analytics window in days")
	rootCmd.AddCommand(statsCmd)
}
