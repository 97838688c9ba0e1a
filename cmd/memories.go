package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/store"
)

var (
	memoriesListSource string
	memoriesListLimit  int
	memoriesExportOut  string
	memoriesResetForce bool
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Manage stored memories",
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Store.ListChunks(ctx, store.ChunkFilter{
			Source: memoriesListSource,
			Limit:  memoriesListLimit,
		})
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No memories stored.")
			return nil
		}
		for _, r := range recs {
			text := strings.ReplaceAll(r.Text, "\n", " ")
			if len(text) > 100 {
				text = text[:100] + "..."
			}
			source, _ := r.Metadata["source"].(string)
			fmt.Printf("%s  %-20s  %s\n", r.MemoryID[:8], source, text)
		}
		fmt.Printf("\n%d memories\n", len(recs))
		return nil
	},
}

var memoriesDeleteCmd = &cobra.Command{
	Use:   "delete <ids...>",
	Short: "Delete memories by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Memory.DeleteByIDs(ctx, args)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d memories\n", n)
		return nil
	},
}

var memoriesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the chunk mirror as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Memory.Export(ctx, memoriesListSource)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal export")
		}

		if memoriesExportOut == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(memoriesExportOut, data, 0o644); err != nil {
			return eris.Wrap(err, "write export file")
		}
		fmt.Printf("Exported %d memories to %s\n", len(recs), memoriesExportOut)
		return nil
	},
}

var memoriesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the entire index and start fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !memoriesResetForce {
			return eris.New("reset deletes every stored memory; re-run with --force to confirm")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Memory.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Index reset.")
		return nil
	},
}

func init() {
	memoriesListCmd.Flags().StringVar(&memoriesListSource, "source", "", "filter by source file")
	memoriesListCmd.Flags().IntVar(&memoriesListLimit, "limit", 50, "maximum rows")
	memoriesExportCmd.Flags().StringVar(&memoriesListSource, "source", "", "filter by source file")
	memoriesExportCmd.Flags().StringVar(&memoriesExportOut, "out", "", "output file (default stdout)")
	memoriesResetCmd.Flags().BoolVar(&memoriesResetForce, "force", false, "confirm destructive reset")

	memoriesCmd.AddCommand(memoriesListCmd, memoriesDeleteCmd, memoriesExportCmd, memoriesResetCmd)
	rootCmd.AddCommand(memoriesCmd)
}
