package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <files...>",
	Short: "Ingest documents into memory",
	Long:  "Extracts text from PDF, TXT, MD, DOCX, or XLSX files (glob patterns allowed), chunks it, and stores the chunks in the vector index.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var paths []string
		for _, arg := range args {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return eris.Wrapf(err, "bad pattern %q", arg)
			}
			if len(matches) == 0 {
				// Not a pattern; let ingest report the missing file.
				matches = []string{arg}
			}
			paths = append(paths, matches...)
		}

		totalChunks, failed := 0, 0
		for _, path := range paths {
			res, err := env.Memory.IngestFile(ctx, path)
			if err != nil {
				zap.L().Error("ingest failed", zap.String("file", path), zap.Error(err))
				fmt.Printf("  %s: FAILED (%v)\n", path, err)
				failed++
				continue
			}
			ocr := ""
			if res.UsedOCR {
				ocr = " (OCR)"
			}
			fmt.Printf("  %s: %d chunks, %d chars%s\n", res.File, res.Chunks, res.Characters, ocr)
			totalChunks += res.Chunks
		}

		fmt.Printf("\nIngested %d chunks from %d files", totalChunks, len(paths)-failed)
		if failed > 0 {
			fmt.Printf(" (%d failed)", failed)
		}
		fmt.Println()

		if failed == len(paths) {
			return eris.New("all files failed to ingest")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
