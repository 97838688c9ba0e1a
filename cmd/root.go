package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cca",
	Short: "Cognitive Companion Agent - personal memory with RAG",
	Long:  "Stores notes and documents as embeddings in a hosted vector index and answers questions grounded in what it has remembered.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
