package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

var noteTopic string

var noteCmd = &cobra.Command{
	Use:   "note <text>",
	Short: "Store an atomic note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		meta := map[string]any{"type": model.TypeNote}
		if noteTopic != "" {
			meta["topic"] = noteTopic
		}

		id, err := env.Memory.UpsertNote(ctx, args[0], meta)
		if err != nil {
			return err
		}

		fmt.Printf("Remembered (%s)\n", id)
		return nil
	},
}

func init() {
	noteCmd.Flags().StringVar(&noteTopic, "topic", "", "optional topic tag")
	rootCmd.AddCommand(noteCmd)
}
