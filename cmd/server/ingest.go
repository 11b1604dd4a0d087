package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fissler.com/cooker-assistant/internal/config"
	"fissler.com/cooker-assistant/internal/ingest"
)

func NewIngestCommand() *cobra.Command {
	opts := ingest.Options{EmbedInterval: ingest.DefaultEmbedInterval}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the manual index from the PDF manuals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			if !cmd.Flags().Changed("manuals-dir") {
				opts.ManualsDir = cfg.ManualsDir
			}
			if !cmd.Flags().Changed("index-path") {
				opts.IndexPath = cfg.IndexPath
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			provider, closeProvider, err := newModelProvider(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize %s provider: %w", cfg.LLMProvider, err)
			}
			defer closeProvider()

			_, err = ingest.Run(ctx, provider, opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.ManualsDir, "manuals-dir", "", "Directory holding the PDF manuals (default from MANUALS_DIR)")
	cmd.Flags().StringVar(&opts.IndexPath, "index-path", "", "Where to write the index (default from INDEX_PATH)")
	cmd.Flags().DurationVar(&opts.EmbedInterval, "embed-interval", opts.EmbedInterval, "Minimum delay between embedding requests")
	return cmd
}
