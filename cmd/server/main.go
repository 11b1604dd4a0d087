package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fissler.com/cooker-assistant/internal/config"
	"fissler.com/cooker-assistant/internal/core"
)

var logLevel = "info"

var rootCmd = &cobra.Command{
	Use:   "cooker-assistant",
	Short: "Customer support assistant for Fissler pressure cookers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadConfig()

		level := config.AppConfig.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		parsed, err := log.ParseLevel(level)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(parsed)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// Millisecond timestamps help when following slow model calls.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewIngestCommand(),
	)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel,
		"Log level (trace,debug,info,warn,error), overrides LOG_LEVEL")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}

// modelProvider is the configured LLM backend.
type modelProvider interface {
	core.ChatModel
	core.Embedder
}

// newModelProvider builds the backend named by cfg.LLMProvider. The returned
// func releases its resources.
func newModelProvider(ctx context.Context, cfg config.Config) (modelProvider, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		m := core.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.EmbeddingModel)
		return m, func() {}, nil
	case config.ProviderGemini:
		m, err := core.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
