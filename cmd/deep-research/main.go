// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the deep-research CLI. Each
// pipeline stage is exposed as a subcommand (plan, search, run) next to
// the store commands for querying past runs.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshintel/deep-research/internal/embedding"
	"github.com/meshintel/deep-research/internal/logger"
	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/internal/search"
	"github.com/meshintel/deep-research/internal/secrets"
	"github.com/meshintel/deep-research/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the deep-research CLI.
var rootCmd = &cobra.Command{
	Use:   "deep-research",
	Short: "Automated literature research pipeline",
	Long: `deep-research turns a research intent (topics and questions) into a set
of relevant academic documents with page-anchored evidence notes. The
pipeline plans search keywords, queries academic indexes, filters
candidates by relevance, downloads open-access PDFs, and extracts
quotations answering the research questions.

Each stage is also available standalone: plan derives keywords, search
queries the indexes, and run executes the full pipeline.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./deep-research.yaml or ~/.config/deep-research/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the research database and exports (default: research)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable log output")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deep-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "deep-research"))
		}
	}

	viper.SetEnvPrefix("DEEP_RESEARCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildConfig assembles the pipeline configuration: tuned defaults,
// overridden by config file and environment, with credentials filled
// from the secrets directory last.
func buildConfig() types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()

	if v := viper.GetString("anthropic_model"); v != "" {
		cfg.Provider.AnthropicModel = v
	}
	if v := viper.GetString("gemini_model"); v != "" {
		cfg.Provider.GeminiModel = v
	}
	if v := viper.GetString("embedding_model"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := viper.GetString("anthropic_api_key"); v != "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := viper.GetString("gemini_api_key"); v != "" {
		cfg.Provider.GeminiAPIKey = v
	}
	if v := viper.GetString("openai_api_key"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := viper.GetString("data_dir"); v != "" {
		cfg.Store.DataDir = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("data-dir"); v != "" {
		cfg.Store.DataDir = v
	}

	secrets.Apply(&cfg, loadedSecrets)
	return cfg
}

func newLogger() zerolog.Logger {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	pretty, _ := rootCmd.PersistentFlags().GetBool("pretty")
	return logger.New(logger.Config{Level: level, Pretty: pretty})
}

// newFallbackClient builds the provider chain from whichever API keys
// are configured.
func newFallbackClient(ctx context.Context, cfg types.PipelineConfig) (*provider.FallbackClient, error) {
	fc := &provider.FallbackClient{MaxRetries: cfg.Provider.MaxRetries}

	if cfg.Provider.AnthropicAPIKey != "" {
		fc.Primary = &provider.Anthropic{
			APIKey: cfg.Provider.AnthropicAPIKey,
			Model:  cfg.Provider.AnthropicModel,
		}
	}
	if cfg.Provider.GeminiAPIKey != "" {
		g, err := provider.NewGemini(ctx, cfg.Provider.GeminiAPIKey, cfg.Provider.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing Gemini provider: %w", err)
		}
		if fc.Primary == nil {
			fc.Primary = g
		} else {
			fc.Secondary = g
		}
	}
	if fc.Primary == nil {
		return nil, fmt.Errorf("no provider configured: set anthropic-api-key or gemini-api-key")
	}
	return fc, nil
}

// newAdapters builds the enabled search adapters.
func newAdapters(ctx context.Context, cfg types.PipelineConfig) ([]search.Adapter, error) {
	var adapters []search.Adapter
	if cfg.Search.EnableOpenAlex {
		adapters = append(adapters, &search.OpenAlexAdapter{Email: cfg.Search.OpenAlexEmail})
	}
	if cfg.Search.EnableSemanticScholar {
		adapters = append(adapters, &search.SemanticScholarAdapter{APIKey: cfg.Search.SemanticScholarAPIKey})
	}
	if cfg.Search.EnableGrounded && cfg.Provider.GeminiAPIKey != "" {
		g, err := search.NewGroundedAdapter(ctx, cfg.Provider.GeminiAPIKey, cfg.Provider.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing grounded adapter: %w", err)
		}
		adapters = append(adapters, g)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no search adapters enabled")
	}
	return adapters, nil
}

func newEmbedder(cfg types.PipelineConfig) (embedding.Embedder, error) {
	e, err := embedding.NewOpenAI(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	return &embedding.Cached{Inner: e, Cache: embedding.NewCache()}, nil
}

// parseIntent reads the --topic and --question flags into an intent.
func parseIntent(cmd *cobra.Command) (types.SearchIntent, error) {
	topics, _ := cmd.Flags().GetStringArray("topic")
	questions, _ := cmd.Flags().GetStringArray("question")

	intent := types.SearchIntent{Topics: topics, Questions: questions}
	if intent.IsEmpty() {
		return intent, fmt.Errorf("provide at least one --topic or --question")
	}
	return intent, nil
}

func intentFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("topic", nil, "research topic (repeatable)")
	cmd.Flags().StringArray("question", nil, "research question (repeatable)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
