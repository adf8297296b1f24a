// Package main provides the rlm-translate command line interface.
//
// rlm-translate drives the recursive translation engine over long
// documents: it chunks the input, translates chunk by chunk through the
// configured LLM provider, verifies every chunk, and repairs rejected ones
// before assembling the final document.
//
// # Basic Usage
//
// Translate a document into Korean:
//
//	rlm-translate translate paper.txt --target ko --preset paper
//
// Translate subtitles with a local LM Studio server:
//
//	rlm-translate translate episode.srt --provider lmstudio --preset subtitle
//
// Inspect presets and provider models:
//
//	rlm-translate presets list
//	rlm-translate models
//
// # Environment Variables
//
//   - RLM_PROVIDER: provider to use (openai, anthropic, gemini, lmstudio)
//   - OPENAI_API_KEY / ANTHROPIC_API_KEY / GEMINI_API_KEY: credentials
//   - RLM_ROOT_MODEL / RLM_SUB_MODEL: model routing
//   - RLM_PRESETS_DIR: directory for user preset files
//   - RLM_CACHE_ENABLED / RLM_CACHE_PATH: chunk translation cache
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"rlm-translate/internal/config"
	"rlm-translate/internal/logging"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// configPath is the persistent --config flag shared by every subcommand.
var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can execute the tree directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rlm-translate",
		Short: "Recursive LLM document translation",
		Long: `rlm-translate translates long documents with a staged LLM pipeline:
chunking, per-chunk translation with shared glossary context, rule-based
verification, and bounded repair.

Supported providers: OpenAI, Anthropic, Gemini, LM Studio (local)
Document presets: subtitle, patent, paper, novel, technical, general`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML configuration file (environment still applies on top)")

	rootCmd.AddCommand(
		buildTranslateCmd(),
		buildPresetsCmd(),
		buildModelsCmd(),
		buildCacheCmd(),
	)

	return rootCmd
}

// loadConfigLax builds the configuration without provider validation so
// commands can apply their flag overrides before validating.
func loadConfigLax() (*config.Config, error) {
	return config.LoadConfigLax(configPath)
}

// buildLogger constructs the root logger from the logging configuration.
// The returned closer releases the log file when one is configured.
func buildLogger(cfg *config.Config) (logging.Logger, func(), error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	jsonOutput := strings.EqualFold(cfg.Logging.Format, "json")

	out := io.Writer(os.Stderr)
	closer := func() {}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.Logging.File, err)
		}
		out = f
		closer = func() { _ = f.Close() }
	}

	log := logging.NewLoggerWith(level, out, jsonOutput).WithRunID(logging.NewRunID())
	return log, closer, nil
}
