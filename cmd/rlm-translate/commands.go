// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to
// its handler in handlers.go.
package main

import (
	"time"

	"github.com/spf13/cobra"
)

// translateOptions collects the translate command flags. Overrides are
// applied onto the loaded configuration only for flags the user set.
type translateOptions struct {
	preset        string
	source        string
	target        string
	provider      string
	rootModel     string
	subModel      string
	strategy      string
	output        string
	glossaryPath  string
	workers       int
	maxRetries    int
	cache         bool
	cachePath     string
	llmVerify     bool
	checkSentence bool
	checkLength   bool
	quiet         bool
	verbose       bool
}

func buildTranslateCmd() *cobra.Command {
	var opts translateOptions

	cmd := &cobra.Command{
		Use:   "translate <file> [file...]",
		Short: "Translate one or more documents",
		Long: `Translate documents with the recursive chunk pipeline.

Each input file runs as an isolated session: the document is split into
chunks, every chunk is planned, translated with the shared glossary and
rolling summaries as context, verified against formatting and terminology
rules, and repaired when verification rejects it.

Input "-" reads the document from stdin. With --output unset the result is
written next to the input as <name>.<target>.<ext>; --output "-" prints to
stdout. Multiple inputs translate concurrently (see --workers) and ignore
--output.`,
		Example: `  # Paper into Korean with explicit models
  rlm-translate translate paper.txt --preset paper --target ko --root-model gpt-4o

  # Subtitles through a local LM Studio server
  rlm-translate translate episode.srt --provider lmstudio --preset subtitle

  # Batch novels, four at a time
  rlm-translate translate ch*.txt --preset novel --workers 4

  # Pipe mode
  cat notes.md | rlm-translate translate - --output -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "",
		"Translation preset (subtitle, patent, paper, novel, technical, general); auto-detected when empty")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "auto",
		"Source language code, or auto to detect")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "ko",
		"Target language code")
	cmd.Flags().StringVar(&opts.provider, "provider", "",
		"LLM provider (openai, anthropic, gemini, lmstudio)")
	cmd.Flags().StringVar(&opts.rootModel, "root-model", "",
		"Model for orchestration calls")
	cmd.Flags().StringVar(&opts.subModel, "sub-model", "",
		"Model for chunk translation calls")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "",
		"Chunk selection strategy (sequential, adaptive, priority)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "",
		"Output path; - for stdout (single input only)")
	cmd.Flags().StringVar(&opts.glossaryPath, "glossary", "",
		"JSON file of source→target terms enforced for the whole run")
	cmd.Flags().IntVar(&opts.workers, "workers", 2,
		"Concurrent documents when translating multiple files")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0,
		"Repair attempts per chunk before it is kept as failed")
	cmd.Flags().BoolVar(&opts.cache, "cache", false,
		"Reuse identical chunk translations from the local cache")
	cmd.Flags().StringVar(&opts.cachePath, "cache-path", "",
		"SQLite file backing the translation cache")
	cmd.Flags().BoolVar(&opts.llmVerify, "llm-verify", false,
		"Add an advisory LLM review pass after rule verification")
	cmd.Flags().BoolVar(&opts.checkSentence, "check-sentence", true,
		"Verify sentence counts between source and translation")
	cmd.Flags().BoolVar(&opts.checkLength, "check-length", true,
		"Verify translation length ratio against the source")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false,
		"Suppress progress output")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show per-phase steps and running cost")

	return cmd
}

func buildPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage translation presets",
		Long: `Inspect and export translation presets.

Six presets ship built in (subtitle, patent, paper, novel, technical,
general). User presets are JSON files in the presets directory; a file
named after a built-in shadows it.`,
	}
	cmd.AddCommand(buildPresetsListCmd(), buildPresetsShowCmd(), buildPresetsExportCmd())
	return cmd
}

func buildPresetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetsList(cmd)
		},
	}
}

func buildPresetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show a preset's parameters and prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetsShow(cmd, args[0])
		},
	}
}

func buildPresetsExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <key> <path>",
		Short: "Export a preset to a JSON or YAML file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetsExport(cmd, args[0], args[1], format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "",
		"Export format (json, yaml); inferred from the path extension when empty")
	return cmd
}

func buildModelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available on the configured provider",
		Long: `Connect to the configured provider and list its models.

The models currently selected for orchestration, chunk translation, and
verification are marked in the listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, provider)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "",
		"LLM provider to query instead of the configured default")
	return cmd
}

func buildCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the translation cache",
	}
	cmd.AddCommand(buildCacheStatsCmd(), buildCachePruneCmd())
	return cmd
}

func buildCacheStatsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry and hit counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd, path)
		},
	}
	cmd.Flags().StringVar(&path, "cache-path", "",
		"SQLite file backing the translation cache")
	return cmd
}

func buildCachePruneCmd() *cobra.Command {
	var (
		path   string
		maxAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cache entries not used recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(cmd, path, maxAge)
		},
	}
	cmd.Flags().StringVar(&path, "cache-path", "",
		"SQLite file backing the translation cache")
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour,
		"Entries unused for longer than this are deleted")
	return cmd
}
