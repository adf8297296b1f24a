// handlers.go implements the command handlers wired up in commands.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rlm-translate/internal/cache"
	"rlm-translate/internal/config"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/textutil"
	"rlm-translate/pkg/translate"
)

// =============================================================================
// translate
// =============================================================================

func runTranslate(cmd *cobra.Command, args []string, opts translateOptions) error {
	cfg, err := loadConfigLax()
	if err != nil {
		return err
	}
	applyTranslateOverrides(cfg, cmd, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	glossary, err := loadGlossaryFile(opts.glossaryPath)
	if err != nil {
		return err
	}

	t, err := translate.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	t.SetObserver(newConsoleObserver(os.Stderr, opts.quiet, opts.verbose))

	if cfg.Presets.Watch {
		if werr := t.Presets().Watch(cmd.Context()); werr != nil {
			log.Warn("preset watching unavailable", "error", werr.Error())
		}
	}

	req := translate.Request{
		SourceLang:           opts.source,
		TargetLang:           opts.target,
		Preset:               opts.preset,
		Glossary:             glossary,
		DisableSentenceCheck: !opts.checkSentence,
		DisableLengthCheck:   !opts.checkLength,
	}

	if len(args) == 1 {
		return translateSingle(cmd.Context(), t, args[0], opts, req)
	}
	return translateBatch(cmd.Context(), t, args, opts, req)
}

// applyTranslateOverrides lays the flags the user actually set over the
// loaded configuration, so config-file and environment values survive
// untouched flags.
func applyTranslateOverrides(cfg *config.Config, cmd *cobra.Command, opts translateOptions) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Providers.Default = opts.provider
	}
	if flags.Changed("root-model") {
		cfg.Engine.RootModel = opts.rootModel
	}
	if flags.Changed("sub-model") {
		cfg.Engine.SubModel = opts.subModel
	}
	if flags.Changed("strategy") {
		cfg.Engine.Strategy = opts.strategy
	}
	if flags.Changed("max-retries") {
		cfg.Engine.MaxRetries = opts.maxRetries
	}
	if flags.Changed("llm-verify") {
		cfg.Engine.LLMVerification = opts.llmVerify
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = opts.cache
	}
	if flags.Changed("cache-path") {
		cfg.Cache.Path = opts.cachePath
		cfg.Cache.Enabled = true
	}
}

func translateSingle(ctx context.Context, t *translate.Translator, input string, opts translateOptions, req translate.Request) error {
	var (
		res *translate.Result
		err error
	)
	if input == "-" {
		data, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			return fmt.Errorf("reading stdin: %w", rerr)
		}
		text, _, derr := textutil.DecodeBytes(data)
		if derr != nil {
			return fmt.Errorf("decoding stdin: %w", derr)
		}
		req.Text = text
		res, err = t.Translate(ctx, req)
	} else {
		res, err = t.TranslateFile(ctx, input, req)
	}
	if err != nil {
		return err
	}

	dest := opts.output
	if dest == "" {
		if input == "-" {
			dest = "-"
		} else {
			dest = derivedOutputPath(input, res.TargetLang)
		}
	}
	if err := writeOutput(dest, res.TranslatedText); err != nil {
		return err
	}

	printSummary(os.Stderr, res, dest, opts.quiet)
	if !res.Success {
		if len(res.ErrorChunks) > 0 {
			return fmt.Errorf("%d of %d chunks failed after repair", len(res.ErrorChunks), res.ChunksCount)
		}
		return fmt.Errorf("translation failed: %s", res.ErrorMessage)
	}
	return nil
}

func translateBatch(ctx context.Context, t *translate.Translator, inputs []string, opts translateOptions, req translate.Request) error {
	for _, input := range inputs {
		if input == "-" {
			return fmt.Errorf("stdin input cannot be combined with other files")
		}
	}
	if opts.output != "" {
		return fmt.Errorf("--output applies to a single input; batch outputs are derived per file")
	}

	results, err := t.TranslateFiles(ctx, inputs, req, opts.workers)
	if err != nil {
		return err
	}

	var failed int
	for _, fr := range results {
		switch {
		case fr.Err != nil:
			failed++
			errColor.Fprintf(os.Stderr, "FAIL %s: %v\n", fr.Path, fr.Err)
		case fr.Result == nil:
			failed++
			errColor.Fprintf(os.Stderr, "FAIL %s: no result\n", fr.Path)
		default:
			dest := derivedOutputPath(fr.Path, fr.Result.TargetLang)
			if werr := writeOutput(dest, fr.Result.TranslatedText); werr != nil {
				failed++
				errColor.Fprintf(os.Stderr, "FAIL %s: %v\n", fr.Path, werr)
				continue
			}
			if fr.Result.Success {
				okColor.Fprintf(os.Stderr, "OK   %s -> %s (%d chunks, $%.4f)\n",
					fr.Path, dest, fr.Result.ChunksCount, fr.Result.CostSummary.TotalCost)
			} else {
				failed++
				warnColor.Fprintf(os.Stderr, "PART %s -> %s (%d of %d chunks failed)\n",
					fr.Path, dest, len(fr.Result.ErrorChunks), fr.Result.ChunksCount)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents did not translate cleanly", failed, len(results))
	}
	if !opts.quiet {
		okColor.Fprintf(os.Stderr, "Translated %d documents\n", len(results))
	}
	return nil
}

// derivedOutputPath places the translation next to the input:
// dir/name.ext becomes dir/name.<target>.ext.
func derivedOutputPath(input, target string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "." + target + ext
}

func writeOutput(dest, text string) error {
	if dest == "-" {
		if _, err := io.WriteString(os.Stdout, text); err != nil {
			return err
		}
		if !strings.HasSuffix(text, "\n") {
			_, err := io.WriteString(os.Stdout, "\n")
			return err
		}
		return nil
	}
	if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// loadGlossaryFile reads a source→target term map from a JSON object file.
func loadGlossaryFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading glossary %s: %w", path, err)
	}
	glossary := map[string]string{}
	if err := json.Unmarshal(data, &glossary); err != nil {
		return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
	}
	return glossary, nil
}

func printSummary(out io.Writer, res *translate.Result, dest string, quiet bool) {
	if quiet {
		return
	}
	cs := res.CostSummary
	headerColor.Fprintln(out, "Translation complete")
	fmt.Fprintf(out, "  Preset:  %s\n", res.PresetUsed)
	fmt.Fprintf(out, "  Route:   %s → %s\n",
		textutil.LanguageName(res.SourceLang), textutil.LanguageName(res.TargetLang))
	fmt.Fprintf(out, "  Chunks:  %d\n", res.ChunksCount)
	fmt.Fprintf(out, "  Calls:   %d (%d root, %d sub, %d verifier)\n",
		cs.TotalCalls, cs.RootCalls, cs.SubCalls, cs.VerifierCalls)
	fmt.Fprintf(out, "  Tokens:  %d\n", cs.TotalTokens)
	if cs.TotalCost > 0 {
		fmt.Fprintf(out, "  Cost:    $%.4f\n", cs.TotalCost)
	}
	fmt.Fprintf(out, "  Elapsed: %.1fs\n", cs.ElapsedSeconds)
	if dest != "-" {
		fmt.Fprintf(out, "  Output:  %s\n", dest)
	}
	if len(res.ErrorChunks) > 0 {
		warnColor.Fprintf(out, "  %d chunk(s) kept original text after repair:\n", len(res.ErrorChunks))
		for _, ec := range res.ErrorChunks {
			warnColor.Fprintf(out, "    chunk %d [%s]: %s\n", ec.Index, ec.Kind, ec.Message)
		}
	}
}

// =============================================================================
// presets
// =============================================================================

// presetManager opens the preset manager for maintenance commands. These
// never call a provider, so configuration loads without validation.
func presetManager() (*preset.Manager, error) {
	cfg, err := loadConfigLax()
	if err != nil {
		return nil, err
	}
	return preset.NewManager(cfg.Presets.Dir, logging.NewNop())
}

func runPresetsList(cmd *cobra.Command) error {
	mgr, err := presetManager()
	if err != nil {
		return err
	}
	infos := mgr.ListInfo()

	headerColor.Printf("%-11s %-24s %-10s %s\n", "KEY", "NAME", "TYPE", "DESCRIPTION")
	custom := 0
	for _, info := range infos {
		marker := " "
		if !info.Builtin {
			marker = "*"
			custom++
		}
		fmt.Printf("%-11s %-24s %-10s %s%s\n",
			info.Key, info.Name, info.DocumentType, info.Description, marker)
	}
	if custom > 0 {
		fmt.Println("\n* user preset")
	}
	return nil
}

func runPresetsShow(cmd *cobra.Command, key string) error {
	mgr, err := presetManager()
	if err != nil {
		return err
	}
	p, err := mgr.Get(key)
	if err != nil {
		return err
	}

	headerColor.Printf("%s (%s)\n", p.Name, key)
	fmt.Printf("  Description:   %s\n", p.Description)
	fmt.Printf("  Document type: %s\n", p.DocumentType)
	fmt.Printf("  Version:       %d\n", p.Version)
	fmt.Printf("  Chunk size:    %d\n", p.ChunkSize)
	fmt.Printf("  Temperature:   %.2f\n", p.LLMParams.Temperature)
	fmt.Printf("  Max tokens:    %d\n", p.LLMParams.MaxTokens)
	fmt.Printf("  Top-p:         %.2f\n", p.LLMParams.TopP)
	fmt.Printf("  Formatting:    preserve=%v glossary=%v\n", p.PreserveFormatting, p.UseGlossary)
	if p.StyleGuide != "" {
		fmt.Printf("  Style guide:   %s\n", p.StyleGuide)
	}
	fmt.Printf("\nSystem prompt:\n%s\n", indent(p.SystemPrompt, "  "))
	if p.ContextInstructions != "" {
		fmt.Printf("\nContext instructions:\n%s\n", indent(p.ContextInstructions, "  "))
	}
	return nil
}

func runPresetsExport(cmd *cobra.Command, key, path, format string) error {
	mgr, err := presetManager()
	if err != nil {
		return err
	}
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}
	switch strings.ToLower(format) {
	case "json":
		err = mgr.ExportJSON(key, path)
	case "yaml", "yml":
		err = mgr.ExportYAML(key, path)
	default:
		return fmt.Errorf("unknown export format %q (want json or yaml)", format)
	}
	if err != nil {
		return err
	}
	okColor.Printf("Exported %s to %s\n", key, path)
	return nil
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// models
// =============================================================================

func runModels(cmd *cobra.Command, provider string) error {
	cfg, err := loadConfigLax()
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.Providers.Default = provider
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	gw, err := llm.NewGateway(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := gw.TestConnection(ctx); err != nil {
		return fmt.Errorf("provider %s unreachable: %w", gw.Provider(), err)
	}
	models, err := gw.ListModels(ctx)
	if err != nil {
		return err
	}

	roles := make(map[string][]string)
	for _, rc := range []struct {
		role llm.CallRole
		name string
	}{
		{llm.CallRoot, "root"},
		{llm.CallSub, "sub"},
		{llm.CallVerifier, "verifier"},
	} {
		if m := gw.ModelFor(rc.role); m != "" {
			roles[m] = append(roles[m], rc.name)
		}
	}

	headerColor.Printf("Models on %s (%d):\n", gw.Provider(), len(models))
	sort.Strings(models)
	for _, m := range models {
		if tags := roles[m]; len(tags) > 0 {
			okColor.Printf("  %s  [%s]\n", m, strings.Join(tags, ", "))
		} else {
			fmt.Printf("  %s\n", m)
		}
	}
	return nil
}

// =============================================================================
// cache
// =============================================================================

// openCacheStore opens the cache for maintenance. Path resolution prefers
// the flag, then configuration; the cache need not be enabled for runs to
// inspect or prune it.
func openCacheStore(path string) (*cache.Store, error) {
	cfg, err := loadConfigLax()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = cfg.Cache.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no cache path configured; set cache.path or --cache-path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no cache at %s", path)
	}
	return cache.Open(path, logging.NewNop())
}

func runCacheStats(cmd *cobra.Command, path string) error {
	store, err := openCacheStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	headerColor.Println("Translation cache")
	fmt.Printf("  Entries: %d\n", st.Entries)
	fmt.Printf("  Hits:    %d\n", st.Hits)
	return nil
}

func runCachePrune(cmd *cobra.Command, path string, maxAge time.Duration) error {
	store, err := openCacheStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Prune(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	okColor.Printf("Pruned %d entries older than %s\n", removed, maxAge)
	return nil
}
