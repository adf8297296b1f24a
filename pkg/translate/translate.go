// Package translate is the embedding-facing entry point of the engine. A
// Translator owns the provider gateway, the preset manager, and the optional
// chunk cache, and routes each request to one of three pipelines: the
// subtitle path for SRT input, the direct path for short texts, and the full
// plan/translate/verify loop for long documents.
package translate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"rlm-translate/internal/cache"
	"rlm-translate/internal/chunking"
	"rlm-translate/internal/config"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/orchestrator"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/state"
	"rlm-translate/internal/textutil"
	"rlm-translate/internal/translator"
)

// DefaultTargetLang is used when a request does not name a target language.
const DefaultTargetLang = "ko"

// fallbackPreset is used when a requested preset cannot be resolved.
const fallbackPreset = "general"

// Translator runs translation sessions from a shared configuration. A single
// Translator is not safe for concurrent Translate calls; TranslateFiles runs
// each document in its own session instead.
type Translator struct {
	cfg      *config.Config
	gateway  *llm.Gateway
	presets  *preset.Manager
	store    *cache.Store
	observer orchestrator.Observer
	log      logging.Logger

	// newGateway builds the per-document gateway for batch runs so each
	// file gets an isolated cost tracker.
	newGateway func() (*llm.Gateway, error)
}

// New builds a Translator from configuration: provider gateway, preset
// manager, and the chunk cache when enabled.
func New(cfg *config.Config, log logging.Logger) (*Translator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logging.NewNop()
	}
	gw, err := llm.NewGateway(cfg, log)
	if err != nil {
		return nil, err
	}
	t, err := NewWithGateway(cfg, gw, log)
	if err != nil {
		return nil, err
	}
	t.newGateway = func() (*llm.Gateway, error) { return llm.NewGateway(cfg, log) }
	return t, nil
}

// NewWithGateway builds a Translator around an existing gateway. Batch runs
// share the given gateway instead of opening per-document ones.
func NewWithGateway(cfg *config.Config, gw *llm.Gateway, log logging.Logger) (*Translator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithComponent("translate")

	presets, err := preset.NewManager(cfg.Presets.Dir, log)
	if err != nil {
		return nil, err
	}

	t := &Translator{
		cfg:        cfg,
		gateway:    gw,
		presets:    presets,
		log:        log,
		newGateway: func() (*llm.Gateway, error) { return gw, nil },
	}
	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Path, log)
		if err != nil {
			log.Warn("translation cache unavailable", "path", cfg.Cache.Path, "error", err)
		} else {
			t.store = store
		}
	}
	return t, nil
}

// SetObserver attaches a progress observer for subsequent sessions.
func (t *Translator) SetObserver(obs orchestrator.Observer) {
	t.observer = obs
}

// Presets exposes the preset manager, mainly for CLI listing and export.
func (t *Translator) Presets() *preset.Manager {
	return t.presets
}

// Gateway exposes the provider gateway, mainly for CLI model listing.
func (t *Translator) Gateway() *llm.Gateway {
	return t.gateway
}

// Close releases the chunk cache. The Translator must not be used afterwards.
func (t *Translator) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}

// Request describes one translation job.
type Request struct {
	// Text is the source document.
	Text string

	// SourceLang is a two-letter code; empty or "auto" detects from the text.
	SourceLang string

	// TargetLang defaults to Korean when empty.
	TargetLang string

	// Preset names the translation preset. Empty selects by sniffing the
	// content; unknown keys fall back to general.
	Preset string

	// Glossary entries are installed as hard terms before the run.
	Glossary map[string]string

	// Style overrides the session style guide.
	Style *state.StyleGuide

	// DisableSentenceCheck and DisableLengthCheck turn off the
	// corresponding verification passes, which default to on.
	DisableSentenceCheck bool
	DisableLengthCheck   bool
}

// Result is the final outcome of one session.
type Result struct {
	Success        bool               `json:"success"`
	TranslatedText string             `json:"translated_text"`
	SourceLang     string             `json:"source_lang"`
	TargetLang     string             `json:"target_lang"`
	ChunksCount    int                `json:"chunks_count"`
	Glossary       map[string]string  `json:"glossary"`
	CostSummary    llm.CostSummary    `json:"cost_summary"`
	PresetUsed     string             `json:"preset_used"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	ErrorChunks    []state.ChunkError `json:"error_chunks,omitempty"`
	Summaries      []string           `json:"summaries,omitempty"`
}

// Translate runs one session and always returns a result; the error is
// non-nil only when the run was aborted (cancellation, configuration),
// in which case the result may be partial.
func (t *Translator) Translate(ctx context.Context, req Request) (*Result, error) {
	t.gateway.ResetCosts()

	text := textutil.CleanText(req.Text)

	source := req.SourceLang
	if source == "" || source == "auto" {
		source = textutil.DetectLanguage(text)
		t.progress(fmt.Sprintf("Detected language: %s", textutil.LanguageName(source)), 0)
	}
	target := req.TargetLang
	if target == "" {
		target = DefaultTargetLang
	}

	key, pre := t.resolvePreset(req.Preset, text)
	t.progress(fmt.Sprintf("[%s] %s → %s", pre.Name, textutil.LanguageName(source), textutil.LanguageName(target)), 0)
	t.log.Info("translation session started",
		"preset", key, "source", source, "target", target, "bytes", len(text))

	if strings.TrimSpace(text) == "" {
		return &Result{
			Success:    true,
			SourceLang: source,
			TargetLang: target,
			Glossary:   map[string]string{},
			PresetUsed: key,
		}, nil
	}

	if textutil.IsSRT(text) && pre.DocumentType == string(state.PresetSubtitle) {
		return t.translateSRT(ctx, text, source, target, key, pre, req)
	}
	if utf8.RuneCountInString(text) <= t.directThreshold(pre) {
		return t.translateDirect(ctx, text, source, target, key, pre, req)
	}
	return t.translateDocument(ctx, text, source, target, key, pre, req)
}

// translateDirect handles short inputs with a single sub-translator call and
// no verification loop.
func (t *Translator) translateDirect(ctx context.Context, text, source, target, key string, pre *preset.Preset, req Request) (*Result, error) {
	t.progress("Using direct translation for short text", 0.1)

	base := &Result{
		SourceLang: source,
		TargetLang: target,
		Glossary:   map[string]string{},
		PresetUsed: key,
	}

	if t.store != nil {
		cached, ok, err := t.store.Get(ctx, t.cacheKey(pre, source, target, text))
		if err != nil {
			t.log.Warn("cache lookup failed", "error", err)
		} else if ok {
			t.progress("Translation complete", 1)
			base.Success = true
			base.TranslatedText = cached
			base.ChunksCount = 1
			base.CostSummary = llm.CostSummary{SubCalls: 1, TotalCalls: 1}
			return base, nil
		}
	}

	st := state.New(t.presetType(pre))
	if req.Style != nil {
		st.Style = *req.Style
	}
	for src, tgt := range req.Glossary {
		st.AddHardTerm(src, tgt)
	}

	sub := translator.New(t.gateway, pre, target, t.log)
	res, err := sub.Translate(ctx, text, 0, st)
	if err != nil {
		base.CostSummary = t.gateway.Costs()
		base.ErrorMessage = err.Error()
		if cerr := ctx.Err(); cerr != nil {
			return base, cerr
		}
		return base, nil
	}

	t.putCache(ctx, pre, source, target, text, res.Translation)
	t.progress("Translation complete", 1)

	base.Success = true
	base.TranslatedText = res.Translation
	base.ChunksCount = 1
	base.CostSummary = t.gateway.Costs()
	return base, nil
}

// translateDocument runs the full orchestration loop over paragraph or
// patent-claim chunks.
func (t *Translator) translateDocument(ctx context.Context, text, source, target, key string, pre *preset.Preset, req Request) (*Result, error) {
	chunker := chunking.NewChunker(pre.ChunkSize, 0)
	chunker.OnWarning(func(message string) {
		t.progress(message, 0)
		t.log.Warn("chunking warning", "message", message)
	})

	var chunks []state.Chunk
	switch {
	case pre.DocumentType == string(state.PresetPatent):
		chunks = chunker.SplitPatent(text)
	case chunking.IsMarkdown(text):
		chunks = chunker.SplitMarkdownSections(text)
	default:
		chunks = chunker.SplitParagraphs(text)
	}
	t.progress(fmt.Sprintf("Split into %d chunks", len(chunks)), 0.05)

	orch, err := orchestrator.New(orchestrator.Config{
		Gateway:         t.gateway,
		Preset:          pre,
		PresetType:      t.presetType(pre),
		SourceLang:      source,
		TargetLang:      target,
		Strategy:        state.Strategy(t.cfg.Engine.Strategy),
		MaxRetries:      t.cfg.Engine.MaxRetries,
		CheckSentence:   !req.DisableSentenceCheck,
		CheckLength:     !req.DisableLengthCheck,
		LLMVerification: t.cfg.Engine.LLMVerification,
		Style:           req.Style,
		Cache:           t.store,
		Observer:        t.observer,
		Logger:          t.log,
	})
	if err != nil {
		return nil, err
	}
	orch.SetGlossary(req.Glossary)
	orch.SetChunks(chunks)

	run, runErr := orch.Run(ctx)
	st := orch.State()

	result := &Result{
		Success:        run.Success,
		TranslatedText: joinTranslations(st.TranslationHistory),
		SourceLang:     source,
		TargetLang:     target,
		ChunksCount:    run.TotalChunks,
		Glossary:       st.ExportGlossary(),
		CostSummary:    t.costSummary(st),
		PresetUsed:     key,
		ErrorChunks:    append([]state.ChunkError(nil), st.Quality.ErrorChunks...),
		Summaries:      append([]string(nil), st.HistorySummaries...),
	}
	if run.ErrorChunks > 0 {
		result.ErrorMessage = fmt.Sprintf("%d of %d chunks failed translation", run.ErrorChunks, run.TotalChunks)
	}
	if runErr != nil {
		result.Success = false
		result.ErrorMessage = runErr.Error()
		return result, runErr
	}
	return result, nil
}

// resolvePreset maps a request key to a loaded preset. An empty key selects
// by content, an unknown key falls back to general.
func (t *Translator) resolvePreset(key, text string) (string, *preset.Preset) {
	if key == "" {
		detected := chunking.NewChunker(0, 0).DetectContentType(text)
		key = string(detected)
		t.log.Debug("preset selected by content", "preset", key)
	}
	if t.presets != nil {
		if p, err := t.presets.Get(key); err == nil {
			return key, p
		}
	}
	if p, ok := preset.BuiltinPresets()[key]; ok {
		return key, p
	}
	t.log.Warn("unknown preset requested", "preset", key, "using", fallbackPreset)
	return fallbackPreset, preset.BuiltinPresets()[fallbackPreset]
}

func (t *Translator) presetType(pre *preset.Preset) state.PresetType {
	pt, err := state.ParsePresetType(pre.DocumentType)
	if err != nil {
		return state.PresetGeneral
	}
	return pt
}

// directThreshold is the rune count at or below which the direct path is
// taken. Configured explicitly, with the preset chunk size as fallback.
func (t *Translator) directThreshold(pre *preset.Preset) int {
	if t.cfg.Engine.ShortTextThreshold > 0 {
		return t.cfg.Engine.ShortTextThreshold
	}
	return pre.ChunkSize
}

// costSummary reconciles the gateway tracker with session counters so cache
// hits show up as zero-cost sub calls.
func (t *Translator) costSummary(st *state.TranslationState) llm.CostSummary {
	sum := t.gateway.Costs()
	sum.SubCalls = st.Costs.SubCalls
	sum.TotalCalls = sum.RootCalls + sum.SubCalls + sum.VerifierCalls
	return sum
}

func (t *Translator) cacheKey(pre *preset.Preset, source, target, chunkText string) cache.Key {
	return cache.Key{
		SourceLang: source,
		TargetLang: target,
		Model:      t.gateway.ModelFor(llm.CallSub),
		Preset:     pre.Name,
		ChunkText:  chunkText,
	}
}

func (t *Translator) putCache(ctx context.Context, pre *preset.Preset, source, target, chunkText, translation string) {
	if t.store == nil || strings.TrimSpace(translation) == "" {
		return
	}
	if err := t.store.Put(ctx, t.cacheKey(pre, source, target, chunkText), translation); err != nil {
		t.log.Warn("cache write failed", "error", err)
	}
}

func (t *Translator) progress(message string, fraction float64) {
	if t.observer != nil {
		t.observer.Progress(message, fraction)
	}
}

// joinTranslations assembles the final document from the index-ordered
// chunk history. Chunk texts were trimmed during splitting, so the paragraph
// separator is restored between entries; chunks that failed without any text
// are skipped.
func joinTranslations(history []string) string {
	parts := make([]string, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h) == "" {
			continue
		}
		parts = append(parts, h)
	}
	return strings.Join(parts, "\n\n")
}
