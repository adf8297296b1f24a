// Package orchestrator drives the chunk-by-chunk translation loop: plan,
// retrieve, translate, verify, repair, commit. It owns the session state,
// selects chunks according to the configured strategy, dispatches repairs
// within a bounded retry budget, and keeps cost accounting current. One
// orchestrator serves one document and is not safe for concurrent use.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rlm-translate/internal/cache"
	"rlm-translate/internal/contextpkg"
	rlmerrors "rlm-translate/internal/errors"
	"rlm-translate/internal/glossary"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/state"
	"rlm-translate/internal/translator"
	"rlm-translate/internal/verify"
)

// DefaultMaxRetries bounds repair attempts per chunk when the config does
// not say otherwise.
const DefaultMaxRetries = 2

// extraRounds is the headroom added to the round budget beyond one round
// per chunk.
const extraRounds = 10

// retryKindProvider tags retry accounting for transport failures, which
// reach the repair path as empty translations.
const retryKindProvider = "provider"

// Config assembles one orchestrated translation session.
type Config struct {
	Gateway *llm.Gateway
	Preset  *preset.Preset

	// PresetType selects the preset-specific verification rules. Empty
	// falls back to the general rules.
	PresetType state.PresetType

	SourceLang string
	TargetLang string

	// Strategy orders chunk selection. Empty means sequential.
	Strategy state.Strategy

	// MaxRetries bounds repair attempts per chunk. Zero disables
	// repairs entirely; negative selects DefaultMaxRetries.
	MaxRetries int

	CheckSentence bool
	CheckLength   bool

	// LLMVerification enables the model review pass when rule checks
	// fail.
	LLMVerification bool

	// GlossaryRule resolves term conflicts during candidate promotion.
	GlossaryRule glossary.Rule

	// Style carries tone and forbidden-content rules into verification.
	Style *state.StyleGuide

	// Cache short-circuits repeat chunks when set.
	Cache *cache.Store

	Observer Observer
	Logger   logging.Logger
}

// Orchestrator runs the root loop over a chunked document.
type Orchestrator struct {
	gateway  *llm.Gateway
	sub      *translator.SubTranslator
	verifier *verify.Verifier
	glossary *glossary.Manager
	state    *state.TranslationState
	builder  *contextpkg.Builder
	cache    *cache.Store

	preset     *preset.Preset
	presetType state.PresetType
	sourceLang string
	targetLang string
	strategy   state.Strategy
	maxRetries int
	opts       verify.Options

	observer Observer
	log      logging.Logger

	lastCommitted string
	cacheHits     int
	rounds        int
	started       time.Time
}

// New wires a session from its parts. The state starts empty; seed it with
// SetChunks and optionally SetGlossary before calling Run.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Gateway == nil {
		return nil, rlmerrors.NewConfigurationError("gateway", "orchestrator requires a provider gateway")
	}
	if cfg.Preset == nil {
		return nil, rlmerrors.NewConfigurationError("preset", "orchestrator requires a preset")
	}
	presetType := cfg.PresetType
	if presetType == "" {
		presetType = state.PresetGeneral
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = state.StrategySequential
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithComponent("orchestrator")

	st := state.New(presetType)
	if cfg.Preset.DocumentType != "" {
		st.DocumentType = cfg.Preset.DocumentType
	}
	if cfg.Style != nil {
		st.Style = *cfg.Style
	}

	v := verify.New(log)
	if cfg.LLMVerification {
		v.EnableLLMPass(cfg.Gateway)
	}

	return &Orchestrator{
		gateway:    cfg.Gateway,
		sub:        translator.New(cfg.Gateway, cfg.Preset, cfg.TargetLang, log),
		verifier:   v,
		glossary:   glossary.NewManager(cfg.GlossaryRule, log),
		state:      st,
		builder:    contextpkg.NewBuilder(0),
		cache:      cfg.Cache,
		preset:     cfg.Preset,
		presetType: presetType,
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		strategy:   strategy,
		maxRetries: maxRetries,
		opts:       verify.Options{CheckSentence: cfg.CheckSentence, CheckLength: cfg.CheckLength},
		observer:   obs,
		log:        log,
	}, nil
}

// SetChunks seeds the work plan. It must be called before Run.
func (o *Orchestrator) SetChunks(chunks []state.Chunk) {
	o.state.SeedPlan(chunks, o.strategy)
	o.log.Info("plan seeded", "chunks", len(chunks), "strategy", string(o.strategy))
}

// SetGlossary installs user-supplied mappings as hard terms that the
// sub-translator must use verbatim.
func (o *Orchestrator) SetGlossary(terms map[string]string) {
	for src, tgt := range terms {
		o.state.AddHardTerm(src, tgt)
	}
	if len(terms) > 0 {
		o.log.Info("hard glossary installed", "terms", len(terms))
	}
}

// State exposes the session state for result assembly and inspection.
func (o *Orchestrator) State() *state.TranslationState {
	return o.state
}

// RoundResult reports the outcome of one loop round.
type RoundResult struct {
	// Completed marks the sentinel round that found no work left.
	Completed bool

	ChunkIndex  int
	Translation string
	Status      state.ChunkStatus
	Repairs     int
	FromCache   bool
	Duration    time.Duration

	// Findings lists the hard errors still standing when Status is
	// FAILED.
	Findings []string
}

// RunResult summarizes a finished run. Per-chunk error details live in the
// state's quality flags.
type RunResult struct {
	Success          bool
	Completed        bool
	TotalChunks      int
	SuccessChunks    int
	ErrorChunks      int
	Rounds           int
	TotalDuration    time.Duration
	AvgChunkDuration time.Duration
	TotalCalls       int
	TotalCost        float64
}

// Progress is a point-in-time completion snapshot.
type Progress struct {
	TotalChunks     int     `json:"total_chunks"`
	CompletedChunks int     `json:"completed_chunks"`
	FailedChunks    int     `json:"failed_chunks"`
	Fraction        float64 `json:"fraction"`
}

// Progress reports how far the run has advanced.
func (o *Orchestrator) Progress() Progress {
	total := o.state.TotalChunks
	done := total - len(o.state.Plan.Remaining())
	return Progress{
		TotalChunks:     total,
		CompletedChunks: o.state.Quality.CompletedChunks,
		FailedChunks:    o.state.Quality.FailedChunks,
		Fraction:        fraction(done, total),
	}
}

// Run drives rounds until every chunk is committed or the round budget
// trips. No chunk failure aborts the run; a cancelled context does, with
// partial progress left in State.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	o.started = time.Now()
	total := o.state.TotalChunks
	maxRounds := total + extraRounds

	o.log.Info("translation run starting",
		"chunks", total,
		"strategy", string(o.strategy),
		"preset", o.preset.Name,
		"max_retries", o.maxRetries)
	o.observer.Progress("Starting translation", 0)

	completed := false
	for round := 0; round < maxRounds; round++ {
		res, err := o.ExecuteRound(ctx)
		if err != nil {
			return o.buildResult(completed), err
		}
		if res.Completed {
			completed = true
			break
		}
		done := total - len(o.state.Plan.Remaining())
		o.observer.Progress(fmt.Sprintf("Translating chunk %d/%d", done, total), fraction(done, total))
	}
	if !completed {
		o.log.Warn("round budget exhausted with chunks remaining",
			"remaining", len(o.state.Plan.Remaining()))
	}

	result := o.buildResult(completed)
	o.log.Info("translation run finished",
		"success_chunks", result.SuccessChunks,
		"error_chunks", result.ErrorChunks,
		"rounds", result.Rounds,
		"total_cost", result.TotalCost)
	o.observer.Progress("Translation complete", 1)
	return result, nil
}

// ExecuteRound performs one pass of the loop: select a chunk, translate it,
// verify the result, repair within the retry budget, and commit. Exactly
// one chunk is committed per non-sentinel round, successfully or not.
func (o *Orchestrator) ExecuteRound(ctx context.Context) (*RoundResult, error) {
	start := time.Now()
	o.rounds++

	// PLAN
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observer.Step(PhasePlan)
	idx := o.selectNextChunk()
	if idx < 0 {
		o.log.Debug("no chunks remaining", "rounds", o.rounds)
		return &RoundResult{Completed: true, ChunkIndex: -1, Duration: time.Since(start)}, nil
	}
	total := o.state.TotalChunks
	o.log.Debug("round planned", "round", o.rounds, "chunk", idx)

	// RETRIEVE
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observer.Step(PhaseRetrieve)
	chunkText, err := o.state.ChunkText(idx)
	if err != nil {
		return nil, err
	}

	// TRANSLATE
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observer.Step(PhaseTranslate)
	o.observer.Progress(fmt.Sprintf("Translating chunk %d/%d", idx+1, total), fraction(total-len(o.state.Plan.Remaining()), total))
	translation, candidates, fromCache, provErr := o.translateChunk(ctx, chunkText, idx)
	if provErr != nil {
		// A transport failure leaves an empty translation, which the
		// verifier flags, so the repair loop below re-attempts it
		// within the same budget as any quality failure.
		o.log.Warn("sub translation failed", "chunk", idx, "error", provErr)
		o.state.IncrementRetry(retryKindProvider)
	}

	// VERIFY
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observer.Step(PhaseVerify)
	pkg := o.builder.Build(o.state.Snapshot(), chunkText, idx, nil)
	vres := o.verifier.Verify(ctx, translation, chunkText, pkg, o.presetType, o.opts)

	// REPAIR
	repairs := 0
	lastFailure := provErr
	for !vres.Valid && repairs < o.maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.observer.Step(PhaseRepair)
		repairs++
		action := o.chooseRepair(vres, chunkText, repairs)
		msg := repairMessage(action, vres)
		o.observer.Repair(action, msg)
		o.state.IncrementRetry(string(dominantKind(vres)))
		o.log.Info("repairing chunk",
			"chunk", idx,
			"attempt", repairs,
			"action", string(action),
			"reason", firstFinding(vres))

		newText, newCands, rerr := o.dispatchRepair(ctx, action, vres, chunkText, translation, idx)
		if rerr != nil {
			// Keep the previous translation and burn the attempt.
			o.log.Warn("repair attempt failed", "chunk", idx, "action", string(action), "error", rerr)
			lastFailure = rerr
		} else {
			translation = newText
			if len(newCands) > 0 {
				candidates = newCands
			}
		}
		pkg = o.builder.Build(o.state.Snapshot(), chunkText, idx, nil)
		vres = o.verifier.Verify(ctx, translation, chunkText, pkg, o.presetType, o.opts)
	}

	status := state.StatusFresh
	switch {
	case !vres.Valid:
		status = state.StatusFailed
	case repairs > 0:
		status = state.StatusRepaired
	}

	// COMMIT
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observer.Step(PhaseCommit)
	if err := o.state.UpdateChunk(idx, translation); err != nil {
		return nil, err
	}
	if err := o.state.MarkCommitted(idx, status == state.StatusFailed); err != nil {
		return nil, err
	}

	round := &RoundResult{
		ChunkIndex:  idx,
		Translation: translation,
		Status:      status,
		Repairs:     repairs,
		FromCache:   fromCache,
	}
	if status == state.StatusFailed {
		kind, detail := failureDetail(vres, lastFailure, translation)
		o.state.RecordError(idx, kind, detail)
		o.state.AddHistorySummary(fmt.Sprintf("Chunk %d/%d failed: %s", idx+1, total, detail))
		round.Findings = findingMessages(vres)
		o.log.Warn("chunk failed", "chunk", idx, "kind", kind, "detail", detail)
	} else {
		o.state.AddHistorySummary(fmt.Sprintf("Chunk %d/%d completed successfully", idx+1, total))
		o.lastCommitted = translation
		if len(candidates) > 0 {
			o.state.ProposeTerms(candidates)
			o.glossary.PromoteCandidates(o.state)
		}
		o.putCache(ctx, chunkText, translation)
	}

	o.syncCosts(time.Since(start))
	o.observer.QualityFlags([]state.ChunkStatus{status})
	o.observer.CostStats(o.state.Costs.TotalCost, o.state.Costs.TotalCalls(), o.state.Quality.CompletedChunks)

	round.Duration = time.Since(start)
	return round, nil
}

// translateChunk resolves the chunk through the cache when one is
// configured and falls back to the sub-translator.
func (o *Orchestrator) translateChunk(ctx context.Context, chunkText string, idx int) (string, map[string]string, bool, error) {
	if o.cache != nil {
		key := o.cacheKey(chunkText)
		cached, ok, err := o.cache.Get(ctx, key)
		if err != nil {
			o.log.Warn("cache lookup failed", "chunk", idx, "error", err)
		} else if ok {
			o.cacheHits++
			o.log.Debug("cache hit", "chunk", idx)
			return cached, nil, true, nil
		}
	}
	res, err := o.sub.Translate(ctx, chunkText, idx, o.state)
	if err != nil {
		return "", nil, false, err
	}
	return res.Translation, res.TermCandidates, false, nil
}

// chooseRepair starts from the verifier's recommendation and escalates to
// the engine-level actions the verifier cannot see: oversize chunks are
// split, a known candidate conflict triggers a glossary pass, and a second
// re-translation refreshes the rolling context first.
func (o *Orchestrator) chooseRepair(vres *verify.Result, chunkText string, attempt int) state.RepairType {
	action := vres.RepairType
	if action != state.RepairReTranslate {
		return action
	}
	if o.oversize(chunkText) && hasKind(vres, verify.KindCompletion) {
		return state.RepairSplitChunk
	}
	if o.hasCandidateConflict() {
		return state.RepairGlossaryUpdate
	}
	if attempt > 1 {
		return state.RepairContextAdjust
	}
	return state.RepairReTranslate
}

func (o *Orchestrator) dispatchRepair(ctx context.Context, action state.RepairType, vres *verify.Result, chunkText, translation string, idx int) (string, map[string]string, error) {
	switch action {
	case state.RepairTemplateReinforce:
		res, err := o.sub.Reinforce(ctx, translation, idx, o.state, findingMessages(vres))
		if err != nil {
			return "", nil, err
		}
		return res.Translation, res.TermCandidates, nil
	case state.RepairGlossaryUpdate:
		promoted := o.glossary.PromoteCandidates(o.state)
		o.log.Debug("candidates promoted before re-translation", "chunk", idx, "promoted", promoted)
		return o.retranslate(ctx, chunkText, idx)
	case state.RepairSplitChunk:
		return o.splitAndRetranslate(ctx, chunkText, idx)
	case state.RepairContextAdjust:
		o.trimContext()
		return o.retranslate(ctx, chunkText, idx)
	default:
		return o.retranslate(ctx, chunkText, idx)
	}
}

func (o *Orchestrator) retranslate(ctx context.Context, chunkText string, idx int) (string, map[string]string, error) {
	res, err := o.sub.Translate(ctx, chunkText, idx, o.state)
	if err != nil {
		return "", nil, err
	}
	return res.Translation, res.TermCandidates, nil
}

// splitAndRetranslate halves an oversize chunk at the sentence boundary
// nearest its midpoint and translates the halves in order.
func (o *Orchestrator) splitAndRetranslate(ctx context.Context, chunkText string, idx int) (string, map[string]string, error) {
	first, second := splitAtSentence(chunkText)
	if second == "" {
		return o.retranslate(ctx, chunkText, idx)
	}
	o.log.Debug("splitting oversize chunk", "chunk", idx, "first_bytes", len(first), "second_bytes", len(second))
	resA, err := o.sub.Translate(ctx, first, idx, o.state)
	if err != nil {
		return "", nil, err
	}
	resB, err := o.sub.Translate(ctx, second, idx, o.state)
	if err != nil {
		return "", nil, err
	}
	merged := make(map[string]string, len(resA.TermCandidates)+len(resB.TermCandidates))
	for k, v := range resA.TermCandidates {
		merged[k] = v
	}
	for k, v := range resB.TermCandidates {
		merged[k] = v
	}
	joined := strings.TrimSpace(resA.Translation) + "\n" + strings.TrimSpace(resB.Translation)
	return joined, merged, nil
}

// trimContext drops all but the newest rolling summary so a re-translation
// is not steered by stale context.
func (o *Orchestrator) trimContext() {
	if n := len(o.state.HistorySummaries); n > 1 {
		o.state.HistorySummaries = o.state.HistorySummaries[n-1:]
	}
}

func (o *Orchestrator) oversize(chunkText string) bool {
	if o.preset.ChunkSize <= 0 {
		return false
	}
	return utf8.RuneCountInString(chunkText) > 2*o.preset.ChunkSize
}

func (o *Orchestrator) hasCandidateConflict() bool {
	for src, tgt := range o.state.TermCandidates {
		if _, conflict := o.state.CheckTermConflict(src, tgt); conflict {
			return true
		}
	}
	return false
}

func (o *Orchestrator) cacheKey(chunkText string) cache.Key {
	return cache.Key{
		SourceLang: o.sourceLang,
		TargetLang: o.targetLang,
		Model:      o.gateway.ModelFor(llm.CallSub),
		Preset:     o.preset.Name,
		ChunkText:  chunkText,
	}
}

func (o *Orchestrator) putCache(ctx context.Context, chunkText, translation string) {
	if o.cache == nil || strings.TrimSpace(translation) == "" {
		return
	}
	if err := o.cache.Put(ctx, o.cacheKey(chunkText), translation); err != nil {
		o.log.Warn("cache write failed", "error", err)
	}
}

// syncCosts mirrors the gateway tracker into the session state, counting
// cache hits as zero-cost sub calls.
func (o *Orchestrator) syncCosts(roundTime time.Duration) {
	sum := o.gateway.Costs()
	o.state.Costs.RootCalls = sum.RootCalls
	o.state.Costs.SubCalls = sum.SubCalls + o.cacheHits
	o.state.Costs.VerifierCalls = sum.VerifierCalls
	o.state.Costs.TotalCost = sum.TotalCost
	o.state.Costs.TotalTokens = sum.TotalTokens
	o.state.Costs.TotalTime += roundTime
}

func (o *Orchestrator) buildResult(completed bool) *RunResult {
	q := o.state.Quality
	res := &RunResult{
		Success:       completed && q.FailedChunks == 0,
		Completed:     completed,
		TotalChunks:   o.state.TotalChunks,
		SuccessChunks: q.CompletedChunks,
		ErrorChunks:   q.FailedChunks,
		Rounds:        o.rounds,
		TotalDuration: time.Since(o.started),
		TotalCalls:    o.state.Costs.TotalCalls(),
		TotalCost:     o.state.Costs.TotalCost,
	}
	if q.CompletedChunks > 0 {
		res.AvgChunkDuration = res.TotalDuration / time.Duration(q.CompletedChunks)
	}
	return res
}

func repairMessage(action state.RepairType, vres *verify.Result) string {
	switch action {
	case state.RepairSplitChunk:
		return "Split oversize chunk and re-translate"
	case state.RepairGlossaryUpdate:
		return "Resolve term conflicts and re-translate"
	case state.RepairContextAdjust:
		return "Refresh rolling context and re-translate"
	}
	if vres.RepairDescription != "" {
		return vres.RepairDescription
	}
	return "Re-translate the chunk"
}

func failureDetail(vres *verify.Result, lastFailure error, translation string) (string, string) {
	if lastFailure != nil && strings.TrimSpace(translation) == "" {
		return retryKindProvider, lastFailure.Error()
	}
	if len(vres.Errors) > 0 {
		return string(vres.Errors[0].Kind), vres.Errors[0].Message
	}
	return "unknown", "chunk failed without a recorded finding"
}

func dominantKind(vres *verify.Result) verify.Kind {
	if len(vres.Errors) > 0 {
		return vres.Errors[0].Kind
	}
	return verify.KindCompletion
}

func firstFinding(vres *verify.Result) string {
	if len(vres.Errors) > 0 {
		return vres.Errors[0].Message
	}
	return ""
}

func hasKind(vres *verify.Result, kind verify.Kind) bool {
	for _, e := range vres.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func findingMessages(vres *verify.Result) []string {
	msgs := make([]string, 0, len(vres.Errors))
	for _, e := range vres.Errors {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// splitAtSentence cuts s at the sentence boundary nearest its midpoint.
// The second half is empty when no usable boundary exists.
func splitAtSentence(s string) (first, second string) {
	mid := len(s) / 2
	best := -1
	for i, r := range s {
		switch r {
		case '.', '!', '?', '。', '！', '？', '\n':
			end := i + utf8.RuneLen(r)
			if end >= len(s) {
				continue
			}
			if best < 0 || abs(end-mid) < abs(best-mid) {
				best = end
			}
		}
	}
	if best <= 0 {
		return s, ""
	}
	return s[:best], s[best:]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(done) / float64(total)
}
