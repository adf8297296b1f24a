package state

import (
	"fmt"
	"sort"
)

// DefaultMaxHistorySummaries bounds the sliding window of round summaries.
const DefaultMaxHistorySummaries = 5

// TranslationState is the project memory for one session. It is created at
// session start, mutated only by the root orchestrator, and reset wholesale
// between sessions. No internal locking: ownership is strictly serial per
// document, and snapshots are copies.
type TranslationState struct {
	PresetID     PresetType `json:"preset_id"`
	DocumentType string     `json:"document_type"`

	Plan ChunkPlan `json:"chunk_plan"`

	ChunkHistory       []string `json:"chunk_history"`
	TranslationHistory []string `json:"translation_history"`

	Glossary     map[string]*TermEntry `json:"glossary"`
	HardGlossary map[string]string     `json:"hard_glossary"`
	SoftGlossary map[string]string     `json:"soft_glossary"`

	ProperNouns    map[string]string `json:"proper_nouns"`
	ReferenceSigns map[string]string `json:"reference_signs"`
	TechnicalTerms map[string]string `json:"technical_terms"`

	TermCandidates map[string]string `json:"term_candidates"`
	ConfirmedTerms map[string]string `json:"confirmed_terms"`

	Entities map[string]*EntityEntry `json:"entities"`

	HistorySummaries    []string `json:"history_summaries"`
	MaxHistorySummaries int      `json:"max_history_summaries"`

	Style   StyleGuide   `json:"style_guide"`
	Quality QualityFlags `json:"quality_flags"`
	Costs   CostStats    `json:"cost_stats"`

	TotalChunks       int `json:"total_chunks"`
	CompletedChunks   int `json:"completed_chunks"`
	CurrentChunkIndex int `json:"current_chunk_index"`
}

// New creates an empty state for the given preset.
func New(presetID PresetType) *TranslationState {
	s := &TranslationState{
		PresetID:            presetID,
		DocumentType:        string(presetID),
		MaxHistorySummaries: DefaultMaxHistorySummaries,
	}
	s.initCollections()
	return s
}

func (s *TranslationState) initCollections() {
	s.Plan = ChunkPlan{Strategy: StrategySequential}
	s.ChunkHistory = nil
	s.TranslationHistory = nil
	s.Glossary = make(map[string]*TermEntry)
	s.HardGlossary = make(map[string]string)
	s.SoftGlossary = make(map[string]string)
	s.ProperNouns = make(map[string]string)
	s.ReferenceSigns = make(map[string]string)
	s.TechnicalTerms = make(map[string]string)
	s.TermCandidates = make(map[string]string)
	s.ConfirmedTerms = make(map[string]string)
	s.Entities = make(map[string]*EntityEntry)
	s.HistorySummaries = nil
	s.Style = StyleGuide{}
	s.Quality = QualityFlags{RetryCount: make(map[string]int)}
	s.Costs = CostStats{}
	s.TotalChunks = 0
	s.CompletedChunks = 0
	s.CurrentChunkIndex = 0
}

// Reset clears all glossary tiers, histories, counters, and error logs.
// The preset binding survives.
func (s *TranslationState) Reset() {
	s.initCollections()
}

// SeedPlan installs the chunk plan and pre-allocates both histories to
// total_chunks so that commits are in-place updates regardless of the
// selection strategy.
func (s *TranslationState) SeedPlan(chunks []Chunk, strategy Strategy) {
	n := len(chunks)
	s.Plan = ChunkPlan{
		Chunks:       chunks,
		CurrentIndex: 0,
		Strategy:     strategy,
		Committed:    make([]bool, n),
	}
	s.ChunkHistory = make([]string, n)
	for i, c := range chunks {
		s.ChunkHistory[i] = c.Text
	}
	s.TranslationHistory = make([]string, n)
	s.TotalChunks = n
	s.Quality.TotalChunks = n
	s.CompletedChunks = 0
	s.CurrentChunkIndex = 0
}

// AddChunk appends a source/translation pair, advancing the cursor. This is
// the incremental path used when no plan was seeded (short inputs).
func (s *TranslationState) AddChunk(source, translation string) {
	s.ChunkHistory = append(s.ChunkHistory, source)
	s.TranslationHistory = append(s.TranslationHistory, translation)
	s.CompletedChunks++
	s.CurrentChunkIndex++
	if s.TotalChunks < len(s.ChunkHistory) {
		s.TotalChunks = len(s.ChunkHistory)
		s.Quality.TotalChunks = s.TotalChunks
	}
}

// UpdateChunk replaces the translation at index i in place.
func (s *TranslationState) UpdateChunk(i int, translation string) error {
	if i < 0 || i >= len(s.TranslationHistory) {
		return &InvariantError{
			Op:     "update_chunk",
			Detail: fmt.Sprintf("index %d out of range [0,%d)", i, len(s.TranslationHistory)),
		}
	}
	s.TranslationHistory[i] = translation
	return nil
}

// ChunkText returns the source text of the planned chunk at index i.
func (s *TranslationState) ChunkText(i int) (string, error) {
	if i < 0 || i >= len(s.Plan.Chunks) {
		return "", &InvariantError{
			Op:     "chunk_text",
			Detail: fmt.Sprintf("index %d out of range [0,%d)", i, len(s.Plan.Chunks)),
		}
	}
	return s.Plan.Chunks[i].Text, nil
}

// MarkCommitted finalizes the round for chunk i. Successful chunks advance
// completed counters; failed ones only leave error accounting behind.
func (s *TranslationState) MarkCommitted(i int, failed bool) error {
	if i < 0 || i >= len(s.Plan.Committed) {
		return &InvariantError{
			Op:     "mark_committed",
			Detail: fmt.Sprintf("index %d out of range [0,%d)", i, len(s.Plan.Committed)),
		}
	}
	s.Plan.Committed[i] = true
	if !failed {
		s.CompletedChunks++
		s.Quality.CompletedChunks++
	}
	s.advanceCursor()
	return nil
}

// advanceCursor moves current_chunk_index to the lowest uncommitted index,
// or total_chunks when everything is committed.
func (s *TranslationState) advanceCursor() {
	for i := range s.Plan.Committed {
		if !s.Plan.Committed[i] {
			s.CurrentChunkIndex = i
			s.Plan.CurrentIndex = i
			return
		}
	}
	s.CurrentChunkIndex = s.TotalChunks
	s.Plan.CurrentIndex = s.TotalChunks
}

// AddGlossaryEntry upserts a document-discovered term mapping. On update the
// target is replaced, confidence max-merged, chunk indices unioned, and the
// usage count incremented. Views and confirmed terms are synchronized.
func (s *TranslationState) AddGlossaryEntry(source, target string, confidence float64, indices []int, isHard bool) {
	s.addEntry(source, target, confidence, indices, isHard, OriginDocument)
}

// SeedPresetTerm installs a term that originates from the preset.
func (s *TranslationState) SeedPresetTerm(source, target string, isHard bool) {
	s.addEntry(source, target, 1.0, nil, isHard, OriginPreset)
}

func (s *TranslationState) addEntry(source, target string, confidence float64, indices []int, isHard bool, origin TermOrigin) {
	if source == "" {
		return
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	valid := s.validIndices(indices)

	entry, exists := s.Glossary[source]
	if exists {
		entry.Target = target
		if confidence > entry.Confidence {
			entry.Confidence = confidence
		}
		entry.ChunkIndices = unionIndices(entry.ChunkIndices, valid)
		entry.UsageCount++
		entry.IsHard = entry.IsHard || isHard
	} else {
		entry = &TermEntry{
			Source:       source,
			Target:       target,
			Confidence:   confidence,
			ChunkIndices: valid,
			IsHard:       isHard,
			UsageCount:   1,
			Origin:       origin,
		}
		s.Glossary[source] = entry
	}

	if entry.IsHard {
		entry.Tier = TierHard
		s.HardGlossary[source] = target
		delete(s.SoftGlossary, source)
		s.ConfirmedTerms[source] = target
		delete(s.TermCandidates, source)
	} else {
		entry.Tier = TierSoft
		s.SoftGlossary[source] = target
	}
}

// validIndices drops references outside the current plan.
func (s *TranslationState) validIndices(indices []int) []int {
	if len(indices) == 0 {
		return nil
	}
	var out []int
	for _, idx := range indices {
		if idx >= 0 && (s.TotalChunks == 0 || idx < s.TotalChunks) {
			out = append(out, idx)
		}
	}
	return out
}

func unionIndices(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// ProposeTerms takes sub-translator candidates. A proposal is accepted into
// term_candidates only when the source is not already confirmed.
func (s *TranslationState) ProposeTerms(candidates map[string]string) {
	for src, tgt := range candidates {
		if src == "" || tgt == "" {
			continue
		}
		if _, confirmed := s.ConfirmedTerms[src]; confirmed {
			continue
		}
		s.TermCandidates[src] = tgt
	}
}

// UpdateGlossary promotes a term to confirmed_terms and removes it from the
// candidate pool. Without force, a conflicting existing mapping blocks the
// promotion; the caller decides through the glossary manager what wins.
func (s *TranslationState) UpdateGlossary(source, target string, force bool) bool {
	if source == "" {
		return false
	}
	if !force {
		if _, conflict := s.CheckTermConflict(source, target); conflict {
			return false
		}
	}
	s.ConfirmedTerms[source] = target
	delete(s.TermCandidates, source)
	if entry, ok := s.Glossary[source]; ok {
		entry.Target = target
		if entry.IsHard {
			s.HardGlossary[source] = target
		} else {
			s.SoftGlossary[source] = target
		}
	}
	return true
}

// CheckTermConflict reports the existing confirmed or glossary target when it
// differs from the proposed one.
func (s *TranslationState) CheckTermConflict(source, newTarget string) (string, bool) {
	if existing, ok := s.ConfirmedTerms[source]; ok && existing != newTarget {
		return existing, true
	}
	if entry, ok := s.Glossary[source]; ok && entry.Target != newTarget {
		return entry.Target, true
	}
	return "", false
}

// AddHardTerm installs a must-use mapping.
func (s *TranslationState) AddHardTerm(source, target string) {
	s.addEntry(source, target, 1.0, nil, true, OriginUser)
}

// AddProperNoun records a proper noun. Proper nouns are confirmed but stay in
// the soft tier; the verifier does not enforce them literally.
func (s *TranslationState) AddProperNoun(source, target string) {
	if source == "" {
		return
	}
	s.ProperNouns[source] = target
	s.addEntry(source, target, 1.0, nil, false, OriginDocument)
	s.ConfirmedTerms[source] = target
	delete(s.TermCandidates, source)
}

// AddReferenceSign records an alphanumeric identifier mapping. Reference
// signs are always hard.
func (s *TranslationState) AddReferenceSign(sign, target string) {
	if sign == "" {
		return
	}
	s.ReferenceSigns[sign] = target
	s.addEntry(sign, target, 1.0, nil, true, OriginDocument)
}

// AddTechnicalTerm records a technical term at the requested tier.
func (s *TranslationState) AddTechnicalTerm(source, target string, isHard bool) {
	if source == "" {
		return
	}
	s.TechnicalTerms[source] = target
	s.addEntry(source, target, 1.0, nil, isHard, OriginDocument)
	if !isHard {
		s.ConfirmedTerms[source] = target
		delete(s.TermCandidates, source)
	}
}

// AddEntity upserts a named entity. Existing entries keep their type and
// translation unless the new values are non-empty.
func (s *TranslationState) AddEntity(name, translation string, entityType EntityType, context string) {
	if name == "" {
		return
	}
	if existing, ok := s.Entities[name]; ok {
		if translation != "" {
			existing.Translation = translation
		}
		if context != "" {
			existing.Context = context
		}
		existing.UsageCount++
		return
	}
	s.Entities[name] = &EntityEntry{
		Name:        name,
		Translation: translation,
		Type:        entityType,
		Context:     context,
		UsageCount:  1,
	}
}

// AddHistorySummary appends a round summary, dropping from the front once
// the sliding window is full.
func (s *TranslationState) AddHistorySummary(summary string) {
	if summary == "" {
		return
	}
	limit := s.MaxHistorySummaries
	if limit <= 0 {
		limit = DefaultMaxHistorySummaries
	}
	s.HistorySummaries = append(s.HistorySummaries, summary)
	if len(s.HistorySummaries) > limit {
		s.HistorySummaries = s.HistorySummaries[len(s.HistorySummaries)-limit:]
	}
}

// RecordError logs a per-chunk failure and bumps the failure counter.
func (s *TranslationState) RecordError(i int, kind, msg string) {
	s.Quality.ErrorChunks = append(s.Quality.ErrorChunks, ChunkError{
		Index:   i,
		Kind:    kind,
		Message: msg,
	})
	s.Quality.FailedChunks++
}

// IncrementRetry bumps the retry counter for one error kind and returns the
// new count.
func (s *TranslationState) IncrementRetry(kind string) int {
	if s.Quality.RetryCount == nil {
		s.Quality.RetryCount = make(map[string]int)
	}
	s.Quality.RetryCount[kind]++
	return s.Quality.RetryCount[kind]
}

// HardGlossaryTop returns up to n hard terms ordered by usage count then
// confidence, descending, with source as the deterministic tie-breaker.
func (s *TranslationState) HardGlossaryTop(n int) []TermEntry {
	var entries []TermEntry
	for src := range s.HardGlossary {
		if e, ok := s.Glossary[src]; ok {
			entries = append(entries, *e)
		} else {
			entries = append(entries, TermEntry{Source: src, Target: s.HardGlossary[src], IsHard: true, Tier: TierHard})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UsageCount != entries[j].UsageCount {
			return entries[i].UsageCount > entries[j].UsageCount
		}
		if entries[i].Confidence != entries[j].Confidence {
			return entries[i].Confidence > entries[j].Confidence
		}
		return entries[i].Source < entries[j].Source
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// TopEntities returns up to n entities by usage, name-ordered on ties.
func (s *TranslationState) TopEntities(n int) []EntityEntry {
	var entities []EntityEntry
	for _, e := range s.Entities {
		entities = append(entities, *e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].UsageCount != entities[j].UsageCount {
			return entities[i].UsageCount > entities[j].UsageCount
		}
		return entities[i].Name < entities[j].Name
	})
	if n > 0 && len(entities) > n {
		entities = entities[:n]
	}
	return entities
}

// ExportGlossary flattens the glossary to source → target.
func (s *TranslationState) ExportGlossary() map[string]string {
	out := make(map[string]string, len(s.Glossary))
	for src, entry := range s.Glossary {
		out[src] = entry.Target
	}
	return out
}

// ContextSnapshot is the read-only view handed to the context packager and
// verifier during a round. All maps and slices are copies.
type ContextSnapshot struct {
	PresetID           PresetType
	DocumentType       string
	HardGlossary       map[string]string
	SoftGlossary       map[string]string
	ConfirmedTerms     map[string]string
	ProperNouns        map[string]string
	ReferenceSigns     map[string]string
	TechnicalTerms     map[string]string
	Entities           []EntityEntry
	HistorySummaries   []string
	Style              StyleGuide
	RecentOriginals    []string
	RecentTranslations []string
	HardGlossaryTop    []TermEntry
	CompletedChunks    int
	TotalChunks        int
}

// recentWindow is the number of recent originals/translations exposed to the
// sub-translator.
const recentWindow = 3

// Snapshot produces the context package input: copies of the glossary tiers,
// entities, summaries, style, and the recent history windows.
func (s *TranslationState) Snapshot() *ContextSnapshot {
	snap := &ContextSnapshot{
		PresetID:        s.PresetID,
		DocumentType:    s.DocumentType,
		HardGlossary:    copyMap(s.HardGlossary),
		SoftGlossary:    copyMap(s.SoftGlossary),
		ConfirmedTerms:  copyMap(s.ConfirmedTerms),
		ProperNouns:     copyMap(s.ProperNouns),
		ReferenceSigns:  copyMap(s.ReferenceSigns),
		TechnicalTerms:  copyMap(s.TechnicalTerms),
		Entities:        s.TopEntities(0),
		Style:           copyStyle(s.Style),
		CompletedChunks: s.CompletedChunks,
		TotalChunks:     s.TotalChunks,
		HardGlossaryTop: s.HardGlossaryTop(0),
	}
	snap.HistorySummaries = append([]string(nil), s.HistorySummaries...)
	snap.RecentOriginals, snap.RecentTranslations = s.recentPairs(recentWindow)
	return snap
}

// recentPairs walks the histories in index order and returns the last n
// non-empty committed pairs.
func (s *TranslationState) recentPairs(n int) ([]string, []string) {
	var originals, translations []string
	for i := range s.TranslationHistory {
		if s.TranslationHistory[i] == "" {
			continue
		}
		originals = append(originals, s.ChunkHistory[i])
		translations = append(translations, s.TranslationHistory[i])
	}
	if len(originals) > n {
		originals = originals[len(originals)-n:]
		translations = translations[len(translations)-n:]
	}
	return originals, translations
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStyle(sg StyleGuide) StyleGuide {
	out := sg
	out.ForbiddenWords = append([]string(nil), sg.ForbiddenWords...)
	out.ForbiddenPhrases = append([]string(nil), sg.ForbiddenPhrases...)
	out.CustomRules = append([]string(nil), sg.CustomRules...)
	return out
}
