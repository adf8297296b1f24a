// Package state holds the project memory for one translation session:
// chunk plan and histories, the tiered glossary and entity model, style
// guidance, quality flags, and cost counters. The root orchestrator is the
// sole writer; other components receive read-only snapshots.
package state

import (
	"fmt"
	"time"
)

// PresetType identifies a document class with its own generation
// parameters and rules.
type PresetType string

const (
	PresetSubtitle  PresetType = "subtitle"
	PresetPatent    PresetType = "patent"
	PresetPaper     PresetType = "paper"
	PresetNovel     PresetType = "novel"
	PresetTechnical PresetType = "technical"
	PresetGeneral   PresetType = "general"
)

// AllPresetTypes lists the built-in document classes in a stable order.
func AllPresetTypes() []PresetType {
	return []PresetType{
		PresetSubtitle, PresetPatent, PresetPaper,
		PresetNovel, PresetTechnical, PresetGeneral,
	}
}

// ParsePresetType validates a preset name.
func ParsePresetType(s string) (PresetType, error) {
	p := PresetType(s)
	switch p {
	case PresetSubtitle, PresetPatent, PresetPaper, PresetNovel, PresetTechnical, PresetGeneral:
		return p, nil
	}
	return "", fmt.Errorf("unknown preset type: %q", s)
}

// RepairType selects the remediation strategy after a verifier hard error.
type RepairType string

const (
	RepairTemplateReinforce RepairType = "template_reinforce"
	RepairGlossaryUpdate    RepairType = "glossary_update"
	RepairSplitChunk        RepairType = "split_chunk"
	RepairReTranslate       RepairType = "re_translate"
	RepairContextAdjust     RepairType = "context_adjust"
)

// QualityFlagKind classifies a per-chunk defect.
type QualityFlagKind string

const (
	FlagFormatError         QualityFlagKind = "format_error"
	FlagMissingContent      QualityFlagKind = "missing_content"
	FlagForbiddenWord       QualityFlagKind = "forbidden_word"
	FlagTerminologyMismatch QualityFlagKind = "terminology_mismatch"
	FlagTooLong             QualityFlagKind = "too_long"
	FlagMeaningLost         QualityFlagKind = "meaning_lost"
	FlagToneMismatch        QualityFlagKind = "tone_mismatch"
	FlagDuplicateContent    QualityFlagKind = "duplicate_content"
)

// ChunkStatus is the terminal quality flag of a committed chunk.
type ChunkStatus string

const (
	StatusFresh    ChunkStatus = "FRESH"
	StatusRepaired ChunkStatus = "REPAIRED"
	StatusFailed   ChunkStatus = "FAILED"
)

// Strategy selects how PLAN picks the next chunk.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyAdaptive   Strategy = "adaptive"
	StrategyPriority   Strategy = "priority"
)

// TermTier tags where a glossary entry sits in the enforcement ladder.
type TermTier string

const (
	TierHard      TermTier = "hard"
	TierSoft      TermTier = "soft"
	TierCandidate TermTier = "candidate"
)

// TermOrigin records who introduced a term mapping.
type TermOrigin string

const (
	OriginPreset   TermOrigin = "preset"
	OriginDocument TermOrigin = "document"
	OriginUser     TermOrigin = "user"
)

// EntityType classifies a named entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityPlace        EntityType = "place"
	EntityOrganization EntityType = "organization"
	EntityProduct      EntityType = "product"
)

// Chunk is a bounded slice of source text processed atomically. Indices are
// dense and total-ordered; offsets are informational and may be zero when
// chunking crosses non-character boundaries.
type Chunk struct {
	Index       int    `json:"index"`
	OffsetStart int    `json:"offset_start"`
	OffsetEnd   int    `json:"offset_end"`
	Text        string `json:"text"`
}

// ChunkPlan is the ordered work list for a session.
type ChunkPlan struct {
	Chunks       []Chunk  `json:"chunks"`
	CurrentIndex int      `json:"current_index"`
	Strategy     Strategy `json:"strategy"`
	Committed    []bool   `json:"committed"`
}

// Remaining returns the indices not yet committed, in ascending order.
func (p *ChunkPlan) Remaining() []int {
	var out []int
	for i := range p.Chunks {
		if i >= len(p.Committed) || !p.Committed[i] {
			out = append(out, i)
		}
	}
	return out
}

// TermEntry is one glossary mapping with its provenance and enforcement tier.
type TermEntry struct {
	Source       string     `json:"source"`
	Target       string     `json:"target"`
	Confidence   float64    `json:"confidence"`
	ChunkIndices []int      `json:"source_chunk_indices"`
	IsHard       bool       `json:"is_hard"`
	UsageCount   int        `json:"usage_count"`
	Tier         TermTier   `json:"tier"`
	Origin       TermOrigin `json:"origin"`
}

// EntityEntry is a named entity with its chosen translation.
type EntityEntry struct {
	Name        string     `json:"name"`
	Translation string     `json:"translation"`
	Type        EntityType `json:"type"`
	Context     string     `json:"context,omitempty"`
	UsageCount  int        `json:"usage_count"`
}

// StyleGuide carries document-wide style constraints.
type StyleGuide struct {
	Tone             string   `json:"tone,omitempty"`
	Politeness       string   `json:"politeness,omitempty"`
	SentenceLength   string   `json:"sentence_length,omitempty"`
	ForbiddenWords   []string `json:"forbidden_words,omitempty"`
	ForbiddenPhrases []string `json:"forbidden_phrases,omitempty"`
	CustomRules      []string `json:"custom_rules,omitempty"`
}

// ChunkError is one recorded per-chunk failure.
type ChunkError struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// QualityFlags aggregates per-session quality accounting.
type QualityFlags struct {
	TotalChunks     int            `json:"total_chunks"`
	CompletedChunks int            `json:"completed_chunks"`
	FailedChunks    int            `json:"failed_chunks"`
	RetryCount      map[string]int `json:"retry_count"`
	ErrorChunks     []ChunkError   `json:"error_chunks"`
	QualityScore    float64        `json:"quality_score"`
}

// CostStats accumulates provider usage for one session.
type CostStats struct {
	RootCalls     int           `json:"root_calls"`
	SubCalls      int           `json:"sub_calls"`
	VerifierCalls int           `json:"verifier_calls"`
	TotalCost     float64       `json:"total_cost"`
	TotalTokens   int           `json:"total_tokens"`
	TotalTime     time.Duration `json:"total_time"`
}

// TotalCalls sums all provider invocations.
func (c *CostStats) TotalCalls() int {
	return c.RootCalls + c.SubCalls + c.VerifierCalls
}

// InvariantError reports an internal consistency failure. It is fatal to
// the run that raised it.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("state invariant violated in %s: %s", e.Op, e.Detail)
}
