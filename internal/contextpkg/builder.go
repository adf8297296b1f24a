// Package contextpkg assembles the structured context handed to the
// sub-translator for each round: preset-derived rules, the glossary
// tiers, style constraints, the sliding window of recent work, and the
// chunk under translation. The textual serialization is deterministic:
// identical state produces an identical prompt payload.
package contextpkg

import (
	"sort"

	"rlm-translate/internal/state"
)

// DefaultMaxEntities bounds the entity mappings exposed per round.
const DefaultMaxEntities = 10

// LocalContext is the sliding window of recent work.
type LocalContext struct {
	RecentOriginals    []string          `json:"recent_originals"`
	RecentTranslations []string          `json:"recent_translations"`
	ContextSummaries   []string          `json:"context_summaries"`
	EntityTranslations map[string]string `json:"entity_translations"`
}

// Package is the structured context for one chunk round.
type Package struct {
	Rules          []string          `json:"rules"`
	HardGlossary   map[string]string `json:"hard_glossary"`
	SoftGlossary   map[string]string `json:"soft_glossary"`
	ConfirmedTerms map[string]string `json:"confirmed_terms"`
	ProperNouns    map[string]string `json:"proper_nouns"`
	ReferenceSigns map[string]string `json:"reference_signs"`
	StyleGuide     state.StyleGuide  `json:"style_guide"`
	LocalContext   LocalContext      `json:"local_context"`
	DocumentType   string            `json:"document_type"`
	Chunk          string            `json:"chunk"`
	ChunkIndex     int               `json:"chunk_index"`
}

// Builder assembles context packages from state snapshots.
type Builder struct {
	maxEntities int
}

// NewBuilder creates a builder. maxEntities bounds the entity mappings
// per package; zero or negative selects the default.
func NewBuilder(maxEntities int) *Builder {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	return &Builder{maxEntities: maxEntities}
}

// Build assembles the package for one chunk round. extraHard extends
// the hard glossary for this round only; it does not touch the state.
func (b *Builder) Build(snap *state.ContextSnapshot, chunkText string, chunkIndex int, extraHard map[string]string) *Package {
	hard := make(map[string]string, len(snap.HardGlossary)+len(extraHard))
	for src, tgt := range snap.HardGlossary {
		hard[src] = tgt
	}
	for src, tgt := range extraHard {
		hard[src] = tgt
	}

	entities := make(map[string]string)
	top := snap.Entities
	if len(top) > b.maxEntities {
		top = top[:b.maxEntities]
	}
	for _, e := range top {
		if e.Translation != "" {
			entities[e.Name] = e.Translation
		}
	}

	return &Package{
		Rules:          rulesFor(snap.PresetID),
		HardGlossary:   hard,
		SoftGlossary:   snap.SoftGlossary,
		ConfirmedTerms: snap.ConfirmedTerms,
		ProperNouns:    snap.ProperNouns,
		ReferenceSigns: snap.ReferenceSigns,
		StyleGuide:     snap.Style,
		LocalContext: LocalContext{
			RecentOriginals:    snap.RecentOriginals,
			RecentTranslations: snap.RecentTranslations,
			ContextSummaries:   snap.HistorySummaries,
			EntityTranslations: entities,
		},
		DocumentType: snap.DocumentType,
		Chunk:        chunkText,
		ChunkIndex:   chunkIndex,
	}
}

// rulesFor derives the directive list for a document class.
func rulesFor(preset state.PresetType) []string {
	rules := []string{
		"Translate preserving meaning and intent",
		"Use natural expressions in target language",
		"Maintain consistent terminology throughout",
	}

	switch preset {
	case state.PresetSubtitle:
		rules = append(rules,
			"Keep translations SHORT and natural for spoken dialogue",
			"Match timing constraints of subtitles",
			"Use colloquial expressions appropriate for speech",
			"Avoid overly formal language",
			"Keep line breaks where they make sense for readability",
		)
	case state.PresetPatent:
		rules = append(rules,
			"Use EXACT legal terminology - precision is critical",
			"Maintain claim structure and numbering",
			"Preserve all technical specifications exactly",
			"Keep patent-specific phrases (comprising, wherein)",
			"Do not paraphrase - translate literally as appropriate",
			"Maintain reference numbers and figure references",
		)
	case state.PresetPaper:
		rules = append(rules,
			"Use precise academic terminology",
			"Maintain formal, objective tone",
			"Preserve technical terms (transliterate if no standard translation)",
			"Keep citation formats intact",
			"Translate figure/table captions accurately",
			"Maintain logical flow and argumentation structure",
		)
	case state.PresetNovel:
		rules = append(rules,
			"Preserve author's unique voice and style",
			"Maintain narrative flow and pacing",
			"Translate idioms naturally, not literally",
			"Keep character voice distinctions",
			"Preserve metaphors and literary devices when possible",
			"Adapt cultural references appropriately",
			"Maintain emotional impact and atmosphere",
		)
	case state.PresetTechnical:
		rules = append(rules,
			"Use clear, unambiguous language",
			"Preserve code snippets and commands exactly",
			"Keep formatting (lists, headings, tables)",
			"Translate UI text according to localization standards",
			"Keep placeholder text unchanged",
		)
	default:
		rules = append(rules,
			"Prioritize natural, fluent expression",
			"Preserve the original formatting and paragraph structure",
		)
	}

	return rules
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
