// Package glossary resolves disagreements between proposed and existing
// term mappings under a configured rule and keeps an audit log of every
// resolution. Winning proposals are written to the session state through
// its mutators; losing ones survive in the conflict log.
package glossary

import (
	"fmt"
	"sort"
	"strings"

	"rlm-translate/internal/logging"
	"rlm-translate/internal/state"
)

// Rule selects the deterministic conflict resolution policy.
type Rule string

const (
	// RulePresetFirst lets preset-sourced mappings take precedence over
	// document-discovered ones.
	RulePresetFirst Rule = "preset_first"

	// RuleDocumentInitial keeps the first occurrence once it is backed
	// by chunk indices.
	RuleDocumentInitial Rule = "document_initial"

	// RuleMajority compares occurrence counts: the existing entry's
	// chunk indices against the proposal's confidence scaled to a count.
	RuleMajority Rule = "majority"

	// RuleMostRecent lets the newest write win.
	RuleMostRecent Rule = "most_recent"
)

// DefaultRule is applied when no rule is configured.
const DefaultRule = RuleMajority

// ParseRule validates a rule name.
func ParseRule(s string) (Rule, error) {
	r := Rule(s)
	switch r {
	case RulePresetFirst, RuleDocumentInitial, RuleMajority, RuleMostRecent:
		return r, nil
	}
	return "", fmt.Errorf("unknown conflict resolution rule: %q", s)
}

// Decision is the outcome of one conflict resolution.
type Decision string

const (
	DecisionKeepExisting Decision = "keep_existing"
	DecisionAdoptNew     Decision = "adopt_new"
)

// Proposal is a term mapping under review.
type Proposal struct {
	Source     string
	Target     string
	Confidence float64
	Indices    []int
	IsHard     bool
	FromPreset bool
}

// Conflict records one resolution event: the contested term, the
// competing targets with where each came from, and what the rule chose.
type Conflict struct {
	Term        string   `json:"term"`
	Options     []string `json:"options"`
	Sources     []string `json:"sources"`
	RuleApplied Rule     `json:"rule_applied"`
	Decision    Decision `json:"decision"`
}

// Manager applies the conflict policy on top of the session state. Like
// the state it serves, it is owned by the root orchestrator and is not
// goroutine safe.
type Manager struct {
	rule      Rule
	log       logging.Logger
	conflicts []Conflict
}

// NewManager creates a manager with the given rule. Empty or unknown
// rules fall back to the default.
func NewManager(rule Rule, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithComponent("glossary")

	if rule == "" {
		rule = DefaultRule
	} else if _, err := ParseRule(string(rule)); err != nil {
		log.Warn("unknown conflict resolution rule, using default",
			"rule", string(rule), "default", string(DefaultRule))
		rule = DefaultRule
	}

	return &Manager{rule: rule, log: log}
}

// Rule returns the active resolution rule.
func (m *Manager) Rule() Rule {
	return m.rule
}

// Apply reviews one proposal against the state. New terms and agreeing
// proposals merge directly; disagreeing ones go through the conflict
// rule, and the state is written only when the proposal wins.
func (m *Manager) Apply(st *state.TranslationState, p Proposal) Decision {
	if p.Source == "" || p.Target == "" {
		return DecisionKeepExisting
	}

	existing, ok := st.Glossary[p.Source]
	if !ok || existing.Target == p.Target {
		m.write(st, p)
		return DecisionAdoptNew
	}

	decision := m.decide(existing, p)
	m.record(Conflict{
		Term:        p.Source,
		Options:     []string{existing.Target, p.Target},
		Sources:     []string{"existing:" + string(existing.Origin), "proposed:" + proposalOrigin(p)},
		RuleApplied: m.rule,
		Decision:    decision,
	})

	if decision == DecisionAdoptNew {
		m.write(st, p)
	}
	return decision
}

func (m *Manager) write(st *state.TranslationState, p Proposal) {
	if p.FromPreset {
		st.SeedPresetTerm(p.Source, p.Target, p.IsHard)
		return
	}
	st.AddGlossaryEntry(p.Source, p.Target, p.Confidence, p.Indices, p.IsHard)
}

func (m *Manager) decide(existing *state.TermEntry, p Proposal) Decision {
	switch m.rule {
	case RulePresetFirst:
		return decidePresetFirst(existing, p)
	case RuleDocumentInitial:
		return decideDocumentInitial(existing, p)
	case RuleMostRecent:
		return decideMostRecent(existing, p)
	default:
		return decideMajority(existing, p)
	}
}

// decidePresetFirst adopts proposals carried by the preset and keeps the
// existing mapping against everything else.
func decidePresetFirst(_ *state.TermEntry, p Proposal) Decision {
	if p.FromPreset {
		return DecisionAdoptNew
	}
	return DecisionKeepExisting
}

// decideDocumentInitial keeps the existing mapping once it is backed by
// chunk occurrences; unbacked entries yield to the proposal.
func decideDocumentInitial(existing *state.TermEntry, _ Proposal) Decision {
	if len(existing.ChunkIndices) > 0 {
		return DecisionKeepExisting
	}
	return DecisionAdoptNew
}

// decideMajority compares the existing entry's occurrence count against
// the proposal's confidence scaled to a count estimate. Ties keep the
// existing mapping.
func decideMajority(existing *state.TermEntry, p Proposal) Decision {
	existingCount := float64(len(existing.ChunkIndices))
	proposedCount := p.Confidence * 10
	if existingCount >= proposedCount {
		return DecisionKeepExisting
	}
	return DecisionAdoptNew
}

// decideMostRecent adopts the proposal: it is by definition the newest
// write.
func decideMostRecent(_ *state.TermEntry, _ Proposal) Decision {
	return DecisionAdoptNew
}

// promotionConfidence scores candidates during promotion; candidates
// arrive unscored from the sub-translator.
const promotionConfidence = 0.7

// PromoteCandidates reviews the state's candidate pool in source order
// and promotes winners into confirmed terms. Losers leave the pool but
// stay in the conflict log. Returns the number promoted.
func (m *Manager) PromoteCandidates(st *state.TranslationState) int {
	candidates := sortedKeys(st.TermCandidates)

	promoted := 0
	for _, src := range candidates {
		tgt := st.TermCandidates[src]

		existingTarget, conflict := st.CheckTermConflict(src, tgt)
		if !conflict {
			if st.UpdateGlossary(src, tgt, false) {
				promoted++
			}
			continue
		}

		existing, ok := st.Glossary[src]
		if !ok {
			// Confirmed outside the glossary (direct promotion); treat
			// as an unbacked document entry.
			existing = &state.TermEntry{Source: src, Target: existingTarget, Origin: state.OriginDocument}
		}

		decision := m.decide(existing, Proposal{
			Source:     src,
			Target:     tgt,
			Confidence: promotionConfidence,
		})
		m.record(Conflict{
			Term:        src,
			Options:     []string{existingTarget, tgt},
			Sources:     []string{"existing:" + string(existing.Origin), "proposed:candidate"},
			RuleApplied: m.rule,
			Decision:    decision,
		})

		if decision == DecisionAdoptNew {
			st.UpdateGlossary(src, tgt, true)
			promoted++
		} else {
			delete(st.TermCandidates, src)
		}
	}
	return promoted
}

// MergeGlossaries folds several source→target maps into one, resolving
// disagreements under the configured rule. Maps are consulted in
// argument order, so earlier arguments count as "first" for the rules
// that care.
func (m *Manager) MergeGlossaries(sources ...map[string]string) map[string]string {
	type optionSet struct {
		options []string
		origins []string
		counts  map[string]int
	}

	sets := make(map[string]*optionSet)
	var order []string

	for i, src := range sources {
		for _, term := range sortedKeys(src) {
			target := src[term]
			set, ok := sets[term]
			if !ok {
				set = &optionSet{counts: make(map[string]int)}
				sets[term] = set
				order = append(order, term)
			}
			if set.counts[target] == 0 {
				set.options = append(set.options, target)
				set.origins = append(set.origins, fmt.Sprintf("input_%d", i))
			}
			set.counts[target]++
		}
	}

	out := make(map[string]string, len(order))
	for _, term := range order {
		set := sets[term]
		if len(set.options) == 1 {
			out[term] = set.options[0]
			continue
		}

		winner := m.resolveOptions(set.options, set.counts)
		out[term] = winner
		m.record(Conflict{
			Term:        term,
			Options:     append([]string(nil), set.options...),
			Sources:     append([]string(nil), set.origins...),
			RuleApplied: m.rule,
			Decision:    DecisionAdoptNew,
		})
	}
	return out
}

// resolveOptions picks the winner among competing targets for one term.
// Options are in first-seen order.
func (m *Manager) resolveOptions(options []string, counts map[string]int) string {
	switch m.rule {
	case RulePresetFirst, RuleDocumentInitial:
		return options[0]
	case RuleMostRecent:
		return options[len(options)-1]
	default:
		best := options[0]
		for _, opt := range options[1:] {
			if counts[opt] > counts[best] {
				best = opt
			}
		}
		return best
	}
}

// Conflicts returns the resolution log in occurrence order.
func (m *Manager) Conflicts() []Conflict {
	return append([]Conflict(nil), m.conflicts...)
}

// ClearConflicts drops the resolution log.
func (m *Manager) ClearConflicts() {
	m.conflicts = nil
}

// Export is the flattened glossary with resolution metadata.
type Export struct {
	Glossary       map[string]string `json:"glossary"`
	ConflictsCount int               `json:"conflicts_count"`
	ResolutionRule Rule              `json:"resolution_rule"`
}

// ExportState flattens the session glossary together with the manager's
// resolution metadata.
func (m *Manager) ExportState(st *state.TranslationState) Export {
	return Export{
		Glossary:       st.ExportGlossary(),
		ConflictsCount: len(m.conflicts),
		ResolutionRule: m.rule,
	}
}

func (m *Manager) record(c Conflict) {
	m.conflicts = append(m.conflicts, c)
	m.log.Debug("glossary conflict resolved",
		"term", c.Term,
		"options", strings.Join(c.Options, " | "),
		"rule", string(c.RuleApplied),
		"decision", string(c.Decision))
}

func proposalOrigin(p Proposal) string {
	if p.FromPreset {
		return string(state.OriginPreset)
	}
	return string(state.OriginDocument)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
