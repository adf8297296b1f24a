// Package verify implements the critic that gates every translation before
// commit. The rule pass is deterministic and cheap; an optional
// model-assisted pass can add quality warnings but never changes the rule
// verdict.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"rlm-translate/internal/contextpkg"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/state"
)

// Kind classifies a finding.
type Kind string

const (
	KindFormat      Kind = "format"
	KindCompletion  Kind = "completion"
	KindForbidden   Kind = "forbidden"
	KindTerminology Kind = "terminology"
	KindTone        Kind = "tone"
	KindStructure   Kind = "structure"
)

// Severity separates must-fix findings from quality suggestions.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Finding is one validation error.
type Finding struct {
	Kind     Kind     `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Warning is a quality suggestion that does not invalidate the translation.
type Warning struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message"`
}

// Result carries the verdict for one translation.
type Result struct {
	Valid             bool             `json:"valid"`
	Errors            []Finding        `json:"errors,omitempty"`
	Warnings          []Warning        `json:"warnings,omitempty"`
	RepairType        state.RepairType `json:"repair_type,omitempty"`
	RepairDescription string           `json:"repair_description,omitempty"`
}

func newResult() *Result {
	return &Result{Valid: true}
}

func (r *Result) addError(kind Kind, message string, severity Severity) {
	r.Errors = append(r.Errors, Finding{Kind: kind, Message: message, Severity: severity})
	r.Valid = false
}

func (r *Result) addWarning(kind Kind, message string) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Message: message})
}

// HasHardErrors reports whether any finding demands repair.
func (r *Result) HasHardErrors() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityHard {
			return true
		}
	}
	return false
}

// HardKinds lists the kinds of all hard findings, in order.
func (r *Result) HardKinds() []Kind {
	var kinds []Kind
	for _, e := range r.Errors {
		if e.Severity == SeverityHard {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// Summary renders the verdict for logs and observers.
func (r *Result) Summary() string {
	if r.Valid {
		return "Translation passed all validations"
	}
	lines := []string{
		fmt.Sprintf("Valid: %t", r.Valid),
		fmt.Sprintf("Errors: %d", len(r.Errors)),
		fmt.Sprintf("Warnings: %d", len(r.Warnings)),
	}
	if r.RepairType != "" {
		lines = append(lines, fmt.Sprintf("Recommended repair: %s", r.RepairType))
	}
	return strings.Join(lines, "\n")
}

// Options toggle individual rule checks.
type Options struct {
	CheckSentence bool
	CheckLength   bool
}

// DefaultOptions enables every toggle.
func DefaultOptions() Options {
	return Options{CheckSentence: true, CheckLength: true}
}

// hardTermLimit bounds how many hard glossary terms the coverage check
// inspects per translation.
const hardTermLimit = 10

var sentenceEndings = []string{".", "!", "?", "。", "！", "？", "다.", "요.", "니다."}

// Verifier validates translations against the rule set. The zero-cost rule
// pass always runs; EnableLLMPass adds a model-assisted review on failures.
type Verifier struct {
	gateway *llm.Gateway
	llmPass bool
	log     logging.Logger
}

// New builds a rule-only verifier. A nil logger disables logging.
func New(log logging.Logger) *Verifier {
	if log == nil {
		log = logging.NewNop()
	}
	return &Verifier{log: log.WithComponent("verify")}
}

// EnableLLMPass turns on the model-assisted review through the given
// gateway. Passing nil disables it again.
func (v *Verifier) EnableLLMPass(gw *llm.Gateway) {
	v.gateway = gw
	v.llmPass = gw != nil
}

// LLMPassEnabled reports whether the model-assisted review is active.
func (v *Verifier) LLMPassEnabled() bool {
	return v.llmPass
}

// Verify runs the rule checks and, when enabled and the rules failed, the
// model-assisted pass. The returned result always reflects the rule verdict.
func (v *Verifier) Verify(ctx context.Context, translation, original string, pkg *contextpkg.Package, presetType state.PresetType, opts Options) *Result {
	res := newResult()

	v.ruleChecks(res, translation, original, pkg, presetType, opts)

	if !res.Valid && v.llmPass {
		v.modelReview(ctx, res, translation, original)
	}
	if !res.Valid {
		determineRepair(res)
	}
	return res
}

func (v *Verifier) ruleChecks(res *Result, translation, original string, pkg *contextpkg.Package, presetType state.PresetType, opts Options) {
	if strings.TrimSpace(translation) == "" {
		res.addError(KindCompletion, "Translation is empty", SeverityHard)
		return
	}

	stripped := strings.TrimRightFunc(translation, unicode.IsSpace)
	if strings.HasSuffix(stripped, "...") || strings.HasSuffix(stripped, "…") {
		res.addError(KindCompletion, "Translation appears truncated (ends with '...')", SeverityHard)
	}

	if opts.CheckSentence {
		if utf8.RuneCountInString(stripped) > 50 && !endsWithSentence(stripped) {
			res.addError(KindCompletion, "Translation does not end with a complete sentence", SeverityHard)
		}
	}

	if opts.CheckLength {
		origLen := utf8.RuneCountInString(strings.TrimSpace(original))
		transLen := utf8.RuneCountInString(strings.TrimSpace(translation))
		if origLen > 100 && float64(transLen) < float64(origLen)*0.5 {
			res.addError(KindCompletion,
				fmt.Sprintf("Translation too short (%d chars vs original %d chars, <50%%)", transLen, origLen),
				SeverityHard)
		}
	}

	switch presetType {
	case state.PresetSubtitle:
		checkSubtitleFormat(res, translation)
	case state.PresetPatent:
		checkPatentFormat(res, translation)
	case state.PresetPaper:
		checkPaperFormat(res, translation)
	}

	checkForbiddenContent(res, translation, pkg.StyleGuide)
	checkLengthCeiling(res, translation, original)
	checkTerminology(res, translation, pkg.HardGlossary)
}

func endsWithSentence(stripped string) bool {
	for _, ending := range sentenceEndings {
		if strings.HasSuffix(stripped, ending) {
			return true
		}
	}
	return false
}

// checkSubtitleFormat requires at least one non-empty line. Whitespace-only
// output is already rejected by the empty check; this documents the subtitle
// contract for callers that run the preset checks in isolation.
func checkSubtitleFormat(res *Result, translation string) {
	for _, line := range strings.Split(strings.TrimSpace(translation), "\n") {
		if strings.TrimSpace(line) != "" {
			return
		}
	}
	res.addError(KindFormat, "Subtitle has no non-empty lines", SeverityHard)
}

func checkPatentFormat(res *Result, translation string) {
	if !hasDigitToken(translation) {
		res.addWarning(KindStructure, "No claim numbers found (typical in patent translations)")
	}
	if !strings.Contains(strings.ToLower(translation), "wherein") {
		res.addWarning(KindStructure, "Missing 'wherein' clause marker (optional)")
	}
}

func checkPaperFormat(res *Result, translation string) {
	if countSentenceTerminators(translation) < 3 {
		res.addWarning(KindStructure, "Paper may lack sufficient sentence structure")
	}
}

func hasDigitToken(s string) bool {
	for _, field := range strings.Fields(s) {
		allDigits := true
		for _, r := range field {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

func countSentenceTerminators(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			n++
		}
	}
	return n
}

func checkForbiddenContent(res *Result, translation string, style state.StyleGuide) {
	lower := strings.ToLower(translation)
	for _, word := range style.ForbiddenWords {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			res.addError(KindForbidden, fmt.Sprintf("Contains forbidden word: '%s'", word), SeverityHard)
		}
	}
	for _, phrase := range style.ForbiddenPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			res.addError(KindForbidden, fmt.Sprintf("Contains forbidden phrase: '%s'", phrase), SeverityHard)
		}
	}
}

func checkLengthCeiling(res *Result, translation, original string) {
	origLen := utf8.RuneCountInString(original)
	transLen := utf8.RuneCountInString(translation)
	if transLen > origLen*3 {
		res.addWarning(KindCompletion, "Translation is significantly longer than original (>3x)")
	}
}

// checkTerminology flags hard glossary terms absent from the translation.
// Soft only: a chunk may legitimately not contain a term's source.
func checkTerminology(res *Result, translation string, hardGlossary map[string]string) {
	if len(hardGlossary) == 0 {
		return
	}
	terms := make([]string, 0, len(hardGlossary))
	for term := range hardGlossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) > hardTermLimit {
		terms = terms[:hardTermLimit]
	}

	lower := strings.ToLower(translation)
	for _, term := range terms {
		if !strings.Contains(lower, strings.ToLower(term)) {
			res.addWarning(KindTerminology, fmt.Sprintf("Glossary term '%s' not found in translation", term))
		}
	}
}

func determineRepair(res *Result) {
	kinds := res.HardKinds()
	if len(kinds) == 0 {
		return
	}
	has := func(k Kind) bool {
		for _, kind := range kinds {
			if kind == k {
				return true
			}
		}
		return false
	}

	switch {
	case has(KindForbidden):
		res.RepairType = state.RepairTemplateReinforce
		res.RepairDescription = "Remove forbidden content and re-translate"
	case has(KindFormat):
		res.RepairType = state.RepairTemplateReinforce
		res.RepairDescription = "Fix formatting errors and re-translate"
	case has(KindCompletion):
		res.RepairType = state.RepairReTranslate
		res.RepairDescription = "Re-translate the chunk completely"
	default:
		res.RepairType = state.RepairReTranslate
		res.RepairDescription = "Re-translate with corrections"
	}
}
