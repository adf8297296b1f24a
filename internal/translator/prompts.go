package translator

import (
	"fmt"
	"strings"

	"rlm-translate/internal/preset"
	"rlm-translate/internal/textutil"
)

// responseFormat tells the model exactly how to wrap its answer. The parser
// accepts looser output, but asking for a single fenced block keeps the
// failure rate low across providers.
const responseFormat = "Respond with exactly one fenced code block in this form:\n" +
	"```json\n" +
	`{"translated_text": "<the full translation>", "term_candidates": {"<source term>": "<target term>"}, "comments": ""}` + "\n" +
	"```\n" +
	"Put new or notable terminology in term_candidates. Leave comments empty unless something needs review."

// criticalRules returns the non-negotiable directives restated on every
// call. Sub models drift without them.
func criticalRules(targetName string) string {
	return fmt.Sprintf(`You MUST translate into %s.
CRITICAL RULES:
- Output ONLY the translation in translated_text, no commentary or notes
- Translate the COMPLETE chunk, do not skip or summarize any part
- NEVER add '...' or ellipsis or any truncation markers
- Preserve the original structure and formatting of the chunk
- Use every hard glossary term EXACTLY as given`, targetName)
}

// systemPrompt composes the preset role prompt with the critical rules and
// the structured response requirement.
func systemPrompt(p *preset.Preset, targetName string) string {
	role := strings.TrimSpace(p.SystemPrompt)
	if role == "" {
		role = "You are a professional translator. Produce natural, fluent translations that preserve meaning and intent."
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\n")
	b.WriteString(criticalRules(targetName))
	if extra := strings.TrimSpace(p.ContextInstructions); extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	return b.String()
}

// userPrompt embeds the serialized context package and restates the target
// language next to the chunk.
func userPrompt(serializedContext, targetName string) string {
	return fmt.Sprintf("%s\n\nTranslate the chunk above into %s. Respond with the structured form only, nothing else.",
		serializedContext, targetName)
}

// reinforcePrompt wraps a rejected translation for a repair pass. The chunk
// embedded in the context is the previous translation itself; the findings
// tell the model what to fix instead of retranslating blind.
func reinforcePrompt(serializedContext, targetName string, issues []string) string {
	var b strings.Builder
	b.WriteString(serializedContext)
	b.WriteString("\n\nThe previous attempt was rejected:\n")
	for _, issue := range issues {
		b.WriteString("  - ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nThe chunk above is that rejected attempt. Correct it into proper %s, fixing every problem listed while following all rules. Respond with the structured form only, nothing else.",
		targetName)
	return b.String()
}

// languageDisplayName renders a language code for prompt text.
func languageDisplayName(code string) string {
	if code == "" || code == "auto" {
		return "the detected language"
	}
	return textutil.LanguageName(code)
}
