package contextpkg

import (
	"fmt"
	"strings"
)

// Serialize renders the package in its fixed textual form for prompt
// embedding. Section order is fixed; term maps are emitted in sorted
// key order, so identical packages serialize identically. Sections with
// no content are omitted entirely.
func (p *Package) Serialize() string {
	var b strings.Builder

	b.WriteString("=== CONTEXT PACKAGE ===\n\n")

	b.WriteString("RULES:\n")
	for _, rule := range p.Rules {
		fmt.Fprintf(&b, "  - %s\n", rule)
	}
	b.WriteString("\n")

	writeTermSection(&b, "GLOSSARY (Hard - Must Use):", p.HardGlossary)
	writeTermSection(&b, "GLOSSARY (Soft - Preferred):", p.SoftGlossary)
	writeTermSection(&b, "CONFIRMED TERMS:", p.ConfirmedTerms)
	writeTermSection(&b, "PROPER NOUNS:", p.ProperNouns)
	writeTermSection(&b, "REFERENCE SIGNS:", p.ReferenceSigns)

	b.WriteString("STYLE GUIDE:\n")
	fmt.Fprintf(&b, "  - Tone: %s\n", orDefault(p.StyleGuide.Tone, "neutral"))
	fmt.Fprintf(&b, "  - Politeness: %s\n", orDefault(p.StyleGuide.Politeness, "default"))
	fmt.Fprintf(&b, "  - Sentence Length: %s\n", orDefault(p.StyleGuide.SentenceLength, "balanced"))
	if len(p.StyleGuide.ForbiddenWords) > 0 {
		fmt.Fprintf(&b, "  - Forbidden Words: %s\n", strings.Join(p.StyleGuide.ForbiddenWords, ", "))
	}
	if len(p.StyleGuide.ForbiddenPhrases) > 0 {
		fmt.Fprintf(&b, "  - Forbidden Phrases: %s\n", strings.Join(p.StyleGuide.ForbiddenPhrases, ", "))
	}
	for _, rule := range p.StyleGuide.CustomRules {
		fmt.Fprintf(&b, "  - Rule: %s\n", rule)
	}
	b.WriteString("\n")

	b.WriteString("LOCAL CONTEXT:\n")
	fmt.Fprintf(&b, "  - Document Type: %s\n", orDefault(p.DocumentType, "general"))
	fmt.Fprintf(&b, "  - Recent Translations: %d chunks\n", len(p.LocalContext.RecentTranslations))
	fmt.Fprintf(&b, "  - Entity Mappings: %d entities\n", len(p.LocalContext.EntityTranslations))
	b.WriteString("\n")

	if len(p.LocalContext.RecentTranslations) > 0 {
		b.WriteString("RECENT TRANSLATIONS:\n")
		for i, translation := range p.LocalContext.RecentTranslations {
			if i < len(p.LocalContext.RecentOriginals) {
				fmt.Fprintf(&b, "  [%d] Source: %s\n", i+1, p.LocalContext.RecentOriginals[i])
				fmt.Fprintf(&b, "      Target: %s\n", translation)
			} else {
				fmt.Fprintf(&b, "  [%d] Target: %s\n", i+1, translation)
			}
		}
		b.WriteString("\n")
	}

	if len(p.LocalContext.ContextSummaries) > 0 {
		b.WriteString("CONTEXT SUMMARIES:\n")
		for _, summary := range p.LocalContext.ContextSummaries {
			fmt.Fprintf(&b, "  - %s\n", summary)
		}
		b.WriteString("\n")
	}

	writeTermSection(&b, "ENTITY TRANSLATIONS:", p.LocalContext.EntityTranslations)

	b.WriteString("CURRENT CHUNK TO TRANSLATE:\n")
	fmt.Fprintf(&b, "  - Index: %d\n", p.ChunkIndex)
	fmt.Fprintf(&b, "  - Text: %s\n", p.Chunk)
	b.WriteString("\n")

	b.WriteString("=== END OF CONTEXT PACKAGE ===\n")

	return b.String()
}

func writeTermSection(b *strings.Builder, header string, terms map[string]string) {
	if len(terms) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for _, src := range sortedKeys(terms) {
		fmt.Fprintf(b, "  - %s → %s\n", src, terms[src])
	}
	b.WriteString("\n")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
