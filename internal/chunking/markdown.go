package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"rlm-translate/internal/state"
)

var atxHeadingRegexp = regexp.MustCompile(`(?m)^#{1,6} \S`)

// IsMarkdown reports whether text carries enough markdown structure for
// heading-aware chunking. Two headings are required so a stray hash in
// plain prose does not reroute the document.
func IsMarkdown(text string) bool {
	return len(atxHeadingRegexp.FindAllStringIndex(text, 2)) >= 2
}

// section is a raw markdown slice starting at a heading.
type section struct {
	startByte int
	endByte   int
	text      string
}

// SplitMarkdownSections chunks markdown at heading boundaries, grouping
// adjacent sections up to the chunk size. Documents without headings fall
// back to paragraph splitting. Section text keeps its raw markdown so
// formatting survives translation.
func (c *Chunker) SplitMarkdownSections(input string) []state.Chunk {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	source := []byte(input)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var cuts []int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			if heading.Lines().Len() > 0 {
				seg := heading.Lines().At(0)
				cuts = append(cuts, lineStart(source, seg.Start))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if len(cuts) == 0 {
		return c.SplitParagraphs(input)
	}

	sections := cutSections(input, cuts)
	return c.packSections(input, sections)
}

// lineStart walks back from pos to the beginning of its line so the
// heading markers are kept with the section.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// cutSections slices the input at the given byte offsets, including any
// leading text before the first heading.
func cutSections(input string, cuts []int) []section {
	var sections []section
	appendSection := func(startByte, endByte int) {
		piece := strings.TrimSpace(input[startByte:endByte])
		if piece == "" {
			return
		}
		sections = append(sections, section{startByte: startByte, endByte: endByte, text: piece})
	}

	if cuts[0] > 0 {
		appendSection(0, cuts[0])
	}
	for i, start := range cuts {
		end := len(input)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		appendSection(start, end)
	}
	return sections
}

// packSections groups sections into chunks of at most chunkSize. A single
// oversized section is re-split with the default strategy.
func (c *Chunker) packSections(input string, sections []section) []state.Chunk {
	var chunks []state.Chunk
	var group []section
	groupLen := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		parts := make([]string, 0, len(group))
		for _, s := range group {
			parts = append(parts, s.text)
		}
		chunks = append(chunks, state.Chunk{
			Index:       len(chunks),
			OffsetStart: utf8.RuneCountInString(input[:group[0].startByte]),
			OffsetEnd:   utf8.RuneCountInString(input[:group[len(group)-1].endByte]),
			Text:        strings.Join(parts, "\n\n"),
		})
		group = nil
		groupLen = 0
	}

	for _, s := range sections {
		size := utf8.RuneCountInString(s.text)

		if size > c.chunkSize {
			flush()
			base := utf8.RuneCountInString(input[:s.startByte])
			for _, piece := range c.Split(s.text) {
				piece.Index = len(chunks)
				piece.OffsetStart += base
				piece.OffsetEnd += base
				chunks = append(chunks, piece)
			}
			continue
		}

		if groupLen > 0 && groupLen+size+2 > c.chunkSize {
			flush()
		}
		group = append(group, s)
		groupLen += size + 2
	}

	flush()
	return chunks
}
