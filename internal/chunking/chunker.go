package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"rlm-translate/internal/state"
	"rlm-translate/internal/textutil"
)

const (
	// DefaultChunkSize is the target chunk size in characters.
	DefaultChunkSize = 2000
	// DefaultOverlap is the context overlap hint between adjacent chunks.
	DefaultOverlap = 150
	// DefaultCueBatchSize is how many subtitle cues share one translation call.
	DefaultCueBatchSize = 10
	// CueSeparator joins subtitle cues inside a batched chunk. The model is
	// instructed to echo it back so the batch can be split again.
	CueSeparator = "\n---\n"
)

// WarnFunc receives notices about degraded splits, such as a paragraph
// larger than the chunk size.
type WarnFunc func(message string)

// Chunker splits source documents into ordered, bounded chunks. Sizes and
// offsets are measured in runes, not bytes.
type Chunker struct {
	chunkSize int
	overlap   int
	warn      WarnFunc

	claimPattern     *regexp.Regexp
	paragraphPattern *regexp.Regexp
}

// NewChunker creates a chunker with the given size and overlap hints.
// Out-of-range values fall back to defaults.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 10
	}

	return &Chunker{
		chunkSize:        chunkSize,
		overlap:          overlap,
		claimPattern:     regexp.MustCompile(`(?i)claims?\s*\d+\s*[:.]|\(\s*claims?\s*\d+\s*\)`),
		paragraphPattern: regexp.MustCompile(`\n\s*\n`),
	}
}

// ChunkSize returns the configured target size.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// OnWarning registers a callback for split warnings.
func (c *Chunker) OnWarning(fn WarnFunc) {
	c.warn = fn
}

func (c *Chunker) warnf(format string, args ...interface{}) {
	if c.warn != nil {
		c.warn(fmt.Sprintf(format, args...))
	}
}

// Split chunks text by filling up to the chunk size and backing off to the
// nearest sentence terminator, then paragraph break, then a hard cut.
// Adjacent chunks overlap by up to the overlap hint.
func (c *Chunker) Split(text string) []state.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []state.Chunk
	pos := 0

	for pos < len(runes) {
		end := c.findBreakPoint(runes, pos)

		piece := strings.TrimSpace(string(runes[pos:end]))
		if piece != "" {
			chunks = append(chunks, state.Chunk{
				Index:       len(chunks),
				OffsetStart: pos,
				OffsetEnd:   end,
				Text:        piece,
			})
		}

		if end >= len(runes) {
			break
		}

		// Replicate up to overlap runes into the next chunk, keeping
		// forward progress.
		next := end - c.overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// findBreakPoint returns the end of the chunk starting at start: the last
// sentence boundary within the window, else the last paragraph break, else
// the window limit.
func (c *Chunker) findBreakPoint(runes []rune, start int) int {
	limit := start + c.chunkSize
	if limit >= len(runes) {
		return len(runes)
	}

	if end := lastSentenceBoundary(runes, start, limit); end > start {
		return end
	}

	for i := limit; i > start+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}

	return limit
}

// lastSentenceBoundary scans backward for a sentence terminator followed by
// whitespace or a run of closing quotes/parens. Returns start when the
// window has none.
func lastSentenceBoundary(runes []rune, start, limit int) int {
	for i := limit; i > start; i-- {
		if !isSentenceTerminator(runes[i-1]) {
			continue
		}
		if i >= len(runes) {
			return i
		}
		if unicode.IsSpace(runes[i]) {
			return i
		}
		if isClosing(runes[i]) {
			j := i
			for j < len(runes) && isClosing(runes[j]) {
				j++
			}
			// Keep the closers with this sentence unless they push
			// past the window.
			if j <= limit && (j >= len(runes) || unicode.IsSpace(runes[j])) {
				return j
			}
		}
	}
	return start
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '」', '』', '”', '’', '）':
		return true
	}
	return false
}

// SplitParagraphs chunks text on blank-line boundaries, accumulating whole
// paragraphs up to the chunk size. A paragraph larger than the chunk size
// is split at sentence terminators and reported through the warning
// callback.
func (c *Chunker) SplitParagraphs(text string) []state.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := c.paragraphPattern.Split(text, -1)

	var chunks []state.Chunk
	var group []string
	groupLen := 0
	groupStart, groupEnd := 0, 0

	// Incremental byte-to-rune cursor over the source text.
	searchByte := 0
	searchRune := 0
	locate := func(para string) (int, int) {
		rel := strings.Index(text[searchByte:], para)
		if rel < 0 {
			return searchRune, searchRune + utf8.RuneCountInString(para)
		}
		startByte := searchByte + rel
		startRune := searchRune + utf8.RuneCountInString(text[searchByte:startByte])
		endRune := startRune + utf8.RuneCountInString(para)
		searchByte = startByte + len(para)
		searchRune = endRune
		return startRune, endRune
	}

	flush := func() {
		if len(group) == 0 {
			return
		}
		chunks = append(chunks, state.Chunk{
			Index:       len(chunks),
			OffsetStart: groupStart,
			OffsetEnd:   groupEnd,
			Text:        strings.Join(group, "\n\n"),
		})
		group = nil
		groupLen = 0
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		size := utf8.RuneCountInString(paragraph)
		start, end := locate(paragraph)

		if size > c.chunkSize {
			flush()
			c.warnf("paragraph of %d characters exceeds chunk size %d, splitting at sentence boundaries", size, c.chunkSize)
			for _, piece := range c.packSentences(splitSentences(paragraph)) {
				chunks = append(chunks, state.Chunk{Index: len(chunks), Text: piece})
			}
			continue
		}

		if groupLen > 0 && groupLen+size+2 > c.chunkSize {
			flush()
		}
		if len(group) == 0 {
			groupStart = start
		}
		group = append(group, paragraph)
		groupLen += size + 2
		groupEnd = end
	}

	flush()
	return chunks
}

// splitSentences cuts text after each sentence terminator that is followed
// by whitespace or ends the text.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	last := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[last : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		last = i + 1
	}

	if tail := strings.TrimSpace(string(runes[last:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// packSentences greedily joins sentences into pieces of at most chunkSize.
// A single sentence larger than the chunk size is kept whole.
func (c *Chunker) packSentences(sentences []string) []string {
	var pieces []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		size := utf8.RuneCountInString(sentence)
		if currentLen > 0 && currentLen+size+1 > c.chunkSize {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			currentLen = 0
		}
		current = append(current, sentence)
		currentLen += size + 1
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// SplitPatent chunks a patent document on claim markers such as "Claim 1:"
// or "(Claim 2)", keeping each claim whole with its numbering. Text before
// the first claim is chunked with the default strategy. Documents without
// claim markers fall back to the default strategy entirely.
func (c *Chunker) SplitPatent(text string) []state.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	locs := c.claimPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return c.Split(text)
	}

	var chunks []state.Chunk

	if preamble := strings.TrimSpace(text[:locs[0][0]]); preamble != "" {
		for _, piece := range c.Split(preamble) {
			piece.Index = len(chunks)
			chunks = append(chunks, piece)
		}
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		claim := strings.TrimSpace(text[loc[0]:end])
		if claim == "" {
			continue
		}
		chunks = append(chunks, state.Chunk{
			Index:       len(chunks),
			OffsetStart: utf8.RuneCountInString(text[:loc[0]]),
			OffsetEnd:   utf8.RuneCountInString(text[:end]),
			Text:        claim,
		})
	}

	return chunks
}

// BatchCues groups subtitle cues into batches of batchSize. Each chunk's
// text is the cue texts joined with CueSeparator. Offsets are zero because
// cue text does not map to contiguous source spans.
func (c *Chunker) BatchCues(cues []textutil.Cue, batchSize int) []state.Chunk {
	if batchSize <= 0 {
		batchSize = DefaultCueBatchSize
	}

	var chunks []state.Chunk
	for start := 0; start < len(cues); start += batchSize {
		end := min(start+batchSize, len(cues))
		parts := make([]string, 0, end-start)
		for _, cue := range cues[start:end] {
			parts = append(parts, cue.Text)
		}
		chunks = append(chunks, state.Chunk{
			Index: len(chunks),
			Text:  strings.Join(parts, CueSeparator),
		})
	}
	return chunks
}

// detection samples at most this many bytes from the head of the document
const detectSampleSize = 4096

// DetectContentType guesses the document class from its content so a
// matching preset can be suggested.
func (c *Chunker) DetectContentType(text string) state.PresetType {
	if textutil.IsSRT(text) {
		return state.PresetSubtitle
	}

	sample := text
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}
	lower := strings.ToLower(sample)

	for _, marker := range []string{"claim", "wherein", "comprising"} {
		if strings.Contains(lower, marker) {
			return state.PresetPatent
		}
	}

	for _, marker := range []string{"abstract", "introduction", "conclusion", "citation"} {
		if strings.Contains(lower, marker) {
			return state.PresetPaper
		}
	}

	return state.PresetGeneral
}
