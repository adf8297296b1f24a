package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rlm-translate/internal/textutil"
)

// stripSpace removes all whitespace for coverage comparisons.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func endsAtSentence(t *testing.T, chunk string) {
	t.Helper()
	runes := []rune(chunk)
	require.NotEmpty(t, runes)
	last := runes[len(runes)-1]
	if isClosing(last) {
		for i := len(runes) - 1; i >= 0; i-- {
			if !isClosing(runes[i]) {
				last = runes[i]
				break
			}
		}
	}
	assert.True(t, isSentenceTerminator(last), "chunk should end at a sentence terminator, got %q", string(last))
}

func TestNewChunkerSanitizesInputs(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, 0, c.overlap)

	c = NewChunker(100, 500)
	assert.Equal(t, 100, c.chunkSize)
	assert.Equal(t, 10, c.overlap)
}

func TestSplitEmptyInput(t *testing.T) {
	c := NewChunker(2000, 0)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	c := NewChunker(2000, 150)
	chunks := c.Split("A short document. It easily fits in one chunk.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A short document. It easily fits in one chunk.", chunks[0].Text)
}

func TestSplitBreaksAtSentences(t *testing.T) {
	sentence := "The committee reviewed the proposal in detail before voting. "
	text := strings.Repeat(sentence, 140) // ~8700 chars
	c := NewChunker(2000, 0)

	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 4)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 2000, "chunk %d too large", i)
		if i < len(chunks)-1 {
			endsAtSentence(t, chunk.Text)
		}
	}

	// No content is lost or duplicated without overlap.
	var joined strings.Builder
	for _, chunk := range chunks {
		joined.WriteString(chunk.Text)
		joined.WriteString(" ")
	}
	assert.Equal(t, stripSpace(text), stripSpace(joined.String()))
}

func TestSplitKoreanSentences(t *testing.T) {
	sentence := "국회는 법률안을 심의하고 의결하였습니다. "
	text := strings.Repeat(sentence, 200)
	c := NewChunker(500, 0)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 500)
		if i < len(chunks)-1 {
			endsAtSentence(t, chunk.Text)
		}
	}
}

func TestSplitOverlapReplicatesContext(t *testing.T) {
	sentence := "Numbers keep the tokens distinct for overlap checks. "
	text := strings.Repeat(sentence, 60)
	c := NewChunker(600, 100)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Less(t, cur.OffsetStart, prev.OffsetEnd, "chunk %d should overlap its predecessor", i)
		assert.GreaterOrEqual(t, cur.OffsetStart, prev.OffsetEnd-100)
	}
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 5000)
	c := NewChunker(2000, 0)

	chunks := c.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2000, utf8.RuneCountInString(chunks[0].Text))
	assert.Equal(t, 2000, utf8.RuneCountInString(chunks[1].Text))
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[2].Text))
}

func TestSplitParagraphsIdentity(t *testing.T) {
	input := "First paragraph with a few words.\n\nSecond paragraph also short.\n\nThird one closes the document."
	c := NewChunker(2000, 0)

	chunks := c.SplitParagraphs(input)
	require.Len(t, chunks, 1)
	assert.Equal(t, input, chunks[0].Text)

	// Small chunk size forces one paragraph per chunk; joining them
	// reproduces the input.
	c = NewChunker(40, 0)
	chunks = c.SplitParagraphs(input)
	require.Len(t, chunks, 3)

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Text)
	}
	assert.Equal(t, input, strings.Join(parts, "\n\n"))
}

func TestSplitParagraphsOversizedParagraph(t *testing.T) {
	sentence := "Every sentence here is reasonably sized and ends cleanly. "
	paragraph := strings.TrimSpace(strings.Repeat(sentence, 140)) // ~8200 chars, single paragraph
	require.Greater(t, len(paragraph), 8000)

	c := NewChunker(2000, 0)
	var warnings []string
	c.OnWarning(func(msg string) { warnings = append(warnings, msg) })

	chunks := c.SplitParagraphs(paragraph)

	require.GreaterOrEqual(t, len(chunks), 4)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 2000, "chunk %d too large", i)
		if i < len(chunks)-1 {
			endsAtSentence(t, chunk.Text)
		}
	}

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "exceeds chunk size")
}

func TestSplitParagraphsGrouping(t *testing.T) {
	paragraphs := []string{
		strings.TrimSpace(strings.Repeat("alpha ", 20)),
		strings.TrimSpace(strings.Repeat("beta ", 20)),
		strings.TrimSpace(strings.Repeat("gamma ", 20)),
		strings.TrimSpace(strings.Repeat("delta ", 100)),
	}
	input := strings.Join(paragraphs, "\n\n")

	c := NewChunker(300, 0)
	chunks := c.SplitParagraphs(input)

	// The first two paragraphs fit together, the third starts a new
	// chunk, the oversized fourth goes through the sentence splitter.
	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Contains(t, chunks[0].Text, "alpha")
	assert.Contains(t, chunks[0].Text, "beta")
	assert.Contains(t, chunks[1].Text, "gamma")
	assert.Contains(t, chunks[len(chunks)-1].Text, "delta")
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One here. Two there! Three now? 네 번째입니다. Five")
	assert.Equal(t, []string{"One here.", "Two there!", "Three now?", "네 번째입니다.", "Five"}, sentences)
}

func TestSplitPatentClaims(t *testing.T) {
	text := `A device for brewing coffee is disclosed.

Claim 1: A brewing apparatus comprising a heating element and a reservoir.

Claim 2: The apparatus of claim 1, wherein the reservoir is removable.

(Claim 3) The apparatus of claim 2, further comprising a timer.`

	c := NewChunker(2000, 0)
	chunks := c.SplitPatent(text)

	require.Len(t, chunks, 4)
	assert.Contains(t, chunks[0].Text, "brewing coffee is disclosed")
	assert.True(t, strings.HasPrefix(chunks[1].Text, "Claim 1:"))
	assert.True(t, strings.HasPrefix(chunks[2].Text, "Claim 2:"))
	assert.True(t, strings.HasPrefix(chunks[3].Text, "(Claim 3)"))

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestSplitPatentWithoutClaims(t *testing.T) {
	text := "Just a description with no numbered parts. It reads like prose."
	c := NewChunker(2000, 0)

	chunks := c.SplitPatent(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestBatchCues(t *testing.T) {
	cues := make([]textutil.Cue, 25)
	for i := range cues {
		cues[i] = textutil.Cue{Index: i + 1, Start: "00:00:01,000", End: "00:00:02,000", Text: "line"}
	}

	c := NewChunker(2000, 0)
	chunks := c.BatchCues(cues, 10)

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, strings.Count(chunks[0].Text, "line"))
	assert.Equal(t, 10, strings.Count(chunks[1].Text, "line"))
	assert.Equal(t, 5, strings.Count(chunks[2].Text, "line"))
	assert.Equal(t, 9, strings.Count(chunks[0].Text, CueSeparator))
	assert.Equal(t, 4, strings.Count(chunks[2].Text, CueSeparator))
}

func TestBatchCuesDefaultsBatchSize(t *testing.T) {
	cues := make([]textutil.Cue, 12)
	for i := range cues {
		cues[i] = textutil.Cue{Index: i + 1, Text: "x"}
	}

	c := NewChunker(2000, 0)
	chunks := c.BatchCues(cues, 0)
	require.Len(t, chunks, 2)
}

func TestDetectContentType(t *testing.T) {
	c := NewChunker(2000, 0)

	srt := "1\n00:00:01,000 --> 00:00:02,000\nHello.\n"
	assert.Equal(t, "subtitle", string(c.DetectContentType(srt)))

	patent := "Claim 1: An apparatus comprising a widget, wherein the widget rotates."
	assert.Equal(t, "patent", string(c.DetectContentType(patent)))

	paper := "Abstract\n\nWe present a new method. The introduction follows."
	assert.Equal(t, "paper", string(c.DetectContentType(paper)))

	plain := "Once upon a time there was a quiet village by the sea."
	assert.Equal(t, "general", string(c.DetectContentType(plain)))
}
