package textutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Cue is one SRT subtitle block.
type Cue struct {
	Index int    `json:"index"`
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

var (
	srtHeaderRegexp = regexp.MustCompile(`(?m)^\d+\s*\n\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)
	srtTimingRegexp = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)
)

// IsSRT reports whether text looks like an SRT subtitle file.
func IsSRT(text string) bool {
	return srtHeaderRegexp.MatchString(strings.TrimSpace(text))
}

// ParseSRT splits an SRT document into cues. Malformed blocks are skipped;
// an error is returned only when nothing could be parsed from a non-empty
// input.
func ParseSRT(text string) ([]Cue, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	blocks := strings.Split(crRegexp.ReplaceAllString(trimmed, "\n"), "\n\n")
	cues := make([]Cue, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		m := srtTimingRegexp.FindStringSubmatch(strings.TrimSpace(lines[1]))
		if m == nil {
			continue
		}
		cues = append(cues, Cue{
			Index: index,
			Start: m[1],
			End:   m[2],
			Text:  strings.Join(lines[2:], "\n"),
		})
	}

	if len(cues) == 0 {
		return nil, fmt.Errorf("no subtitle blocks found")
	}
	return cues, nil
}

// FormatSRT renders cues back into SRT form. ParseSRT and FormatSRT are
// inverse on well-formed inputs, modulo the trailing newline.
func FormatSRT(cues []Cue) string {
	if len(cues) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(cues))
	for _, cue := range cues {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s", cue.Index, cue.Start, cue.End, cue.Text))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
