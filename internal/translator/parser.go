package translator

import (
	"encoding/json"
	"strings"

	rlmerrors "rlm-translate/internal/errors"
)

// structuredResponse is the strict schema the sub model is asked to emit.
type structuredResponse struct {
	TranslatedText string            `json:"translated_text"`
	TermCandidates map[string]string `json:"term_candidates"`
	Comments       string            `json:"comments"`
}

// parseStructured decodes the response schema from raw model output. Models
// wrap the payload in a fenced code block more often than not, and some emit
// prose around it, so extraction tries the fence first and falls back to the
// first balanced brace expression anywhere in the content.
func parseStructured(raw string) (*structuredResponse, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, rlmerrors.NewParseError("empty response", raw, nil)
	}

	candidate := trimmed
	if fenced := extractFencedBlock(trimmed); fenced != "" {
		candidate = fenced
	}

	payload, ok := findBraceExpression(candidate)
	if !ok {
		payload, ok = findBraceExpression(trimmed)
	}
	if !ok {
		return nil, rlmerrors.NewParseError("no structured block in response", raw, nil)
	}

	var resp structuredResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, rlmerrors.NewParseError("structured block does not match schema", raw, err)
	}
	return &resp, nil
}

// extractFencedBlock returns the body of the first complete fenced code
// block with any info string ("json") dropped, or "" when no fence closes.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	body := rest[:end]
	if nl := strings.Index(body, "\n"); nl != -1 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	return strings.TrimSpace(body)
}

// findBraceExpression scans for the first balanced top-level brace
// expression, honoring string literals and escapes so braces inside the
// translated text do not derail the scan.
func findBraceExpression(input string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}
