// Package translator implements the sub-translator agent: one chunk in, one
// structured translation out. All document knowledge reaches the model
// through the context package built from the orchestrator's state snapshot,
// so the sub-translator itself holds no per-document state between calls.
package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rlm-translate/internal/contextpkg"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/state"
)

// TokenUsage is the provider accounting for a single call.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Result is the outcome of one sub-translation call. Term candidates are
// passed through verbatim for root review; nothing is promoted here.
type Result struct {
	Translation    string            `json:"translation"`
	TermCandidates map[string]string `json:"term_candidates,omitempty"`
	Comments       string            `json:"comments,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	Success        bool              `json:"success"`
	Duration       time.Duration     `json:"duration"`
	Usage          TokenUsage        `json:"token_usage"`
}

// SubTranslator turns chunks into translations through the provider gateway,
// bound to one preset and target language for the life of a run.
type SubTranslator struct {
	gateway    *llm.Gateway
	preset     *preset.Preset
	targetLang string
	builder    *contextpkg.Builder
	log        logging.Logger
}

// New builds a sub-translator. A nil logger disables logging.
func New(gw *llm.Gateway, p *preset.Preset, targetLang string, log logging.Logger) *SubTranslator {
	if log == nil {
		log = logging.NewNop()
	}
	return &SubTranslator{
		gateway:    gw,
		preset:     p,
		targetLang: targetLang,
		builder:    contextpkg.NewBuilder(0),
		log:        log.WithComponent("sub"),
	}
}

// Translate renders one chunk into the target language. Provider failures
// return both the error and a non-success result carrying the duration, so
// the caller can book the attempt either way.
func (t *SubTranslator) Translate(ctx context.Context, chunkText string, chunkIndex int, st *state.TranslationState) (*Result, error) {
	return t.run(ctx, chunkText, chunkIndex, st, nil)
}

// Reinforce replays a rejected translation through the model with the
// verifier findings spelled out. The rejected text itself becomes the chunk
// so the model corrects it in place rather than translating from scratch.
func (t *SubTranslator) Reinforce(ctx context.Context, previous string, chunkIndex int, st *state.TranslationState, issues []string) (*Result, error) {
	if len(issues) == 0 {
		issues = []string{"output rejected by format validation"}
	}
	return t.run(ctx, previous, chunkIndex, st, issues)
}

func (t *SubTranslator) run(ctx context.Context, chunkText string, chunkIndex int, st *state.TranslationState, issues []string) (*Result, error) {
	start := time.Now()
	targetName := languageDisplayName(t.targetLang)

	pkg := t.builder.Build(st.Snapshot(), chunkText, chunkIndex, nil)

	user := userPrompt(pkg.Serialize(), targetName)
	if len(issues) > 0 {
		user = reinforcePrompt(pkg.Serialize(), targetName, issues)
	}
	messages := []llm.Message{
		llm.SystemMessage(systemPrompt(t.preset, targetName)),
		llm.UserMessage(user),
	}
	params := llm.Params{
		Temperature: t.preset.LLMParams.Temperature,
		MaxTokens:   t.preset.LLMParams.MaxTokens,
		TopP:        t.preset.LLMParams.TopP,
	}

	completion, err := t.gateway.Complete(ctx, llm.CallSub, messages, params)
	if err != nil {
		t.log.Warn("chunk translation failed", "chunk_index", chunkIndex, "error", err)
		return &Result{
			Warnings: []string{fmt.Sprintf("translation failed: %v", err)},
			Duration: time.Since(start),
		}, err
	}

	res := &Result{
		Success:  true,
		Duration: time.Since(start),
		Usage: TokenUsage{
			InputTokens:  completion.InputTokens,
			OutputTokens: completion.OutputTokens,
			Cost:         completion.Cost,
		},
	}

	parsed, perr := parseStructured(completion.Content)
	if perr != nil {
		res.Translation = strings.TrimSpace(completion.Content)
		res.Warnings = append(res.Warnings, "structured parsing failed")
		t.log.Debug("falling back to raw content", "chunk_index", chunkIndex, "error", perr)
		return res, nil
	}

	res.Translation = strings.TrimSpace(parsed.TranslatedText)
	res.TermCandidates = parsed.TermCandidates
	res.Comments = strings.TrimSpace(parsed.Comments)
	return res, nil
}
