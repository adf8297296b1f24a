package verify

import (
	"context"
	"fmt"
	"strings"

	"rlm-translate/internal/llm"
)

const reviewSystemPrompt = "You are a translation quality reviewer. " +
	"Reply with one short sentence assessing whether tone and meaning are preserved. " +
	"Do not rewrite the translation."

// modelReview asks the verifier model for a one-line quality note after the
// rule pass has failed. The note lands in warnings; transport failures fall
// back to a generic warning and never alter the rule verdict.
func (v *Verifier) modelReview(ctx context.Context, res *Result, translation, original string) {
	user := fmt.Sprintf("Original:\n%s\n\nTranslation:\n%s\n\nRule findings: %d. Assess overall quality in one sentence.",
		original, translation, len(res.Errors))
	messages := []llm.Message{
		llm.SystemMessage(reviewSystemPrompt),
		llm.UserMessage(user),
	}
	params := llm.Params{Temperature: 0, MaxTokens: 256, TopP: 1.0}

	completion, err := v.gateway.Complete(ctx, llm.CallVerifier, messages, params)
	if err != nil {
		v.log.Debug("model review unavailable", "error", err)
		if len(res.Warnings) == 0 {
			res.addWarning(KindTone, "No specific quality issues detected, but could benefit from model review")
		}
		return
	}

	note := strings.TrimSpace(completion.Content)
	if i := strings.IndexByte(note, '\n'); i >= 0 {
		note = strings.TrimSpace(note[:i])
	}
	if note != "" {
		res.addWarning(KindTone, "Model review: "+note)
	}
}
