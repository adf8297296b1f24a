// Package llm provides the provider gateway: a uniform text-completion
// client over LM Studio, OpenAI, Gemini and Anthropic, with model routing
// per call role and usage accounting.
package llm

import (
	"context"
	"sync"
	"time"

	rlmerrors "rlm-translate/internal/errors"
)

// Message roles accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Params are the generation parameters passed on each call.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

// DefaultParams returns the parameters used when a preset supplies none.
func DefaultParams() Params {
	return Params{Temperature: 0.7, MaxTokens: 4096, TopP: 1.0}
}

// Validate checks the parameter ranges every provider accepts.
func (p Params) Validate() error {
	if p.Temperature < 0 || p.Temperature > 2 {
		return rlmerrors.NewValidationError("temperature", "must be between 0.0 and 2.0", p.Temperature)
	}
	if p.MaxTokens < 256 {
		return rlmerrors.NewValidationError("max_tokens", "must be at least 256", p.MaxTokens)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return rlmerrors.NewValidationError("top_p", "must be between 0.0 and 1.0", p.TopP)
	}
	return nil
}

// Completion is the normalized provider response.
type Completion struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Client is the transport a single provider implements.
type Client interface {
	// Name identifies the provider ("lmstudio", "openai", "gemini", "anthropic").
	Name() string

	// Complete sends one conversation and returns the normalized response.
	Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error)

	// ListModels returns the model identifiers the provider serves.
	ListModels(ctx context.Context) ([]string, error)

	// TestConnection verifies the provider is reachable with the
	// configured credentials.
	TestConnection(ctx context.Context) error
}

// ModelLoader is implemented by providers that manage model residency
// locally (LM Studio).
type ModelLoader interface {
	EnsureModelLoaded(ctx context.Context, modelID string) error
}

// CallRole says which engine component is making a provider call. The
// gateway routes each role to its configured model and books usage
// against the matching counters.
type CallRole string

const (
	CallRoot     CallRole = "root"
	CallSub      CallRole = "sub"
	CallVerifier CallRole = "verifier"
)

// CostTracker accumulates per-role call counts, token usage and cost for
// one session. Safe for concurrent use.
type CostTracker struct {
	mu sync.Mutex

	rootCalls     int
	subCalls      int
	verifierCalls int

	rootInputTokens      int
	rootOutputTokens     int
	subInputTokens       int
	subOutputTokens      int
	verifierInputTokens  int
	verifierOutputTokens int

	totalCost float64
	started   time.Time
}

// NewCostTracker starts a fresh tracker; the session clock starts now.
func NewCostTracker() *CostTracker {
	return &CostTracker{started: time.Now()}
}

// Record books one completed provider call against the given role.
func (t *CostTracker) Record(role CallRole, inputTokens, outputTokens int, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch role {
	case CallSub:
		t.subCalls++
		t.subInputTokens += inputTokens
		t.subOutputTokens += outputTokens
	case CallVerifier:
		t.verifierCalls++
		t.verifierInputTokens += inputTokens
		t.verifierOutputTokens += outputTokens
	default:
		t.rootCalls++
		t.rootInputTokens += inputTokens
		t.rootOutputTokens += outputTokens
	}
	t.totalCost += cost
}

// Reset clears all counters and restarts the session clock.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rootCalls, t.subCalls, t.verifierCalls = 0, 0, 0
	t.rootInputTokens, t.rootOutputTokens = 0, 0
	t.subInputTokens, t.subOutputTokens = 0, 0
	t.verifierInputTokens, t.verifierOutputTokens = 0, 0
	t.totalCost = 0
	t.started = time.Now()
}

// CostSummary is the exported view of a session's usage.
type CostSummary struct {
	RootCalls      int     `json:"root_calls"`
	SubCalls       int     `json:"sub_calls"`
	VerifierCalls  int     `json:"verifier_calls"`
	TotalCalls     int     `json:"total_calls"`
	RootTokens     int     `json:"root_tokens"`
	SubTokens      int     `json:"sub_tokens"`
	VerifierTokens int     `json:"verifier_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	TotalCost      float64 `json:"total_cost"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Summary snapshots the tracker.
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	rootTokens := t.rootInputTokens + t.rootOutputTokens
	subTokens := t.subInputTokens + t.subOutputTokens
	verifierTokens := t.verifierInputTokens + t.verifierOutputTokens

	return CostSummary{
		RootCalls:      t.rootCalls,
		SubCalls:       t.subCalls,
		VerifierCalls:  t.verifierCalls,
		TotalCalls:     t.rootCalls + t.subCalls + t.verifierCalls,
		RootTokens:     rootTokens,
		SubTokens:      subTokens,
		VerifierTokens: verifierTokens,
		TotalTokens:    rootTokens + subTokens + verifierTokens,
		TotalCost:      t.totalCost,
		ElapsedSeconds: time.Since(t.started).Seconds(),
	}
}
