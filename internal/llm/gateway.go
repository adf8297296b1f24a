package llm

import (
	"context"
	"fmt"
	"time"

	"rlm-translate/internal/config"
	rlmerrors "rlm-translate/internal/errors"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/retry"
)

// DefaultRequestTimeout bounds a single provider call.
const DefaultRequestTimeout = 120 * time.Second

// Gateway is the single entry point for provider calls. It routes each
// call role to its configured model, bounds every call with a timeout,
// retries rate-limited requests once with backoff, and books usage into
// a session cost tracker.
//
// Transport failures other than rate limits surface immediately; the
// round loop owns that failure budget through its repair path.
type Gateway struct {
	client  Client
	log     logging.Logger
	tracker *CostTracker
	retrier *retry.Retrier
	timeout time.Duration

	rootModel     string
	subModel      string
	verifierModel string
	autoLoad      bool
}

// NewGateway builds the provider selected by cfg and wraps it.
func NewGateway(cfg *config.Config, log logging.Logger) (*Gateway, error) {
	if log == nil {
		log = logging.NewNop()
	}
	client, err := newClientFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewGatewayWithClient(client, cfg, log), nil
}

// NewGatewayWithClient wraps an already constructed provider client.
func NewGatewayWithClient(client Client, cfg *config.Config, log logging.Logger) *Gateway {
	if log == nil {
		log = logging.NewNop()
	}

	timeout := DefaultRequestTimeout
	if cfg.Engine.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Engine.RequestTimeoutSeconds) * time.Second
	}

	return &Gateway{
		client:  client,
		log:     log.WithComponent("gateway"),
		tracker: NewCostTracker(),
		retrier: retry.New(&retry.Config{
			MaxAttempts:     2,
			InitialDelay:    time.Second,
			MaxDelay:        30 * time.Second,
			Multiplier:      2.0,
			RandomizeFactor: 0.1,
			RetryIf:         rlmerrors.IsRateLimited,
		}),
		timeout:       timeout,
		rootModel:     cfg.Engine.RootModel,
		subModel:      cfg.Engine.SubModel,
		verifierModel: cfg.Engine.VerifierModel,
		autoLoad:      cfg.Providers.LMStudio.AutoLoadModels,
	}
}

func newClientFromConfig(cfg *config.Config, log logging.Logger) (Client, error) {
	switch cfg.Providers.Default {
	case "openai":
		return NewOpenAIClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL)
	case "anthropic":
		return NewAnthropicClient(cfg.Providers.Anthropic.APIKey)
	case "gemini":
		return NewGeminiClient(cfg.Providers.Gemini.APIKey)
	case "lmstudio":
		return NewLMStudioClient(cfg.Providers.LMStudio.BaseURL, cfg.Providers.LMStudio.ManagementURL, log), nil
	default:
		return nil, rlmerrors.NewConfigurationError("providers.default",
			fmt.Sprintf("unknown provider %q", cfg.Providers.Default))
	}
}

// Provider returns the active provider's name.
func (g *Gateway) Provider() string {
	return g.client.Name()
}

// ModelFor returns the model a call role resolves to. An unset verifier
// model falls back to the sub-translator model.
func (g *Gateway) ModelFor(role CallRole) string {
	switch role {
	case CallSub:
		return g.subModel
	case CallVerifier:
		if g.verifierModel != "" {
			return g.verifierModel
		}
		return g.subModel
	default:
		return g.rootModel
	}
}

// Complete sends one completion for the given role and records its usage.
func (g *Gateway) Complete(ctx context.Context, role CallRole, messages []Message, params Params) (*Completion, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, rlmerrors.NewValidationError("messages", "at least one message is required", nil)
	}

	model := g.ModelFor(role)
	start := time.Now()

	var completion *Completion
	result := g.retrier.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.Complete(callCtx, messages, model, params)
		if err != nil {
			return err
		}
		completion = resp
		return nil
	})
	if result.Err != nil {
		g.log.Warn("provider call failed",
			"role", string(role), "model", model,
			"attempts", result.Attempts, "error", result.Err.Error())
		return nil, result.Err
	}

	g.tracker.Record(role, completion.InputTokens, completion.OutputTokens, completion.Cost)
	g.log.Debug("provider call completed",
		"role", string(role), "model", completion.Model,
		"input_tokens", completion.InputTokens, "output_tokens", completion.OutputTokens,
		"cost", completion.Cost, "elapsed", time.Since(start).String())

	return completion, nil
}

// ListModels returns the active provider's models.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	return g.client.ListModels(ctx)
}

// TestConnection verifies the active provider is reachable.
func (g *Gateway) TestConnection(ctx context.Context) error {
	return g.client.TestConnection(ctx)
}

// EnsureModelLoaded asks a local provider to make the model resident.
// Hosted providers always have their models available, so this is a
// no-op for them.
func (g *Gateway) EnsureModelLoaded(ctx context.Context, modelID string) error {
	loader, ok := g.client.(ModelLoader)
	if !ok {
		return nil
	}
	return loader.EnsureModelLoaded(ctx, modelID)
}

// EnsureSessionModels preloads the models a session will use. Only
// meaningful for local providers with auto-load enabled.
func (g *Gateway) EnsureSessionModels(ctx context.Context) error {
	if _, ok := g.client.(ModelLoader); !ok || !g.autoLoad {
		return nil
	}

	seen := make(map[string]bool)
	for _, role := range []CallRole{CallRoot, CallSub, CallVerifier} {
		model := g.ModelFor(role)
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		if err := g.EnsureModelLoaded(ctx, model); err != nil {
			return fmt.Errorf("ensuring model %q: %w", model, err)
		}
	}
	return nil
}

// Costs snapshots the session usage.
func (g *Gateway) Costs() CostSummary {
	return g.tracker.Summary()
}

// ResetCosts starts a fresh usage session.
func (g *Gateway) ResetCosts() {
	g.tracker.Reset()
}
