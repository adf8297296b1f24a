package llm

import (
	"context"
	"errors"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	rlmerrors "rlm-translate/internal/errors"
)

// OpenAIClient talks to the OpenAI chat completions API. It also backs
// the LM Studio client, which serves the same wire protocol locally.
type OpenAIClient struct {
	client *openai.Client
	name   string
	free   bool
}

// NewOpenAIClient creates a client for the hosted OpenAI API. baseURL
// overrides the endpoint when non-empty (proxies, compatible gateways).
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, rlmerrors.NewConfigurationError("providers.openai.api_key", "API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		name:   "openai",
	}, nil
}

// newCompatibleClient wraps an OpenAI-compatible server that needs no
// real credentials and bills nothing.
func newCompatibleClient(name, token, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		name:   name,
		free:   true,
	}
}

func (c *OpenAIClient) Name() string {
	return c.name
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
		TopP:        float32(params.TopP),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapOpenAIError(c.name, model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, rlmerrors.NewProviderError(c.name, model, rlmerrors.ErrorCodeProviderServer,
			"response contained no choices", nil)
	}

	inputTokens := resp.Usage.PromptTokens
	outputTokens := resp.Usage.CompletionTokens

	var cost float64
	if !c.free {
		cost = EstimateCost(model, inputTokens, outputTokens)
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        respModel,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
	}, nil
}

// ListModels returns the model identifiers the endpoint serves, sorted.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, wrapOpenAIError(c.name, "", err)
	}

	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// TestConnection verifies the endpoint answers with the configured key.
func (c *OpenAIClient) TestConnection(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return wrapOpenAIError(c.name, "", err)
	}
	return nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func wrapOpenAIError(provider, model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return rlmerrors.ProviderErrorFromStatus(provider, model, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return rlmerrors.ProviderErrorFromStatus(provider, model, reqErr.HTTPStatusCode, reqErr.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return rlmerrors.NewProviderError(provider, model, rlmerrors.ErrorCodeProviderTimeout,
			"request timed out", err)
	}

	return rlmerrors.NewProviderError(provider, model, rlmerrors.ErrorCodeProviderConnection,
		err.Error(), err)
}
