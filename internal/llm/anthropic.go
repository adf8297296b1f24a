package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	rlmerrors "rlm-translate/internal/errors"
)

const anthropicDefaultModel = "claude-sonnet-4-20250514"

// anthropicModels is the static model catalog; the Messages API has no
// free listing endpoint.
var anthropicModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-haiku-20240307",
}

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client for the hosted Anthropic API.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, rlmerrors.NewConfigurationError("providers.anthropic.api_key", "API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Complete sends one message exchange. System messages move into the
// dedicated system field the Messages API expects.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error) {
	if model == "" {
		model = anthropicDefaultModel
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(params.MaxTokens),
		Temperature: anthropic.Float(params.Temperature),
		TopP:        anthropic.Float(params.TopP),
	}

	var system strings.Builder
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	req.Messages = converted
	if system.Len() > 0 {
		req.System = []anthropic.TextBlockParam{{Type: "text", Text: system.String()}}
	}

	msg, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return nil, wrapAnthropicError(model, err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		content.WriteString(block.Text)
	}

	return &Completion{
		Content:      content.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// ListModels returns the static model catalog.
func (c *AnthropicClient) ListModels(ctx context.Context) ([]string, error) {
	models := make([]string, len(anthropicModels))
	copy(models, anthropicModels)
	return models, nil
}

// TestConnection sends a minimal one-token request; any authenticated
// reply, including a validation rejection, proves the API is reachable.
func (c *AnthropicClient) TestConnection(ctx context.Context) error {
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(anthropicDefaultModel),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	if err != nil {
		return wrapAnthropicError(anthropicDefaultModel, err)
	}
	return nil
}

func wrapAnthropicError(model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return rlmerrors.ProviderErrorFromStatus("anthropic", model, apiErr.StatusCode, apiErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return rlmerrors.NewProviderError("anthropic", model, rlmerrors.ErrorCodeProviderTimeout,
			"request timed out", err)
	}
	return rlmerrors.NewProviderError("anthropic", model, rlmerrors.ErrorCodeProviderConnection,
		err.Error(), err)
}
