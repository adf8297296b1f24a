package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	rlmerrors "rlm-translate/internal/errors"
)

const (
	geminiDefaultModel = "gemini-2.0-flash"
	geminiEndpoint     = "https://generativelanguage.googleapis.com/v1beta"
)

var geminiModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
}

// GeminiClient talks to the Google Gemini API.
type GeminiClient struct {
	client     *genai.Client
	apiKey     string
	httpClient *http.Client
}

// NewGeminiClient creates a client for the hosted Gemini API.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, rlmerrors.NewConfigurationError("providers.gemini.api_key", "API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *GeminiClient) Name() string {
	return "gemini"
}

// Complete sends one generation request. System messages become the
// system instruction; assistant turns map to the model role.
func (c *GeminiClient) Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error) {
	if model == "" {
		model = geminiDefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(params.Temperature)),
		TopP:        genai.Ptr(float32(params.TopP)),
	}
	if params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapGeminiError(model, err)
	}

	var content strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil {
				content.WriteString(part.Text)
			}
		}
		break
	}
	if content.Len() == 0 && len(resp.Candidates) == 0 {
		return nil, rlmerrors.NewProviderError("gemini", model, rlmerrors.ErrorCodeProviderServer,
			"response contained no candidates", nil)
	}

	completion := &Completion{
		Content: content.String(),
		Model:   model,
	}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}

// ListModels returns the static model catalog.
func (c *GeminiClient) ListModels(ctx context.Context) ([]string, error) {
	models := make([]string, len(geminiModels))
	copy(models, geminiModels)
	return models, nil
}

// TestConnection checks the models endpoint with the configured key.
func (c *GeminiClient) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s", geminiEndpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rlmerrors.NewProviderError("gemini", "", rlmerrors.ErrorCodeProviderConnection,
			err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return rlmerrors.ProviderErrorFromStatus("gemini", "", resp.StatusCode,
			"models endpoint rejected the request")
	}
	return nil
}

// wrapGeminiError classifies by message text; the SDK surfaces HTTP
// detail only in error strings.
func wrapGeminiError(model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rlmerrors.NewProviderError("gemini", model, rlmerrors.ErrorCodeProviderTimeout,
			"request timed out", err)
	}

	msg := strings.ToLower(err.Error())
	code := rlmerrors.ErrorCodeProviderConnection
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "quota"):
		code = rlmerrors.ErrorCodeProviderRateLimit
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthenticated"),
		strings.Contains(msg, "403"), strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "api key"):
		code = rlmerrors.ErrorCodeProviderAuth
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		code = rlmerrors.ErrorCodeModelNotFound
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"),
		strings.Contains(msg, "internal"), strings.Contains(msg, "unavailable"):
		code = rlmerrors.ErrorCodeProviderServer
	}
	return rlmerrors.NewProviderError("gemini", model, code, err.Error(), err)
}
