package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rlmerrors "rlm-translate/internal/errors"
	"rlm-translate/internal/logging"
)

const (
	defaultLMStudioBaseURL = "http://localhost:1234/v1"

	lmStudioListTimeout   = 10 * time.Second
	lmStudioTestTimeout   = 5 * time.Second
	lmStudioUnloadTimeout = 30 * time.Second
	lmStudioLoadTimeout   = 120 * time.Second
)

// LMStudioClient talks to a local LM Studio server. Chat completions go
// through the OpenAI-compatible endpoint; model residency is managed
// through the server's load/unload endpoints.
type LMStudioClient struct {
	api        *OpenAIClient
	httpClient *http.Client
	mgmtURL    string
	log        logging.Logger
}

// NewLMStudioClient creates a client for the server at baseURL (the
// OpenAI-compatible root, ".../v1"). managementURL is the server root for
// load/unload calls; when empty it is derived from baseURL.
func NewLMStudioClient(baseURL, managementURL string, log logging.Logger) *LMStudioClient {
	if log == nil {
		log = logging.NewNop()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultLMStudioBaseURL
	}

	mgmtURL := strings.TrimRight(strings.TrimSpace(managementURL), "/")
	if mgmtURL == "" {
		mgmtURL = strings.TrimSuffix(baseURL, "/v1")
	}

	return &LMStudioClient{
		// LM Studio ignores the bearer token but the wire format requires one.
		api:        newCompatibleClient("lmstudio", "lm-studio", baseURL),
		httpClient: &http.Client{},
		mgmtURL:    mgmtURL,
		log:        log.WithComponent("lmstudio"),
	}
}

func (c *LMStudioClient) Name() string {
	return "lmstudio"
}

// Complete sends a chat completion to the local server. An empty or
// "auto" model resolves to the first loaded model so the request always
// names a concrete one.
func (c *LMStudioClient) Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error) {
	if model == "" || model == "auto" {
		loaded, err := c.LoadedModels(ctx)
		if err == nil && len(loaded) > 0 {
			model = loaded[0]
		}
	}
	return c.api.Complete(ctx, messages, model, params)
}

// ListModels returns the models the server currently serves.
func (c *LMStudioClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, lmStudioListTimeout)
	defer cancel()
	return c.api.ListModels(ctx)
}

// TestConnection checks that the server answers at all.
func (c *LMStudioClient) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, lmStudioTestTimeout)
	defer cancel()
	return c.api.TestConnection(ctx)
}

// LoadedModels returns the models currently resident in the server.
func (c *LMStudioClient) LoadedModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, lmStudioListTimeout)
	defer cancel()
	return c.api.ListModels(ctx)
}

// EnsureModelLoaded makes sure modelID is resident, unloading whatever
// currently occupies the server first. Empty and "auto" accept whatever
// is already loaded.
func (c *LMStudioClient) EnsureModelLoaded(ctx context.Context, modelID string) error {
	if modelID == "" || modelID == "auto" {
		return nil
	}

	loaded, err := c.LoadedModels(ctx)
	if err != nil {
		return err
	}
	for _, id := range loaded {
		if id == modelID {
			c.log.Debug("model already loaded", "model", modelID)
			return nil
		}
	}

	if len(loaded) > 0 {
		c.log.Info("switching models", "unloading", strings.Join(loaded, ","), "loading", modelID)
		for _, id := range loaded {
			if err := c.unloadModel(ctx, id); err != nil {
				c.log.Warn("failed to unload model", "model", id, "error", err.Error())
			}
		}
	}

	return c.loadModel(ctx, modelID)
}

func (c *LMStudioClient) loadModel(ctx context.Context, modelID string) error {
	ctx, cancel := context.WithTimeout(ctx, lmStudioLoadTimeout)
	defer cancel()

	status, body, err := c.postJSON(ctx, "/v1/models/load", map[string]string{"model": modelID})
	if err != nil {
		return rlmerrors.NewProviderError("lmstudio", modelID, rlmerrors.ErrorCodeProviderConnection,
			fmt.Sprintf("load request failed: %v", err), err)
	}
	if status != http.StatusOK {
		return rlmerrors.ProviderErrorFromStatus("lmstudio", modelID, status,
			fmt.Sprintf("load failed: %s", strings.TrimSpace(string(body))))
	}

	c.log.Info("model loaded", "model", modelID)
	return nil
}

// unloadModel asks the server to drop a model, falling back to the
// DELETE form older servers expose.
func (c *LMStudioClient) unloadModel(ctx context.Context, modelID string) error {
	ctx, cancel := context.WithTimeout(ctx, lmStudioUnloadTimeout)
	defer cancel()

	status, _, err := c.postJSON(ctx, "/v1/models/unload", map[string]string{"model": modelID})
	if err == nil && status == http.StatusOK {
		c.log.Debug("model unloaded", "model", modelID)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.mgmtURL+"/v1/models/"+modelID, nil)
	if err != nil {
		return fmt.Errorf("failed to create unload request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unload request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close response body", "error", err.Error())
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unload of %q returned status %d", modelID, resp.StatusCode)
	}
	c.log.Debug("model unloaded", "model", modelID)
	return nil
}

func (c *LMStudioClient) postJSON(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mgmtURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close response body", "error", err.Error())
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
