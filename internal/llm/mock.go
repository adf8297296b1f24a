package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScriptedResponse is one queued reply for a ScriptedClient. When Err is
// set the call fails with it; otherwise Content is returned. Zero token
// counts are filled with a rough estimate from the text lengths.
type ScriptedResponse struct {
	Content      string
	Err          error
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// ScriptedCall records one Complete invocation received by a ScriptedClient.
type ScriptedCall struct {
	Messages []Message
	Model    string
	Params   Params
}

// ScriptedClient implements Client for testing. It replays queued
// responses in order and records every call it receives.
type ScriptedClient struct {
	ProviderName  string
	Models        []string
	ConnectionErr error
	ResponseDelay time.Duration

	mu    sync.Mutex
	queue []ScriptedResponse
	calls []ScriptedCall
}

// NewScriptedClient creates a scripted client that answers with the
// given responses in order. Calls past the end of the queue fail.
func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{
		ProviderName: "scripted",
		Models:       []string{"mock-model-1.0"},
		queue:        append([]ScriptedResponse(nil), responses...),
	}
}

// Enqueue appends further responses to the script.
func (s *ScriptedClient) Enqueue(responses ...ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, responses...)
}

// Name implements the Client interface.
func (s *ScriptedClient) Name() string {
	return s.ProviderName
}

// Complete implements the Client interface.
func (s *ScriptedClient) Complete(ctx context.Context, messages []Message, model string, params Params) (*Completion, error) {
	// Simulate processing delay
	if s.ResponseDelay > 0 {
		select {
		case <-time.After(s.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recorded := ScriptedCall{
		Messages: append([]Message(nil), messages...),
		Model:    model,
		Params:   params,
	}
	s.calls = append(s.calls, recorded)

	if len(s.queue) == 0 {
		return nil, fmt.Errorf("scripted client: no response queued for call %d", len(s.calls))
	}
	next := s.queue[0]
	s.queue = s.queue[1:]

	if next.Err != nil {
		return nil, next.Err
	}

	inputTokens := next.InputTokens
	if inputTokens == 0 {
		var promptLen int
		for _, msg := range messages {
			promptLen += len(msg.Content)
		}
		inputTokens = promptLen / 4 // Rough token estimate
	}
	outputTokens := next.OutputTokens
	if outputTokens == 0 {
		outputTokens = len(next.Content) / 4
	}

	return &Completion{
		Content:      next.Content,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         next.Cost,
	}, nil
}

// ListModels implements the Client interface.
func (s *ScriptedClient) ListModels(ctx context.Context) ([]string, error) {
	if s.ConnectionErr != nil {
		return nil, s.ConnectionErr
	}
	return append([]string(nil), s.Models...), nil
}

// TestConnection implements the Client interface.
func (s *ScriptedClient) TestConnection(ctx context.Context) error {
	return s.ConnectionErr
}

// Calls returns a copy of the calls received so far.
func (s *ScriptedClient) Calls() []ScriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScriptedCall(nil), s.calls...)
}

// CallCount returns how many Complete calls were received.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Remaining returns how many scripted responses are still queued.
func (s *ScriptedClient) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ScriptedLoader is a ScriptedClient that also manages model residency,
// standing in for LM Studio in gateway tests.
type ScriptedLoader struct {
	*ScriptedClient
	LoadErr error

	mu     sync.Mutex
	loaded []string
}

// NewScriptedLoader creates a scripted client that implements ModelLoader.
func NewScriptedLoader(responses ...ScriptedResponse) *ScriptedLoader {
	return &ScriptedLoader{ScriptedClient: NewScriptedClient(responses...)}
}

// EnsureModelLoaded implements the ModelLoader interface.
func (s *ScriptedLoader) EnsureModelLoaded(ctx context.Context, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return s.LoadErr
	}
	s.loaded = append(s.loaded, modelID)
	return nil
}

// Loaded returns the model IDs passed to EnsureModelLoaded, in order.
func (s *ScriptedLoader) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loaded...)
}
