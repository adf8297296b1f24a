package llm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{"defaults are valid", DefaultParams(), ""},
		{"temperature floor", Params{Temperature: 0, MaxTokens: 256, TopP: 0}, ""},
		{"temperature ceiling", Params{Temperature: 2, MaxTokens: 256, TopP: 1}, ""},
		{"temperature too high", Params{Temperature: 2.1, MaxTokens: 4096, TopP: 1}, "temperature"},
		{"temperature negative", Params{Temperature: -0.1, MaxTokens: 4096, TopP: 1}, "temperature"},
		{"max tokens too small", Params{Temperature: 0.5, MaxTokens: 100, TopP: 1}, "max_tokens"},
		{"top_p too high", Params{Temperature: 0.5, MaxTokens: 4096, TopP: 1.5}, "top_p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCostTrackerRecordsPerRole(t *testing.T) {
	tracker := NewCostTracker()
	tracker.Record(CallRoot, 100, 50, 0.01)
	tracker.Record(CallSub, 200, 80, 0.02)
	tracker.Record(CallSub, 100, 40, 0.01)
	tracker.Record(CallVerifier, 30, 5, 0.001)

	s := tracker.Summary()
	assert.Equal(t, 1, s.RootCalls)
	assert.Equal(t, 2, s.SubCalls)
	assert.Equal(t, 1, s.VerifierCalls)
	assert.Equal(t, 4, s.TotalCalls)
	assert.Equal(t, 150, s.RootTokens)
	assert.Equal(t, 420, s.SubTokens)
	assert.Equal(t, 35, s.VerifierTokens)
	assert.Equal(t, 605, s.TotalTokens)
	assert.InDelta(t, 0.041, s.TotalCost, 1e-9)
}

func TestCostTrackerReset(t *testing.T) {
	tracker := NewCostTracker()
	tracker.Record(CallRoot, 10, 10, 1.0)
	tracker.Reset()

	s := tracker.Summary()
	assert.Zero(t, s.TotalCalls)
	assert.Zero(t, s.TotalTokens)
	assert.Zero(t, s.TotalCost)
}

func TestCostTrackerConcurrentRecords(t *testing.T) {
	tracker := NewCostTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(CallSub, 10, 5, 0.001)
		}()
	}
	wg.Wait()

	s := tracker.Summary()
	assert.Equal(t, 50, s.SubCalls)
	assert.Equal(t, 750, s.SubTokens)
	assert.InDelta(t, 0.05, s.TotalCost, 1e-9)
}

func TestScriptedClientReplaysQueue(t *testing.T) {
	client := NewScriptedClient(
		ScriptedResponse{Content: "first"},
		ScriptedResponse{Content: "second"},
	)

	ctx := context.Background()
	resp, err := client.Complete(ctx, []Message{UserMessage("a")}, "m", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = client.Complete(ctx, []Message{UserMessage("b")}, "m", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
	assert.Zero(t, client.Remaining())

	_, err = client.Complete(ctx, []Message{UserMessage("c")}, "m", DefaultParams())
	require.Error(t, err, "an exhausted script fails loudly")
	assert.Equal(t, 3, client.CallCount())
}
