package preset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPresets(t *testing.T) {
	presets := BuiltinPresets()

	require.Len(t, presets, len(BuiltinKeys))
	for _, key := range BuiltinKeys {
		p, ok := presets[key]
		require.True(t, ok, "missing built-in preset %q", key)
		assert.NoError(t, p.Validate(), "built-in preset %q should validate", key)
		assert.NotEmpty(t, p.SystemPrompt, "built-in preset %q should carry a system prompt", key)
		assert.True(t, p.PreserveFormatting)
		assert.True(t, p.UseGlossary)
	}
}

func TestBuiltinPresetParameters(t *testing.T) {
	tests := []struct {
		key         string
		temperature float64
		maxTokens   int
		topP        float64
		chunkSize   int
	}{
		{"subtitle", 0.3, 2048, 0.9, 1500},
		{"paper", 0.2, 4096, 0.85, 2500},
		{"patent", 0.1, 4096, 0.8, 2000},
		{"novel", 0.5, 4096, 0.95, 3000},
		{"technical", 0.2, 4096, 0.85, 2000},
		{"general", 0.3, 4096, 0.9, 2000},
	}

	presets := BuiltinPresets()
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p := presets[tt.key]
			require.NotNil(t, p)
			assert.Equal(t, tt.temperature, p.LLMParams.Temperature)
			assert.Equal(t, tt.maxTokens, p.LLMParams.MaxTokens)
			assert.Equal(t, tt.topP, p.LLMParams.TopP)
			assert.Equal(t, tt.chunkSize, p.ChunkSize)
		})
	}
}

func TestBuiltinPresetPrompts(t *testing.T) {
	presets := BuiltinPresets()

	assert.Contains(t, presets["subtitle"].SystemPrompt, "subtitle")
	assert.Contains(t, presets["patent"].SystemPrompt, "patent")
	assert.Contains(t, presets["paper"].SystemPrompt, "academic")
	assert.True(t, strings.Contains(presets["novel"].SystemPrompt, "literary") ||
		strings.Contains(presets["novel"].SystemPrompt, "novel"))
}

func TestIsBuiltin(t *testing.T) {
	for _, key := range BuiltinKeys {
		assert.True(t, IsBuiltin(key))
	}
	assert.False(t, IsBuiltin("my-custom"))
	assert.False(t, IsBuiltin(""))
}

func TestPresetValidate(t *testing.T) {
	valid := func() *Preset {
		p := createGeneralPreset()
		return p
	}

	tests := []struct {
		name    string
		mutate  func(*Preset)
		wantErr string
	}{
		{
			name:   "valid preset",
			mutate: func(p *Preset) {},
		},
		{
			name:    "empty name",
			mutate:  func(p *Preset) { p.Name = "" },
			wantErr: "name",
		},
		{
			name:    "temperature too high",
			mutate:  func(p *Preset) { p.LLMParams.Temperature = 2.5 },
			wantErr: "temperature",
		},
		{
			name:    "temperature negative",
			mutate:  func(p *Preset) { p.LLMParams.Temperature = -0.1 },
			wantErr: "temperature",
		},
		{
			name:    "max tokens below minimum",
			mutate:  func(p *Preset) { p.LLMParams.MaxTokens = 100 },
			wantErr: "max_tokens",
		},
		{
			name:    "top_p above one",
			mutate:  func(p *Preset) { p.LLMParams.TopP = 1.2 },
			wantErr: "top_p",
		},
		{
			name:    "zero chunk size",
			mutate:  func(p *Preset) { p.ChunkSize = 0 },
			wantErr: "chunk_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPresetClone(t *testing.T) {
	p := createSubtitlePreset()
	clone := p.Clone()

	require.Equal(t, p, clone)

	clone.Name = "changed"
	clone.LLMParams.Temperature = 1.9
	assert.NotEqual(t, p.Name, clone.Name)
	assert.NotEqual(t, p.LLMParams.Temperature, clone.LLMParams.Temperature)
}

func TestPresetTouch(t *testing.T) {
	p := createGeneralPreset()
	require.Empty(t, p.CreatedAt)

	p.Touch()
	require.NotEmpty(t, p.CreatedAt)
	require.NotEmpty(t, p.ModifiedAt)

	created := p.CreatedAt
	p.Touch()
	assert.Equal(t, created, p.CreatedAt, "created timestamp should be stable")
	assert.NotEmpty(t, p.ModifiedAt)
}
