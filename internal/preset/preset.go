// Package preset provides document-type translation presets: generation
// parameters, prompts and chunk sizing bundled per document class, with
// built-in defaults and JSON persistence for user-defined ones.
package preset

import (
	"time"

	rlmerrors "rlm-translate/internal/errors"
)

// LLMParameters are the generation parameters sent with each provider call.
type LLMParameters struct {
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
}

// DefaultLLMParameters returns the baseline generation parameters.
func DefaultLLMParameters() LLMParameters {
	return LLMParameters{
		Temperature: 0.3,
		MaxTokens:   4096,
		TopP:        0.9,
	}
}

// Preset is a complete translation configuration for one document class.
type Preset struct {
	// Metadata
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	DocumentType string `json:"document_type" yaml:"document_type"`
	Version      int    `json:"version" yaml:"version"`
	CreatedAt    string `json:"created_at" yaml:"created_at"`
	ModifiedAt   string `json:"modified_at" yaml:"modified_at"`

	// LLM Parameters
	LLMParams LLMParameters `json:"llm_params" yaml:"llm_params"`

	// Translation Settings
	ChunkSize          int  `json:"chunk_size" yaml:"chunk_size"`
	PreserveFormatting bool `json:"preserve_formatting" yaml:"preserve_formatting"`
	UseGlossary        bool `json:"use_glossary" yaml:"use_glossary"`

	// Custom Prompts
	SystemPrompt        string `json:"system_prompt" yaml:"system_prompt"`
	ContextInstructions string `json:"context_instructions" yaml:"context_instructions"`
	StyleGuide          string `json:"style_guide" yaml:"style_guide"`
}

// Touch stamps the preset's timestamps, initializing CreatedAt on first use.
func (p *Preset) Touch() {
	now := time.Now().Format(time.RFC3339)
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.ModifiedAt = now
}

// Clone returns an independent copy of the preset.
func (p *Preset) Clone() *Preset {
	clone := *p
	return &clone
}

// Validate checks that a preset is usable: parameter ranges and a positive
// chunk size.
func (p *Preset) Validate() error {
	if p.Name == "" {
		return rlmerrors.NewValidationError("name", "must not be empty", p.Name)
	}
	if p.LLMParams.Temperature < 0 || p.LLMParams.Temperature > 2 {
		return rlmerrors.NewValidationError("llm_params.temperature", "must be between 0 and 2", p.LLMParams.Temperature)
	}
	if p.LLMParams.MaxTokens < 256 {
		return rlmerrors.NewValidationError("llm_params.max_tokens", "must be at least 256", p.LLMParams.MaxTokens)
	}
	if p.LLMParams.TopP < 0 || p.LLMParams.TopP > 1 {
		return rlmerrors.NewValidationError("llm_params.top_p", "must be between 0 and 1", p.LLMParams.TopP)
	}
	if p.ChunkSize <= 0 {
		return rlmerrors.NewValidationError("chunk_size", "must be positive", p.ChunkSize)
	}
	return nil
}

// Info is the display summary of a preset.
type Info struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DocumentType string `json:"document_type"`
	Builtin      bool   `json:"builtin"`
}
