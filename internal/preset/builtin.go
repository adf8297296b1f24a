package preset

// BuiltinKeys lists the preset keys that ship with the engine, in display
// order. Built-in presets can be shadowed by a user file under the same
// key but never deleted.
var BuiltinKeys = []string{"subtitle", "paper", "patent", "novel", "technical", "general"}

// BuiltinPresets returns the built-in presets keyed by preset key.
func BuiltinPresets() map[string]*Preset {
	return map[string]*Preset{
		"subtitle":  createSubtitlePreset(),
		"paper":     createPaperPreset(),
		"patent":    createPatentPreset(),
		"novel":     createNovelPreset(),
		"technical": createTechnicalPreset(),
		"general":   createGeneralPreset(),
	}
}

// IsBuiltin reports whether key names a built-in preset.
func IsBuiltin(key string) bool {
	for _, k := range BuiltinKeys {
		if k == key {
			return true
		}
	}
	return false
}

func createSubtitlePreset() *Preset {
	return &Preset{
		Name:         "자막 (Subtitle)",
		Description:  "영상 자막 번역에 최적화. 짧고 자연스러운 표현 사용.",
		DocumentType: "subtitle",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.3,
			MaxTokens:   2048,
			TopP:        0.9,
		},
		ChunkSize:          1500,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are a professional subtitle translator.

RULES:
- Keep translations SHORT and natural for spoken dialogue
- Match the timing constraints of subtitles
- Preserve speaker's tone and emotion
- Use colloquial expressions appropriate for speech
- Avoid overly formal or literary language
- Keep line breaks where they make sense for readability`,
		ContextInstructions: "Consider natural speech patterns and subtitle timing.",
		StyleGuide:          "자연스러운 구어체, 간결한 표현",
	}
}

func createPaperPreset() *Preset {
	return &Preset{
		Name:         "논문 (Academic Paper)",
		Description:  "학술 논문 번역에 최적화. 정확하고 학술적인 표현 사용.",
		DocumentType: "paper",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.2,
			MaxTokens:   4096,
			TopP:        0.85,
		},
		ChunkSize:          2500,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are an expert academic translator specializing in research papers.

RULES:
- Use precise academic terminology
- Maintain formal, objective tone
- Preserve technical terms (transliterate if no standard translation exists)
- Keep citation formats intact
- Translate figure/table captions accurately
- Maintain logical flow and argumentation structure`,
		ContextInstructions: "Preserve academic rigor and citation formats.",
		StyleGuide:          "학술적 문체, 전문 용어 유지",
	}
}

func createPatentPreset() *Preset {
	return &Preset{
		Name:         "특허 (Patent)",
		Description:  "특허 문서 번역에 최적화. 법적 정확성과 기술 용어 중시.",
		DocumentType: "patent",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.1,
			MaxTokens:   4096,
			TopP:        0.8,
		},
		ChunkSize:          2000,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are a specialized patent translator with legal and technical expertise.

RULES:
- Use EXACT legal terminology - precision is critical
- Maintain claim structure and numbering
- Preserve all technical specifications exactly
- Keep patent-specific phrases (e.g., "comprising", "wherein")
- Do not paraphrase - translate as literally as legally appropriate
- Maintain reference numbers and figure references`,
		ContextInstructions: "Legal precision is paramount. Technical terms must be consistent.",
		StyleGuide:          "법적 정확성, 기술 용어 일관성",
	}
}

func createNovelPreset() *Preset {
	return &Preset{
		Name:         "소설 (Novel/Fiction)",
		Description:  "소설 및 문학 작품 번역. 문체와 감성 보존.",
		DocumentType: "novel",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.5,
			MaxTokens:   4096,
			TopP:        0.95,
		},
		ChunkSize:          3000,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are a literary translator specializing in fiction.

RULES:
- Preserve the author's unique voice and style
- Maintain narrative flow and pacing
- Translate idioms naturally, not literally
- Keep character voice distinctions
- Preserve metaphors and literary devices when possible
- Adapt cultural references appropriately
- Maintain emotional impact and atmosphere`,
		ContextInstructions: "Focus on literary quality and emotional resonance.",
		StyleGuide:          "문학적 표현, 작가 스타일 보존",
	}
}

func createTechnicalPreset() *Preset {
	return &Preset{
		Name:         "기술 문서 (Technical)",
		Description:  "기술 문서, 매뉴얼 번역. 명확성과 정확성 중시.",
		DocumentType: "technical",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.2,
			MaxTokens:   4096,
			TopP:        0.85,
		},
		ChunkSize:          2000,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are a technical documentation translator.

RULES:
- Use clear, unambiguous language
- Maintain consistent terminology throughout
- Preserve code snippets and commands exactly
- Keep formatting (lists, headings, tables)
- Translate UI text according to localization standards
- Keep placeholder text and variables unchanged`,
		ContextInstructions: "Clarity and consistency are essential.",
		StyleGuide:          "명확한 표현, 일관된 용어",
	}
}

func createGeneralPreset() *Preset {
	return &Preset{
		Name:         "일반 (General)",
		Description:  "범용 번역 설정. 다양한 문서에 적합.",
		DocumentType: "general",
		Version:      1,
		LLMParams: LLMParameters{
			Temperature: 0.3,
			MaxTokens:   4096,
			TopP:        0.9,
		},
		ChunkSize:          2000,
		PreserveFormatting: true,
		UseGlossary:        true,
		SystemPrompt: `You are a professional translator.

RULES:
- Produce natural, fluent translations
- Preserve the meaning and intent of the original
- Maintain appropriate formality level
- Keep formatting and structure intact`,
		ContextInstructions: "Balance accuracy with natural expression.",
		StyleGuide:          "자연스러운 번역",
	}
}
