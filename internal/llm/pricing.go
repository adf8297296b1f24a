package llm

// modelPricing holds US dollar rates per 1K tokens.
type modelPricing struct {
	Input  float64
	Output float64
}

// openAIPricing lists the hosted models with known rates. Local and
// unknown models cost nothing.
var openAIPricing = map[string]modelPricing{
	"gpt-4o":      {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo": {Input: 0.01, Output: 0.03},
}

// EstimateCost returns the dollar cost of a call, or 0 for models
// without a published rate.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := openAIPricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*pricing.Input + float64(outputTokens)/1000*pricing.Output
}
