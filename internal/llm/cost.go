package llm

// pricePer1K stores USD per 1K tokens per provider and model: [prompt, completion].
// Providers without a table (ollama, mock) always cost zero.
var pricePer1K = map[string]map[string][2]float64{
	"openai": {
		"gpt-4":         {0.03, 0.06},
		"gpt-4-turbo":   {0.01, 0.03},
		"gpt-4o":        {0.005, 0.015},
		"gpt-4o-mini":   {0.00015, 0.0006},
		"gpt-3.5-turbo": {0.0005, 0.0015},
	},
	"anthropic": {
		"claude-3-opus-20240229":   {0.015, 0.075},
		"claude-3-sonnet-20240229": {0.003, 0.015},
		"claude-3-haiku-20240307":  {0.00025, 0.00125},
		"claude-sonnet-4-20250514": {0.003, 0.015},
		"claude-opus-4-20250514":   {0.015, 0.075},
	},
	"gemini": {
		"gemini-1.5-pro":   {0.00125, 0.0025},
		"gemini-1.5-flash": {0.000075, 0.0003},
		"gemini-2.0-flash": {0.0001, 0.0004},
	},
}

// freeProviders never incur cost regardless of token counts.
var freeProviders = map[string]bool{
	"ollama": true,
	"mock":   true,
}

// CalculateCost returns the USD cost for one call. Unknown provider/model
// combinations cost zero rather than failing accounting.
func CalculateCost(provider, model string, promptTokens, completionTokens int) float64 {
	if freeProviders[provider] {
		return 0
	}
	table, ok := pricePer1K[provider]
	if !ok {
		return 0
	}
	prices, ok := table[model]
	if !ok {
		return 0
	}
	promptCost := float64(promptTokens) / 1000.0 * prices[0]
	completionCost := float64(completionTokens) / 1000.0 * prices[1]
	return promptCost + completionCost
}
