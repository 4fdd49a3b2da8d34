package billing

import "irouter/internal/repository/db"

// pointUnit is the currency amount one point represents
const pointUnit = 0.001

// Points converts token counts to points with the model's costs and multiplier
func Points(inputTokens, outputTokens int, cfg db.AiConfig) float64 {
	cost := float64(inputTokens)*cfg.InputCost + float64(outputTokens)*cfg.OutputCost
	return cost * cfg.Multiplier / pointUnit
}

// UsagePoints is Points applied to a TokenUsage
func UsagePoints(usage TokenUsage, cfg db.AiConfig) float64 {
	return Points(usage.PromptTokens, usage.CompletionTokens, cfg)
}
