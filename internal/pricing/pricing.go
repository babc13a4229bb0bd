// Package pricing converts token counts into approximate monetary cost.
// Prices are per million tokens and mirror OpenRouter list prices; they are
// estimates, not billing records.
package pricing

import "fmt"

// Price is a (prompt, completion) price pair per million tokens, in USD.
type Price struct {
	Prompt     float64
	Completion float64
}

// prices maps model identifier to its price pair.
var prices = map[string]Price{
	"moonshotai/kimi-k2":      {Prompt: 0.5, Completion: 0.5},
	"google/gemini-2.5-flash": {Prompt: 0.075, Completion: 0.3},
	"z-ai/glm-4.7":            {Prompt: 0.1, Completion: 0.1},
}

// defaultPrice applies to models missing from the table.
var defaultPrice = Price{Prompt: 0.1, Completion: 0.1}

// Lookup returns the price pair for a model, falling back to the default
// pair for unknown identifiers.
func Lookup(modelID string) Price {
	if p, ok := prices[modelID]; ok {
		return p
	}
	return defaultPrice
}

// Calculate returns the cost in USD for the given token counts.
func Calculate(modelID string, promptTokens, completionTokens int) float64 {
	p := Lookup(modelID)
	promptCost := float64(promptTokens) / 1_000_000 * p.Prompt
	completionCost := float64(completionTokens) / 1_000_000 * p.Completion
	return promptCost + completionCost
}

// Format renders a cost for display. Sub-threshold costs are shown magnified
// (per-thousand) so tiny values stay legible; this is presentation only and
// never feeds back into arithmetic.
func Format(cost float64) string {
	if cost < 0.0001 {
		return fmt.Sprintf("$%.4f", cost*1000)
	}
	return fmt.Sprintf("$%.6f", cost)
}
