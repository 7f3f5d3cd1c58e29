package chat

import (
	"strings"

	"github.com/syllabi/chat-platform/internal/ai"
)

// Per-million-token prices in USD. Unknown models fall back to the
// gpt-4o-mini rate so cost metadata is never absent.
type modelPrice struct {
	input  float64
	output float64
}

var modelPrices = map[string]modelPrice{
	"gpt-4o":      {input: 2.50, output: 10.00},
	"gpt-4o-mini": {input: 0.15, output: 0.60},
	"gpt-4.1":     {input: 2.00, output: 8.00},
	"o1":          {input: 15.00, output: 60.00},
	"claude-3-5-sonnet": {input: 3.00, output: 15.00},
	"claude-3-5-haiku":  {input: 0.80, output: 4.00},
}

var defaultPrice = modelPrice{input: 0.15, output: 0.60}

// CalculateCost estimates the USD cost of a completed exchange.
func CalculateCost(usage ai.Usage, model string) float64 {
	price := defaultPrice
	// Longest prefix wins so gpt-4o-mini never picks up the gpt-4o rate.
	best := 0
	for name, p := range modelPrices {
		if strings.HasPrefix(model, name) && len(name) > best {
			price = p
			best = len(name)
		}
	}
	in := float64(usage.PromptTokens) / 1_000_000 * price.input
	out := float64(usage.CompletionTokens) / 1_000_000 * price.output
	return in + out
}

// EstimateTokens gives a rough token count when the provider reports no
// usage. Four characters per token is close enough for accounting.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
