package chat

import (
	"math"
	"testing"

	"github.com/syllabi/chat-platform/internal/ai"
)

func TestCalculateCost(t *testing.T) {
	usage := ai.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}

	cases := []struct {
		model string
		want  float64
	}{
		{"gpt-4o", 12.50},
		{"gpt-4o-2024-11-20", 12.50},
		{"gpt-4o-mini", 0.75},
		{"gpt-4o-mini-2024-07-18", 0.75},
		{"claude-3-5-sonnet-latest", 18.00},
		{"some-unknown-model", 0.75},
	}
	for _, tc := range cases {
		if got := CalculateCost(usage, tc.model); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("CalculateCost(%s) = %v, want %v", tc.model, got, tc.want)
		}
	}

	if got := CalculateCost(ai.Usage{}, "gpt-4o"); got != 0 {
		t.Errorf("zero usage cost = %v", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := EstimateTokens("hi"); got != 1 {
		t.Errorf("short text = %d, want floor of 1", got)
	}
	if got := EstimateTokens("this is roughly forty characters long ok"); got != 10 {
		t.Errorf("estimate = %d", got)
	}
}
