package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by a provider for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Tool is a callable function exposed to the model for one turn. Execute
// receives the model-supplied arguments and returns the tool result
// payload; failures are reported inside the payload (an object with an
// "error" field), never as a panic, so a bad tool cannot abort the turn.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Execute     func(ctx context.Context, args map[string]any) any
}

// ToolChatRequest is a chat completion request with tools attached.
type ToolChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	// MaxSteps bounds the tool loop: after this many rounds the provider
	// forces a plain-text answer.
	MaxSteps int
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
