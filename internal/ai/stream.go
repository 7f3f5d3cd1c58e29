package ai

import "context"

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// ToolStreamProvider is an optional interface for providers that can run a
// streaming completion with tool calling. Text deltas arrive on the first
// channel; usage (summed across tool rounds) is delivered once on the
// second channel after the stream ends.
type ToolStreamProvider interface {
	StreamChatWithTools(ctx context.Context, req ToolChatRequest) (<-chan string, <-chan Usage, <-chan error)
}

// ObjectGenerator is an optional interface for providers that can produce
// a JSON object constrained by a prompt, used for deterministic routing
// decisions (temperature 0).
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, system, prompt string, out any) error
}

// Embedder is an optional interface for providers that expose an
// embedding endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
