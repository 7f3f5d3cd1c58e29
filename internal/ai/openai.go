package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
// It implements Provider, StreamProvider, ToolStreamProvider,
// ObjectGenerator and Embedder.
type OpenAIProvider struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Client         *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model, embeddingModel string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Model:          model,
		EmbeddingModel: embeddingModel,
		Client:         &http.Client{Timeout: 90 * time.Second},
	}
}

type oaToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaToolCall struct {
	Index    *int           `json:"index,omitempty"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function oaToolCallFunc `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaChatReq struct {
	Model          string         `json:"model"`
	Messages       []oaMessage    `json:"messages"`
	Temperature    *float64       `json:"temperature,omitempty"`
	Stream         bool           `json:"stream"`
	StreamOptions  map[string]any `json:"stream_options,omitempty"`
	Tools          []oaTool       `json:"tools,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type oaChatResp struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type oaStreamChunk struct {
	Choices []struct {
		Delta        oaMessage `json:"delta"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	if p.Client == nil {
		return nil, errors.New("openai: http client is nil")
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	return p.Client.Do(req)
}

func toOAMessages(system string, messages []Message) []oaMessage {
	out := make([]oaMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, oaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		out = append(out, oaMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.post(ctx, "/chat/completions", oaChatReq{
		Model:    p.Model,
		Messages: toOAMessages("", messages),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai: status %d", resp.StatusCode)
	}

	var decoded oaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks without tools.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		_, err := p.streamRound(ctx, oaChatReq{
			Model:         p.Model,
			Messages:      toOAMessages("", messages),
			Stream:        true,
			StreamOptions: map[string]any{"include_usage": true},
		}, chunks, nil)
		if err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// GenerateObject runs a temperature-0 completion constrained to a JSON
// object and unmarshals it into out.
func (p *OpenAIProvider) GenerateObject(ctx context.Context, system, prompt string, out any) error {
	zero := 0.0
	resp, err := p.post(ctx, "/chat/completions", oaChatReq{
		Model:          p.Model,
		Temperature:    &zero,
		Messages:       toOAMessages(system, []Message{{Role: "user", Content: prompt}}),
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openai: status %d", resp.StatusCode)
	}

	var decoded oaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil {
		return errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return errors.New("openai: empty choices")
	}
	return json.Unmarshal([]byte(decoded.Choices[0].Message.Content), out)
}

type oaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type oaEmbedResp struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.post(ctx, "/embeddings", oaEmbedReq{Model: p.EmbeddingModel, Input: []string{text}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai: status %d", resp.StatusCode)
	}

	var decoded oaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != nil {
		return nil, errors.New(decoded.Error.Message)
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	return decoded.Data[0].Embedding, nil
}

// StreamChatWithTools runs the tool loop: each round streams a completion;
// when the model requests tool calls they are executed and the results
// appended, until the model answers in plain text or MaxSteps rounds have
// run. Usage is summed across rounds and delivered once.
func (p *OpenAIProvider) StreamChatWithTools(ctx context.Context, req ToolChatRequest) (<-chan string, <-chan Usage, <-chan error) {
	chunks := make(chan string, 16)
	usageCh := make(chan Usage, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(usageCh)
		defer close(errs)

		model := req.Model
		if model == "" {
			model = p.Model
		}
		maxSteps := req.MaxSteps
		if maxSteps <= 0 {
			maxSteps = 5
		}

		oaTools := make([]oaTool, 0, len(req.Tools))
		byName := make(map[string]Tool, len(req.Tools))
		for _, t := range req.Tools {
			var ot oaTool
			ot.Type = "function"
			ot.Function.Name = t.Name
			ot.Function.Description = t.Description
			ot.Function.Parameters = t.Parameters
			if ot.Function.Parameters == nil {
				ot.Function.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			oaTools = append(oaTools, ot)
			byName[t.Name] = t
		}

		history := toOAMessages(req.System, req.Messages)
		var total Usage
		temp := req.Temperature

		for step := 0; step < maxSteps; step++ {
			round := oaChatReq{
				Model:         model,
				Messages:      history,
				Temperature:   &temp,
				Stream:        true,
				StreamOptions: map[string]any{"include_usage": true},
			}
			// Last round answers in plain text so a tool-happy model
			// cannot loop forever.
			if step < maxSteps-1 {
				round.Tools = oaTools
			}

			result, err := p.streamRound(ctx, round, chunks, &total)
			if err != nil {
				errs <- err
				return
			}
			if len(result.ToolCalls) == 0 {
				usageCh <- total
				return
			}

			history = append(history, oaMessage{Role: "assistant", Content: result.Content, ToolCalls: result.ToolCalls})
			for _, tc := range result.ToolCalls {
				history = append(history, oaMessage{
					Role:       "tool",
					ToolCallID: tc.ID,
					Content:    runTool(ctx, byName, tc),
				})
			}
		}

		usageCh <- total
	}()

	return chunks, usageCh, errs
}

func runTool(ctx context.Context, byName map[string]Tool, tc oaToolCall) string {
	t, ok := byName[tc.Function.Name]
	if !ok {
		return `{"error":"unknown tool"}`
	}
	args := map[string]any{}
	if strings.TrimSpace(tc.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return `{"error":"invalid tool arguments"}`
		}
	}
	result := t.Execute(ctx, args)
	b, err := json.Marshal(result)
	if err != nil {
		return `{"error":"tool result not serializable"}`
	}
	return string(b)
}

type roundResult struct {
	Content   string
	ToolCalls []oaToolCall
}

// streamRound performs one streaming completion, forwarding text deltas to
// chunks and accumulating tool-call fragments by index. Usage, when the
// API reports it on the final chunk, is added to total.
func (p *OpenAIProvider) streamRound(ctx context.Context, req oaChatReq, chunks chan<- string, total *Usage) (roundResult, error) {
	var result roundResult

	resp, err := p.post(ctx, "/chat/completions", req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("openai: status %d", resp.StatusCode)
	}

	var content strings.Builder
	calls := map[int]*oaToolCall{}
	maxIdx := -1

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk oaStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return result, errors.New(chunk.Error.Message)
		}
		if chunk.Usage != nil && total != nil {
			total.PromptTokens += chunk.Usage.PromptTokens
			total.CompletionTokens += chunk.Usage.CompletionTokens
			total.TotalTokens += chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			select {
			case chunks <- delta.Content:
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if idx > maxIdx {
				maxIdx = idx
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &oaToolCall{Type: "function"}
				calls[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name = tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}

	result.Content = content.String()
	for i := 0; i <= maxIdx; i++ {
		if acc, ok := calls[i]; ok {
			result.ToolCalls = append(result.ToolCalls, *acc)
		}
	}
	return result, nil
}
