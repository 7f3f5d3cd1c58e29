package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/syllabi/chat-platform/internal/common"
)

// Channel types a skill execution can originate from.
const (
	ChannelWeb     = "web"
	ChannelEmbed   = "embed"
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelAPI     = "api"
	ChannelAlexa   = "alexa"
)

// ExecutionContext carries per-turn identity into a skill invocation.
// TestMode suppresses the audit row and makes webhook skills dry-run.
type ExecutionContext struct {
	SkillID       string
	ChatSessionID string
	UserID        string
	IntegrationID string
	Channel       string
	TestMode      bool
}

// Result is what a skill invocation hands back to the model. Failures are
// data, not errors: the turn continues and the model reacts to the error
// field.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BuiltinFunc is an in-process skill implementation.
type BuiltinFunc func(ctx context.Context, params map[string]any, ec ExecutionContext) (any, error)

// Executor dispatches skill invocations: custom skills call their
// configured webhook, builtin skills dispatch through the registry. Every
// invocation is logged as an Execution row unless the context is in test
// mode.
type Executor struct {
	repo   *Repo
	client *http.Client

	mu       sync.RWMutex
	builtins map[string]BuiltinFunc
}

func NewExecutor(repo *Repo) *Executor {
	return &Executor{
		repo:     repo,
		client:   &http.Client{},
		builtins: make(map[string]BuiltinFunc),
	}
}

// RegisterBuiltin installs an in-process implementation for a builtin
// skill name.
func (e *Executor) RegisterBuiltin(name string, fn BuiltinFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builtins[name] = fn
}

// Execute runs one skill invocation and records the audit row. The audit
// write is best-effort: a logging failure never fails the execution.
func (e *Executor) Execute(ctx context.Context, s WithAssociation, params map[string]any, ec ExecutionContext) Result {
	start := time.Now()
	var result Result
	status := StatusPending

	if !s.IsActive || !s.Association.IsActive {
		result = Result{Success: false, Error: "skill is currently disabled"}
		status = StatusError
	} else if errs := ValidateParams(ParametersSchema(s.FunctionSchema), params); len(errs) > 0 {
		result = Result{Success: false, Error: strings.Join(errs, "; ")}
		status = StatusError
	} else {
		switch s.Type {
		case TypeCustom:
			result = e.executeWebhook(ctx, s, params, ec)
		case TypeBuiltin:
			result = e.executeBuiltin(ctx, s, params, ec)
		default:
			result = Result{Success: false, Error: fmt.Sprintf("unknown skill type: %s", s.Type)}
		}
		switch {
		case result.Success:
			status = StatusSuccess
		case strings.Contains(result.Error, "timeout"):
			status = StatusTimeout
		default:
			status = StatusError
		}
	}

	if !ec.TestMode {
		e.logExecution(ctx, s, params, result, status, ec, time.Since(start))
	}

	return result
}

func (e *Executor) logExecution(ctx context.Context, s WithAssociation, params map[string]any, result Result, status string, ec ExecutionContext, took time.Duration) {
	id, err := common.NewULID()
	if err != nil {
		log.Printf("[SkillExecutor] could not allocate execution id: %v", err)
		return
	}
	var output map[string]any
	if m, ok := result.Data.(map[string]any); ok {
		output = m
	} else if result.Data != nil {
		output = map[string]any{"result": result.Data}
	}
	channel := ec.Channel
	if channel == "" {
		channel = ChannelWeb
	}
	exec := &Execution{
		ID:              id,
		SkillID:         s.ID,
		ChatSessionID:   ec.ChatSessionID,
		UserID:          ec.UserID,
		ChannelType:     channel,
		ExecutionStatus: status,
		InputParameters: params,
		OutputResult:    output,
		ErrorMessage:    result.Error,
		ExecutionTimeMs: took.Milliseconds(),
	}
	if err := e.repo.RecordExecution(ctx, exec); err != nil {
		log.Printf("[SkillExecutor] failed to log execution for skill %s (continuing): %v", s.ID, err)
	}
}

// webhookConfigFor merges the skill's configuration with the
// association's custom_config (association wins) and resolves both the
// nested webhook_config layout and the legacy flat layout.
func webhookConfigFor(s WithAssociation) WebhookConfig {
	merged := map[string]any{}
	for k, v := range s.Configuration {
		merged[k] = v
	}
	for k, v := range s.Association.CustomConfig {
		merged[k] = v
	}

	raw := merged
	if nested, ok := merged["webhook_config"].(map[string]any); ok {
		raw = nested
	}

	cfg := WebhookConfig{Method: http.MethodPost, TimeoutMs: 30000}
	if v, ok := raw["url"].(string); ok && v != "" {
		cfg.URL = v
	} else if v, ok := merged["webhook_url"].(string); ok {
		cfg.URL = v
	}
	if v, ok := raw["method"].(string); ok && v != "" {
		cfg.Method = strings.ToUpper(v)
	}
	if hdrs, ok := raw["headers"].(map[string]any); ok {
		cfg.Headers = make(map[string]string, len(hdrs))
		for k, v := range hdrs {
			if sv, ok := v.(string); ok {
				cfg.Headers[k] = sv
			}
		}
	}
	if v, ok := raw["timeout_ms"].(float64); ok && v > 0 {
		cfg.TimeoutMs = int(v)
	}
	if v, ok := raw["retry_attempts"].(float64); ok && v > 0 {
		cfg.RetryAttempts = int(v)
	}
	return cfg
}

func (e *Executor) executeWebhook(ctx context.Context, s WithAssociation, params map[string]any, ec ExecutionContext) Result {
	cfg := webhookConfigFor(s)
	if cfg.URL == "" {
		return Result{Success: false, Error: "webhook URL not configured"}
	}
	if ec.TestMode {
		return Result{Success: true, Data: map[string]any{"test_mode": true, "would_call": cfg.URL}}
	}

	var lastErr string
	attempts := cfg.RetryAttempts + 1
	for i := 0; i < attempts; i++ {
		res, retryable := e.callWebhook(ctx, cfg, params)
		if res.Success || !retryable {
			return res
		}
		lastErr = res.Error
		if ctx.Err() != nil {
			break
		}
	}
	return Result{Success: false, Error: lastErr}
}

// callWebhook performs one attempt. The second return reports whether a
// retry could help (timeouts and 5xx yes, 4xx no).
func (e *Executor) callWebhook(ctx context.Context, cfg WebhookConfig, params map[string]any) (Result, bool) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	target := cfg.URL
	var body io.Reader
	switch cfg.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		b, err := json.Marshal(params)
		if err != nil {
			return Result{Success: false, Error: "could not encode parameters"}, false
		}
		body = bytes.NewReader(b)
	case http.MethodGet:
		if len(params) > 0 {
			u, err := url.Parse(cfg.URL)
			if err != nil {
				return Result{Success: false, Error: "invalid webhook URL"}, false
			}
			q := u.Query()
			for k, v := range params {
				if v != nil {
					q.Set(k, fmt.Sprintf("%v", v))
				}
			}
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}

	req, err := http.NewRequestWithContext(callCtx, cfg.Method, target, body)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Syllabi-Skills/2.0")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{Success: false, Error: "request timeout"}, true
		}
		return Result{Success: false, Error: err.Error()}, true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Success: false, Error: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))},
			resp.StatusCode >= 500
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, true
	}

	// The webhook response is opaque: JSON when it parses, text otherwise.
	var data any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = string(raw)
		}
	} else {
		data = string(raw)
	}
	return Result{Success: true, Data: data}, false
}

func (e *Executor) executeBuiltin(ctx context.Context, s WithAssociation, params map[string]any, ec ExecutionContext) Result {
	e.mu.RLock()
	fn, ok := e.builtins[s.Name]
	e.mu.RUnlock()
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("built-in skill %q not found in registry", s.Name)}
	}
	data, err := fn(ctx, params, ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: data}
}
