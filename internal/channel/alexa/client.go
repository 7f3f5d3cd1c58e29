package alexa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/syllabi/chat-platform/internal/chat"
)

// ChatClient runs one chat turn to completion and returns the full
// assistant text.
type ChatClient interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// ServiceClient calls the chat pipeline in-process and drains the stream.
type ServiceClient struct {
	Service *chat.Service
}

func (c *ServiceClient) Complete(ctx context.Context, req chat.Request) (string, error) {
	chunks, errs, err := c.Service.StreamChat(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return sb.String(), nil
}

// HTTPClient calls a remote chat endpoint speaking the line-oriented
// stream protocol, for deployments where the voice gateway runs apart
// from the chat API.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req chat.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat/external", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat endpoint returned status %d", resp.StatusCode)
	}
	return chat.DecodeStream(resp.Body)
}
