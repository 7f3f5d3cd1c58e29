package alexa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/chat"
)

func TestHTTPClient_CompleteDecodesStream(t *testing.T) {
	var received chat.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/external" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, chunk := range []string{"The store ", "opens at nine."} {
			if _, err := w.Write([]byte(chat.EncodeChunk(chunk))); err != nil {
				t.Errorf("write chunk: %v", err)
			}
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL + "/")
	answer, err := client.Complete(context.Background(), chat.Request{
		SessionID: "amzn-sess-1",
		ChatbotID: "bot-1",
		Channel:   "alexa",
		Messages:  []ai.Message{{Role: "user", Content: "when do you open"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if answer != "The store opens at nine." {
		t.Fatalf("answer = %q", answer)
	}
	if received.ChatbotID != "bot-1" || received.Channel != "alexa" {
		t.Fatalf("request forwarded as %+v", received)
	}
}

func TestHTTPClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Complete(context.Background(), chat.Request{
		ChatbotID: "bot-1",
		Messages:  []ai.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error for a 429 response")
	}
}
