package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quill/internal/prompts"
	"quill/internal/services"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message":       map[string]any{"content": content},
					"finish_reason": "stop",
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

var testPrompt = prompts.Prompt{Text: "Clean the transcript.", Version: "v1"}

func TestCleanupSendsPromptAndTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.com/quill" {
			t.Errorf("unexpected referer %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Quill" {
			t.Errorf("unexpected title %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Messages[0].Role != "system" || req.Messages[0].Content != testPrompt.Text {
			t.Errorf("unexpected system message: %+v", req.Messages[0])
		}
		if req.Messages[1].Role != "user" || req.Messages[1].Content != "um so hello" {
			t.Errorf("unexpected user message: %+v", req.Messages[1])
		}
		completionHandler(t, "  So, hello.  ")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "demo-model",
		Referer: "https://example.com/quill",
		Title:   "Quill",
	})
	got, err := client.Cleanup(context.Background(), "  um so hello\n", testPrompt)
	if err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if got != "So, hello." {
		t.Fatalf("unexpected cleaned text %q", got)
	}
	if client.Model() != "demo-model" {
		t.Fatalf("unexpected model %q", client.Model())
	}
}

func TestCleanupEmptyContentIsTransient(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "   "))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	_, err := client.Cleanup(context.Background(), "text", testPrompt)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestCleanupClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, services.ErrAuth},
		{"forbidden", http.StatusForbidden, services.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, services.ErrTransient},
		{"server error", http.StatusInternalServerError, services.ErrTransient},
		{"bad request", http.StatusBadRequest, services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Retry-After", "2")
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
			_, err := client.Cleanup(context.Background(), "text", testPrompt)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if calls != 1 {
				t.Fatalf("client must not retry, got %d calls", calls)
			}
			if delay, ok := services.RetryAfterFrom(err); !ok || delay != 2*time.Second {
				t.Fatalf("expected retry-after 2s, got %v ok=%v", delay, ok)
			}
		})
	}
}

func TestCleanupRejectsMissingInputs(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	if _, err := client.Cleanup(context.Background(), "text", testPrompt); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without api key, got %v", err)
	}
	client = NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "m"})
	if _, err := client.Cleanup(context.Background(), "   ", testPrompt); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank transcript, got %v", err)
	}
	if _, err := client.Cleanup(context.Background(), "text", prompts.Prompt{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty prompt, got %v", err)
	}
}

func TestCleanupCanceledContextIsNotTransient(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "ok"))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	_, err := client.Cleanup(ctx, "text", testPrompt)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatalf("canceled request must not be retryable: %v", err)
	}
}
