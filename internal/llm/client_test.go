package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/endpoint"
)

func newTestClient(t *testing.T, url string, format endpoint.Format) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint: url,
		APIKey:   "test-key",
		Model:    "test-model",
		Format:   format,
		Headers:  []Header{{Name: "X-Title", Value: "subflow"}, {Name: " ", Value: "skipped"}},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClient_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty endpoint", Config{Endpoint: "  ", Model: "m"}},
		{"empty model", Config{Endpoint: "http://localhost/v1", Model: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConfig {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestClient_Translate_OpenAI(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization %q", auth)
		}
		if r.Header.Get("X-Title") != "subflow" {
			t.Errorf("extra header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"1|Olá"}}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/v1/", endpoint.FormatAuto)
	if c.Format() != endpoint.FormatOpenAI {
		t.Fatalf("expected openai format, got %q", c.Format())
	}
	text, err := c.Translate(context.Background(), "PROMPT", "1|Hello")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if text != "1|Olá" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "test-model" || got.Stream || len(got.Messages) != 1 {
		t.Fatalf("unexpected request %#v", got)
	}
	if got.Messages[0].Role != "user" || got.Messages[0].Content != "PROMPT\n\n1|Hello" {
		t.Fatalf("unexpected message %#v", got.Messages[0])
	}
}

func TestClient_Translate_Anthropic(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("unexpected anthropic headers %v", r.Header)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("bearer header must not be sent to anthropic")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"content":[{"type":"thinking","text":"hmm"},{"type":"text","text":"1|Olá"}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/v1", endpoint.FormatAnthropic)
	text, err := c.Translate(context.Background(), "PROMPT", "1|Hello")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if text != "1|Olá" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.System != "PROMPT" || got.MaxTokens != DefaultMaxTokens || got.Messages[0].Content != "1|Hello" {
		t.Fatalf("unexpected request %#v", got)
	}
}

func TestClient_Translate_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   apperrors.Kind
	}{
		{"429", http.StatusTooManyRequests, apperrors.KindRateLimit},
		{"401", http.StatusUnauthorized, apperrors.KindAuth},
		{"403", http.StatusForbidden, apperrors.KindAuth},
		{"500", http.StatusInternalServerError, apperrors.KindTransient},
		{"503", http.StatusServiceUnavailable, apperrors.KindTransient},
		{"400", http.StatusBadRequest, apperrors.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "upstream says no")
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, endpoint.FormatOpenAI).Translate(context.Background(), "p", "1|a")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if kind, _ := apperrors.KindOf(err); kind != tt.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.kind, kind, err)
			}
			want := fmt.Sprintf("Translation API error %d %s: upstream says no", tt.status, http.StatusText(tt.status))
			if err.Error() != want {
				t.Fatalf("expected %q, got %q", want, err.Error())
			}
		})
	}
}

func TestClient_Translate_DecodeErrors(t *testing.T) {
	for _, body := range []string{`not json`, `{"choices":[]}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		_, err := newTestClient(t, server.URL, endpoint.FormatOpenAI).Translate(context.Background(), "p", "1|a")
		server.Close()
		if kind, _ := apperrors.KindOf(err); kind != apperrors.KindDecode {
			t.Fatalf("body %q: expected decode error, got %v", body, err)
		}
	}
}

func TestClient_Translate_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url, endpoint.FormatOpenAI).Translate(context.Background(), "p", "1|a")
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Fatalf("network failure should be retryable")
	}
}

func TestClient_Translate_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, server.URL, endpoint.FormatOpenAI).Translate(ctx, "p", "1|a")
	if !apperrors.IsCanceled(err) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestClient_Stream(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"1|O\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	body, err := newTestClient(t, server.URL, endpoint.FormatOpenAI).Stream(context.Background(), "p", "1|a")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if !got.Stream {
		t.Fatalf("stream flag not set")
	}
	if !strings.Contains(string(raw), "[DONE]") {
		t.Fatalf("unexpected body %q", raw)
	}
}

func TestClient_Stream_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, endpoint.FormatOpenAI).Stream(context.Background(), "p", "1|a")
	if !apperrors.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("expected body in message, got %q", err.Error())
	}
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/models" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"gpt-x","object":"model","owned_by":"openai"},
			{"id":"claude-x","type":"model","display_name":"Claude X"},
			{"id":"router/x","name":"Router X","context_length":128000}
		]}`)
	}))
	defer server.Close()

	models, err := newTestClient(t, server.URL+"/v1/chat/completions", endpoint.FormatOpenAI).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}
	if models[0].OwnedBy != "openai" || models[1].Object != "model" || models[1].Name != "Claude X" {
		t.Fatalf("unexpected models %#v", models)
	}
	if models[2].ContextLength != 128000 || models[2].Name != "Router X" {
		t.Fatalf("unexpected router model %#v", models[2])
	}
}

func TestWithRateLimit_CanceledWait(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "http://127.0.0.1:1", Model: "m"}, WithRateLimit(0.001))
	if err != nil {
		t.Fatal(err)
	}
	// Drain the burst so Wait has to block.
	c.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Translate(ctx, "p", "1|a")
	if !apperrors.IsCanceled(err) && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled wait, got %v", err)
	}
}
