package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prepmind/internal/ai"
)

func TestBuildPayloadMessages(t *testing.T) {
	c := New(Config{Name: "groq", BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile"})

	body, endpoint, err := c.buildPayload(ai.Request{
		SystemPrompt: "You are a patient exam tutor",
		History: []ai.Message{
			{Role: ai.RoleUser, Content: "what is osmosis"},
			{Role: ai.RoleAssistant, Content: "Osmosis is..."},
		},
		Message:     "give me a practice question",
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.groq.com/openai/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "llama-3.3-70b-versatile" {
		t.Fatalf("expected model in payload, got %#v", payload["model"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 4 {
		t.Fatalf("expected 4 messages (system + 2 history + user), got %#v", payload["messages"])
	}
}

func TestBuildPayloadInlineImages(t *testing.T) {
	c := New(Config{Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1", Model: "m", Images: true})

	body, _, err := c.buildPayload(ai.Request{
		Message: "what does this diagram show",
		Fragments: []ai.Fragment{
			{Kind: ai.FragmentInline, Name: "d.png", MimeType: "image/png", Data: []byte{1, 2}},
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if !strings.Contains(string(body), "image_url") || !strings.Contains(string(body), "data:image/png;base64,") {
		t.Fatalf("expected data-uri image part in payload: %s", body)
	}
}

func TestBuildPayloadTextOnlyDropsInline(t *testing.T) {
	c := New(Config{Name: "groq", BaseURL: "https://api.groq.com/openai/v1", Model: "m"})

	body, _, err := c.buildPayload(ai.Request{
		Message: "help",
		Fragments: []ai.Fragment{
			{Kind: ai.FragmentInline, Name: "d.png", MimeType: "image/png", Data: []byte{1}},
			{Kind: ai.FragmentNote, Text: "[Attached image \"d.png\" could not be analyzed]"},
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if strings.Contains(string(body), "image_url") {
		t.Fatal("text-only client must not emit image parts")
	}
	if !strings.Contains(string(body), "could not be analyzed") {
		t.Fatal("note fragment should be appended to the user text")
	}
}

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"An ion is a charged atom."}}]}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "groq", BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	res, err := c.Complete(context.Background(), ai.Request{Message: "what is an ion"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "An ion is a charged atom." || res.Provider != "groq" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Name: "groq", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), ai.Request{Message: "q"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureRateLimited {
		t.Fatalf("expected rate_limited failure, got %v", err)
	}
}

func TestCompleteAuthorizationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{Name: "openrouter", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), ai.Request{Message: "q"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureAuthorization {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestCompleteMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "groq", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), ai.Request{Message: "q"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureMalformedResponse {
		t.Fatalf("expected malformed_response failure, got %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "groq", BaseURL: srv.URL, Model: "m", Timeout: 20 * time.Millisecond})
	_, err := c.Complete(context.Background(), ai.Request{Message: "q"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureTimeout {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}
