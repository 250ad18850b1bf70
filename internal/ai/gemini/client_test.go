package gemini

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
	"prepmind/internal/ai/keyring"
)

func TestBuildPayloadRolesAndParts(t *testing.T) {
	body, err := buildPayload(ai.Request{
		SystemPrompt: "You are an exam tutor",
		History: []ai.Message{
			{Role: ai.RoleUser, Content: "explain photosynthesis"},
			{Role: ai.RoleAssistant, Content: "Photosynthesis is..."},
		},
		Message:     "now quiz me",
		Temperature: 0.5,
		MaxTokens:   800,
		Fragments: []ai.Fragment{
			{Kind: ai.FragmentInline, Name: "leaf.png", MimeType: "image/png", Data: []byte{9, 9}},
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	contents, ok := payload["contents"].([]any)
	if !ok || len(contents) != 3 {
		t.Fatalf("expected 3 contents entries, got %#v", payload["contents"])
	}
	second := contents[1].(map[string]any)
	if second["role"] != "model" {
		t.Fatalf("assistant history must map to model role, got %v", second["role"])
	}
	if !strings.Contains(string(body), "inline_data") {
		t.Fatal("expected inline_data part for the attached image")
	}
	if !strings.Contains(string(body), "systemInstruction") {
		t.Fatal("expected systemInstruction block")
	}
}

func TestCompleteRotatesKeys(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	ring := keyring.New([]string{"key-one", "key-two"}, 10, time.Minute)
	c := New(Config{Keys: ring, BaseURL: srv.URL, Model: "gemini-2.0-flash"})

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), ai.Request{Message: "hi"}); err != nil {
			t.Fatalf("complete #%d: %v", i, err)
		}
	}
	if len(seen) != 2 || seen[0] == seen[1] {
		t.Fatalf("expected two distinct rotated keys, got %v", seen)
	}
}

func TestCompleteCredentialExhaustedSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	ring := keyring.New([]string{"key-one", "key-two"}, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := ring.Acquire(now); err != nil {
			t.Fatalf("drain ring: %v", err)
		}
	}

	c := New(Config{Keys: ring, BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), ai.Request{Message: "hi"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureCredentialExhausted {
		t.Fatalf("expected credential_exhausted, got %v", err)
	}
	if called {
		t.Fatal("exhausted pool must not trigger a network call")
	}
}

func TestCompleteMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := New(Config{Keys: keyring.New([]string{"k"}, 10, time.Minute), BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), ai.Request{Message: "hi"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureMalformedResponse {
		t.Fatalf("expected malformed_response, got %v", err)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c := New(Config{Keys: keyring.New([]string{"k"}, 10, time.Minute), BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), ai.Request{Message: "hi"})

	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Kind != ai.FailureRateLimited || pe.Status != http.StatusTooManyRequests {
		t.Fatalf("expected rate_limited with status 429, got %v", err)
	}
}
