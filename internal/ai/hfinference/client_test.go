package hfinference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prepmind/internal/ai"
)

func TestFlattenPrompt(t *testing.T) {
	prompt := flattenPrompt(ai.Request{
		SystemPrompt: "Be concise",
		History: []ai.Message{
			{Role: ai.RoleUser, Content: "define inertia"},
			{Role: ai.RoleAssistant, Content: "Inertia is..."},
		},
		Message: "give an example",
		Fragments: []ai.Fragment{
			{Kind: ai.FragmentNote, Text: "[Attached image \"ball.png\" could not be analyzed]"},
		},
	})

	for _, want := range []string{"Be concise", "Student: define inertia", "Tutor: Inertia is...", "Student: give an example", "ball.png"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("flattened prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "Tutor:") {
		t.Fatalf("prompt should end with the tutor cue:\n%s", prompt)
	}
}

func TestCompleteParsesGeneratedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"generated_text":"A rolling ball keeps rolling."}]`))
	}))
	defer srv.Close()

	c := New(Config{Token: "hf_x", Model: "test-model", BaseURL: srv.URL})
	res, err := c.Complete(context.Background(), ai.Request{Message: "example of inertia"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "A rolling ball keeps rolling." || res.Provider != "hf" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCompleteMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"loading"}`))
	}))
	defer srv.Close()

	c := New(Config{Model: "m", BaseURL: srv.URL})
	if _, err := c.Complete(context.Background(), ai.Request{Message: "q"}); err == nil {
		t.Fatal("expected malformed envelope error")
	} else if ai.FailureKindOf(err) != ai.FailureMalformedResponse {
		t.Fatalf("expected malformed_response, got %v", err)
	}
}
