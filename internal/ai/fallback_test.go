package ai

import (
	"strings"
	"testing"
)

func TestFallbackGenerateDeterministic(t *testing.T) {
	g := NewFallbackGenerator()
	req := Request{Message: "explain Newton's second law"}

	first := g.Generate(req)
	second := g.Generate(req)
	if first.Text != second.Text {
		t.Fatal("fallback text must be deterministic for the same request")
	}
	if first.Provider != FallbackProviderName || first.Model != FallbackModelName {
		t.Fatalf("unexpected identity %s/%s", first.Provider, first.Model)
	}
	if !strings.Contains(first.Text, "Newton's second law") {
		t.Fatalf("fallback should echo the topic: %q", first.Text)
	}
}

func TestFallbackMentionsAttachments(t *testing.T) {
	g := NewFallbackGenerator()
	res := g.Generate(Request{
		Message:     "help",
		Attachments: []Attachment{{Name: "homework.pdf", MimeType: "application/pdf"}},
	})
	if !strings.Contains(res.Text, "homework.pdf") {
		t.Fatalf("fallback should acknowledge attachments: %q", res.Text)
	}
}

func TestFallbackEmptyQuery(t *testing.T) {
	g := NewFallbackGenerator()
	res := g.Generate(Request{})
	if res.Text == "" {
		t.Fatal("fallback must always produce text")
	}
}
