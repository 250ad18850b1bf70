package ai

import (
	"fmt"
	"strings"
	"time"
)

const (
	FallbackProviderName = "fallback"
	FallbackModelName    = "local-template"
)

// FallbackGenerator produces a deterministic templated answer when no
// provider is configured or every provider failed. It never errors.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

func (g *FallbackGenerator) Generate(req Request) Result {
	start := time.Now()

	topic := strings.TrimSpace(req.Message)
	if topic == "" {
		topic = "your question"
	}
	if len(topic) > 120 {
		topic = topic[:120] + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I am currently unable to reach the AI tutoring service, so here is some general guidance on %q:\n\n", topic)
	b.WriteString("1. Break the problem into the smallest steps you can and solve them one at a time.\n")
	b.WriteString("2. Re-read the relevant chapter summary and attempt the solved examples before the exercises.\n")
	b.WriteString("3. If a formula or definition is involved, write it out and label every term.\n")
	if len(req.Attachments) > 0 {
		names := make([]string, 0, len(req.Attachments))
		for _, att := range req.Attachments {
			names = append(names, att.Name)
		}
		fmt.Fprintf(&b, "4. Your attached files (%s) could not be analyzed right now; please try again shortly.\n", strings.Join(names, ", "))
	}
	b.WriteString("\nPlease retry in a little while for a full AI-powered explanation.")

	return Result{
		Text:          b.String(),
		Provider:      FallbackProviderName,
		Model:         FallbackModelName,
		ElapsedMillis: time.Since(start).Milliseconds(),
	}
}
