package hfinference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prepmind/internal/ai"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	defaultModel   = "mistralai/Mistral-7B-Instruct-v0.3"
	defaultTimeout = 20 * time.Second
)

type Config struct {
	Token      string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client targets the text-generation inference API, which takes one prompt
// string: system prompt, history and the current message are flattened.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{cfg: cfg}
}

var _ ai.Provider = (*Client)(nil)

func (c *Client) Complete(ctx context.Context, req ai.Request) (ai.Result, error) {
	params := map[string]any{"return_full_text": false}
	if req.Temperature > 0 {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		params["max_new_tokens"] = req.MaxTokens
	}
	body, err := json.Marshal(map[string]any{
		"inputs":     flattenPrompt(req),
		"parameters": params,
	})
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "hf", Kind: ai.FailureUpstream, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/models/" + c.cfg.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "hf", Kind: ai.FailureUpstream, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		kind := ai.FailureUpstream
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
			kind = ai.FailureTimeout
		}
		return ai.Result{}, &ai.ProviderError{Provider: "hf", Kind: kind, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "hf", Kind: ai.FailureUpstream, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ai.Result{}, ai.ErrorFromStatus("hf", resp.StatusCode, respBody)
	}

	var parsed []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed) == 0 || strings.TrimSpace(parsed[0].GeneratedText) == "" {
		return ai.Result{}, &ai.ProviderError{
			Provider: "hf",
			Kind:     ai.FailureMalformedResponse,
			Err:      fmt.Errorf("missing generated_text in response"),
		}
	}

	return ai.Result{
		Text:          parsed[0].GeneratedText,
		Provider:      "hf",
		Model:         c.cfg.Model,
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

func flattenPrompt(req ai.Request) string {
	var b strings.Builder
	if strings.TrimSpace(req.SystemPrompt) != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	for _, m := range req.History {
		if m.Role == ai.RoleAssistant {
			b.WriteString("Tutor: ")
		} else {
			b.WriteString("Student: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Student: ")
	b.WriteString(req.Message)
	if extra := ai.TextOfFragments(req.Fragments); extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	b.WriteString("\nTutor:")
	return b.String()
}
