package openaicompat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prepmind/internal/ai"
)

type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Headers     map[string]string
	Timeout     time.Duration
	Images      bool
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

var _ ai.Provider = (*Client)(nil)

func (c *Client) Complete(ctx context.Context, req ai.Request) (ai.Result, error) {
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: c.cfg.Name, Kind: ai.FailureUpstream, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, retry, err := c.callOnce(ctx, endpointURL, body)
		if err == nil {
			return ai.Result{
				Text:          text,
				Provider:      c.cfg.Name,
				Model:         c.cfg.Model,
				ElapsedMillis: time.Since(start).Milliseconds(),
			}, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return ai.Result{}, c.timeoutErr(ctx.Err())
		case <-time.After(backoff):
		}
	}

	return ai.Result{}, lastErr
}

func (c *Client) buildPayload(req ai.Request) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	messages := make([]map[string]any, 0, len(req.History)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemPrompt})
	}
	for _, m := range req.History {
		role := m.Role
		if role != ai.RoleAssistant {
			role = ai.RoleUser
		}
		messages = append(messages, map[string]any{"role": role, "content": m.Content})
	}
	messages = append(messages, map[string]any{"role": "user", "content": c.userContent(req)})

	payload := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

// userContent renders the current message. Vision-capable targets get the
// content-parts form with data-URI images; everyone else gets plain text
// with extracted fragments appended.
func (c *Client) userContent(req ai.Request) any {
	text := req.Message
	if extra := ai.TextOfFragments(req.Fragments); extra != "" {
		text = text + "\n\n" + extra
	}

	inline := ai.InlineFragments(req.Fragments)
	if !c.cfg.Images || len(inline) == 0 {
		return text
	}

	parts := []map[string]any{{"type": "text", "text": text}}
	for _, frag := range inline {
		if !strings.HasPrefix(frag.MimeType, "image/") {
			continue
		}
		uri := "data:" + frag.MimeType + ";base64," + base64.StdEncoding.EncodeToString(frag.Data)
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": uri},
		})
	}
	return parts
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (text string, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", false, &ai.ProviderError{Provider: c.cfg.Name, Kind: ai.FailureUpstream, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, c.timeoutErr(err)
		}
		return "", true, &ai.ProviderError{Provider: c.cfg.Name, Kind: ai.FailureUpstream, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, &ai.ProviderError{Provider: c.cfg.Name, Kind: ai.FailureUpstream, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := ai.ErrorFromStatus(c.cfg.Name, resp.StatusCode, respBody)
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", retry, perr
	}

	text, err = parseChatCompletions(respBody)
	if err != nil {
		return "", false, &ai.ProviderError{Provider: c.cfg.Name, Kind: ai.FailureMalformedResponse, Err: err}
	}
	return text, false, nil
}

func (c *Client) timeoutErr(err error) *ai.ProviderError {
	kind := ai.FailureTimeout
	if errors.Is(err, context.Canceled) {
		kind = ai.FailureUpstream
	}
	return &ai.ProviderError{Provider: c.cfg.Name, Kind: kind, Err: err}
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/completions"
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
