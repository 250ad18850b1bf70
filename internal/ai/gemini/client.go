package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"prepmind/internal/ai"
	"prepmind/internal/ai/keyring"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second
)

type Config struct {
	Keys       *keyring.Ring
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

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
	key, err := c.cfg.Keys.Acquire(time.Now())
	if err != nil {
		// no network call when the pool is dry
		return ai.Result{}, &ai.ProviderError{Provider: "gemini", Kind: ai.FailureCredentialExhausted, Err: err}
	}

	body, err := buildPayload(req)
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "gemini", Kind: ai.FailureUpstream, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "gemini", Kind: ai.FailureUpstream, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		kind := ai.FailureUpstream
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
			kind = ai.FailureTimeout
		}
		return ai.Result{}, &ai.ProviderError{Provider: "gemini", Kind: kind, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return ai.Result{}, &ai.ProviderError{Provider: "gemini", Kind: ai.FailureUpstream, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ai.Result{}, ai.ErrorFromStatus("gemini", resp.StatusCode, respBody)
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text").String()
	if strings.TrimSpace(text) == "" {
		return ai.Result{}, &ai.ProviderError{
			Provider: "gemini",
			Kind:     ai.FailureMalformedResponse,
			Err:      fmt.Errorf("missing candidates[0].content.parts[0].text in response"),
		}
	}

	return ai.Result{
		Text:          text,
		Provider:      "gemini",
		Model:         c.cfg.Model,
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

func buildPayload(req ai.Request) ([]byte, error) {
	contents := make([]map[string]any, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == ai.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content}},
		})
	}

	parts := []map[string]any{}
	text := req.Message
	if extra := ai.TextOfFragments(req.Fragments); extra != "" {
		text = text + "\n\n" + extra
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, map[string]any{"text": text})
	}
	for _, frag := range ai.InlineFragments(req.Fragments) {
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": frag.MimeType,
				"data":      base64.StdEncoding.EncodeToString(frag.Data),
			},
		})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("request has no content")
	}
	contents = append(contents, map[string]any{"role": "user", "parts": parts})

	payload := map[string]any{"contents": contents}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemPrompt}},
		}
	}
	genCfg := map[string]any{}
	if req.Temperature > 0 {
		genCfg["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if len(genCfg) > 0 {
		payload["generationConfig"] = genCfg
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini payload: %w", err)
	}
	return b, nil
}
