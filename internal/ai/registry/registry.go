package registry

import (
	"net/http"
	"sort"

	"prepmind/internal/ai"
	"prepmind/internal/ai/gemini"
	"prepmind/internal/ai/hfinference"
	"prepmind/internal/ai/keyring"
	"prepmind/internal/ai/openaicompat"
	"prepmind/internal/config"
)

type Result struct {
	Descriptors []ai.Descriptor
	GeminiKeys  *keyring.Ring
}

// Build assembles the ordered provider list from whichever credentials are
// configured. Built once at startup; an empty result is valid and means
// every request is served by the local fallback.
func Build(cfg config.AIConfig, httpClient *http.Client) Result {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	out := Result{}

	if len(cfg.GeminiKeys) > 0 {
		out.GeminiKeys = keyring.New(cfg.GeminiKeys, cfg.RotationQuota, cfg.RotationWindow)
		out.Descriptors = append(out.Descriptors, ai.Descriptor{
			Name:         "gemini",
			Priority:     1,
			Model:        cfg.GeminiModel,
			Capabilities: ai.Capabilities{Images: true, PDFs: true, History: true},
			Provider: gemini.New(gemini.Config{
				Keys:       out.GeminiKeys,
				Model:      cfg.GeminiModel,
				BaseURL:    cfg.GeminiBaseURL,
				Timeout:    cfg.GeminiTimeout,
				HTTPClient: httpClient,
			}),
		})
	}

	if cfg.GroqAPIKey != "" {
		out.Descriptors = append(out.Descriptors, ai.Descriptor{
			Name:         "groq",
			Priority:     2,
			Model:        cfg.GroqModel,
			Capabilities: ai.Capabilities{History: true},
			Provider: openaicompat.New(openaicompat.Config{
				Name:        "groq",
				BaseURL:     cfg.GroqBaseURL,
				APIKey:      cfg.GroqAPIKey,
				Model:       cfg.GroqModel,
				Timeout:     cfg.GroqTimeout,
				HTTPClient:  httpClient,
				MaxRetries:  cfg.MaxRetries,
				BackoffBase: cfg.BackoffBase,
			}),
		})
	}

	if cfg.OpenRouterAPIKey != "" {
		out.Descriptors = append(out.Descriptors, ai.Descriptor{
			Name:         "openrouter",
			Priority:     3,
			Model:        cfg.OpenRouterModel,
			Capabilities: ai.Capabilities{Images: true, History: true},
			Provider: openaicompat.New(openaicompat.Config{
				Name:        "openrouter",
				BaseURL:     cfg.OpenRouterBaseURL,
				APIKey:      cfg.OpenRouterAPIKey,
				Model:       cfg.OpenRouterModel,
				Timeout:     cfg.OpenRouterTimeout,
				Images:      true,
				HTTPClient:  httpClient,
				MaxRetries:  cfg.MaxRetries,
				BackoffBase: cfg.BackoffBase,
			}),
		})
	}

	if cfg.HFToken != "" {
		out.Descriptors = append(out.Descriptors, ai.Descriptor{
			Name:         "hf",
			Priority:     4,
			Model:        cfg.HFModel,
			Capabilities: ai.Capabilities{},
			Provider: hfinference.New(hfinference.Config{
				Token:      cfg.HFToken,
				Model:      cfg.HFModel,
				BaseURL:    cfg.HFBaseURL,
				Timeout:    cfg.HFTimeout,
				HTTPClient: httpClient,
			}),
		})
	}

	sort.SliceStable(out.Descriptors, func(i, j int) bool {
		return out.Descriptors[i].Priority < out.Descriptors[j].Priority
	})
	return out
}
