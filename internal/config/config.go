package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrInvalidQuota       = errors.New("GEMINI_ROTATION_QUOTA must be > 0")
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	DB     DBConfig
	Worker WorkerConfig
	Rate   RateConfig
	AI     AIConfig
	Prep   PrepConfig
	Log    LogConfig
}

type ServerConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
	ReadTimeout time.Duration
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	UsageStream   string
	UsageGroup    string
	UsageBlock    time.Duration
	TokenCacheTTL time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type WorkerConfig struct {
	Concurrency  int
	ConsumerName string
	MaxRetries   int
}

type RateConfig struct {
	PerMinute int64
}

type AIConfig struct {
	SystemPrompt string

	GeminiKeys     []string
	GeminiModel    string
	GeminiBaseURL  string
	RotationQuota  int
	RotationWindow time.Duration
	GeminiTimeout  time.Duration

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string
	GroqTimeout time.Duration

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	OpenRouterTimeout time.Duration

	HFToken   string
	HFModel   string
	HFBaseURL string
	HFTimeout time.Duration

	MaxRetries  int
	BackoffBase time.Duration
}

type PrepConfig struct {
	PDFCharLimit  int
	TextCharLimit int
	MinOCRChars   int
	FileTimeout   time.Duration
	OCREnabled    bool
	OCRLanguages  []string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:  mustEnv("LISTEN_ADDR", ":8080"),
			HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
			ReadTimeout: mustDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:          mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      mustEnv("REDIS_PASSWORD", ""),
			DB:            mustInt("REDIS_DB", 0),
			UsageStream:   mustEnv("USAGE_STREAM", "prepmind:usage"),
			UsageGroup:    mustEnv("USAGE_GROUP", "prepmind-workers"),
			UsageBlock:    mustDuration("USAGE_BLOCK", 5*time.Second),
			TokenCacheTTL: mustDuration("TOKEN_CACHE_TTL", 10*time.Minute),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", "file:prepmind.db?_pragma=busy_timeout(5000)"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Worker: WorkerConfig{
			Concurrency:  mustInt("WORKER_CONCURRENCY", 2),
			ConsumerName: mustEnv("WORKER_CONSUMER_NAME", hostnameOr("worker")),
			MaxRetries:   mustInt("WORKER_MAX_RETRIES", 3),
		},
		Rate: RateConfig{
			PerMinute: int64(mustInt("RATE_LIMIT_PER_MINUTE", 10)),
		},
		AI: AIConfig{
			SystemPrompt: mustEnv("TUTOR_SYSTEM_PROMPT", defaultSystemPrompt),

			GeminiKeys:     loadGeminiKeys(),
			GeminiModel:    mustEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiBaseURL:  mustEnv("GEMINI_BASE_URL", ""),
			RotationQuota:  mustInt("GEMINI_ROTATION_QUOTA", 8),
			RotationWindow: mustDuration("GEMINI_ROTATION_WINDOW", time.Minute),
			GeminiTimeout:  mustDuration("GEMINI_TIMEOUT", 60*time.Second),

			GroqAPIKey:  mustEnv("GROQ_API_KEY", ""),
			GroqModel:   mustEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			GroqBaseURL: mustEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GroqTimeout: mustDuration("GROQ_TIMEOUT", 15*time.Second),

			OpenRouterAPIKey:  mustEnv("OPENROUTER_API_KEY", ""),
			OpenRouterModel:   mustEnv("OPENROUTER_MODEL", "meta-llama/llama-4-scout:free"),
			OpenRouterBaseURL: mustEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			OpenRouterTimeout: mustDuration("OPENROUTER_TIMEOUT", 45*time.Second),

			HFToken:   mustEnv("HF_API_TOKEN", ""),
			HFModel:   mustEnv("HF_MODEL", "mistralai/Mistral-7B-Instruct-v0.3"),
			HFBaseURL: mustEnv("HF_BASE_URL", ""),
			HFTimeout: mustDuration("HF_TIMEOUT", 20*time.Second),

			MaxRetries:  mustInt("PROVIDER_MAX_RETRIES", 0),
			BackoffBase: mustDuration("PROVIDER_BACKOFF_BASE", 400*time.Millisecond),
		},
		Prep: PrepConfig{
			PDFCharLimit:  mustInt("PDF_CHAR_LIMIT", 50000),
			TextCharLimit: mustInt("TEXT_CHAR_LIMIT", 20000),
			MinOCRChars:   mustInt("OCR_MIN_CHARS", 20),
			FileTimeout:   mustDuration("PREP_FILE_TIMEOUT", 10*time.Second),
			OCREnabled:    mustBool("OCR_ENABLED", false),
			OCRLanguages:  splitList(mustEnv("OCR_LANGUAGES", "eng")),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.AI.RotationQuota <= 0 {
		return nil, ErrInvalidQuota
	}
	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = 0
	}

	return cfg, nil
}

const defaultSystemPrompt = "You are a patient, encouraging exam-preparation tutor. " +
	"Explain concepts step by step, reference the student's attached material when present, " +
	"and finish with one short practice question when it helps."

// loadGeminiKeys gathers the rotation pool: GEMINI_API_KEY plus every
// GEMINI_API_KEY_<n> slot, ordered by slot number with the unnumbered slot
// first. Duplicate values are kept once.
func loadGeminiKeys() []string {
	keys := []string{}
	if v := mustEnv("GEMINI_API_KEY", ""); v != "" {
		keys = append(keys, v)
	}

	type slot struct {
		order int
		value string
	}
	slots := []slot{}
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		k, v := parts[0], strings.TrimSpace(parts[1])
		if !strings.HasPrefix(k, "GEMINI_API_KEY_") || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(k, "GEMINI_API_KEY_"))
		if err != nil {
			continue
		}
		slots = append(slots, slot{order: n, value: v})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].order < slots[j].order })

	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	for _, s := range slots {
		if seen[s.value] {
			continue
		}
		seen[s.value] = true
		keys = append(keys, s.value)
	}
	return keys
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}

func (c *Config) Describe() string {
	return fmt.Sprintf("driver=%s providers(gemini_keys=%d groq=%v openrouter=%v hf=%v)",
		c.DB.Driver,
		len(c.AI.GeminiKeys),
		c.AI.GroqAPIKey != "",
		c.AI.OpenRouterAPIKey != "",
		c.AI.HFToken != "",
	)
}
