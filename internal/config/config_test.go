package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.Server.ListenAddr)
	}
	if cfg.AI.RotationQuota != 8 || cfg.AI.RotationWindow != time.Minute {
		t.Fatalf("unexpected rotation defaults: quota=%d window=%s", cfg.AI.RotationQuota, cfg.AI.RotationWindow)
	}
	if cfg.Prep.PDFCharLimit != 50000 {
		t.Fatalf("unexpected pdf cap %d", cfg.Prep.PDFCharLimit)
	}
	if cfg.AI.MaxRetries != 0 {
		t.Fatalf("adapter retries must default to 0, got %d", cfg.AI.MaxRetries)
	}
}

func TestLoadGeminiKeySlots(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "base-key")
	t.Setenv("GEMINI_API_KEY_2", "slot-two")
	t.Setenv("GEMINI_API_KEY_1", "slot-one")
	t.Setenv("GEMINI_API_KEY_10", "slot-ten")
	t.Setenv("GEMINI_API_KEY_BAD", "ignored")

	keys := loadGeminiKeys()
	want := []string{"base-key", "slot-one", "slot-two", "slot-ten"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("slot order wrong at %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestLoadGeminiKeyDedupe(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "same")
	t.Setenv("GEMINI_API_KEY_1", "same")

	keys := loadGeminiKeys()
	if len(keys) != 1 {
		t.Fatalf("expected duplicate to collapse, got %v", keys)
	}
}
