package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oncotrace/oncotrace/internal/engine"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	es := cfg.EngineSettings()
	if es.StabilityThresholdPct != 10 || es.TreatmentWindowDays != 60 || es.DedupeToleranceCM != 0.05 {
		t.Fatalf("defaults = %+v", es)
	}
	if es.NewLesionPolicy != engine.NewLesionPolicyNew {
		t.Fatalf("new lesion policy = %q", es.NewLesionPolicy)
	}
	if cfg.Extractor.Provider != "regex" {
		t.Fatalf("provider = %q, want regex default", cfg.Extractor.Provider)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
engine:
  stability_threshold_pct: 15
  include_lesions: ["Lesão A"]
  new_lesion_policy: undetected
extractor:
  provider: openai
  model: gpt-4o
server:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	es := cfg.EngineSettings()
	if es.StabilityThresholdPct != 15 {
		t.Fatalf("threshold = %v", es.StabilityThresholdPct)
	}
	if len(es.IncludeLesions) != 1 || es.IncludeLesions[0] != "Lesão A" {
		t.Fatalf("include list = %v", es.IncludeLesions)
	}
	if es.NewLesionPolicy != engine.NewLesionPolicyUndetected {
		t.Fatalf("policy = %q", es.NewLesionPolicy)
	}
	// Untouched sections keep their defaults.
	if es.TreatmentWindowDays != 60 {
		t.Fatalf("treatment window = %d", es.TreatmentWindowDays)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ONCOTRACE_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ONCOTRACE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extractor.Provider != "anthropic" || cfg.Extractor.APIKey != "test-key" {
		t.Fatalf("extractor = %+v", cfg.Extractor)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestTranscriberKeyFallsBackToOpenAIEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "audio-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transcriber.APIKey != "audio-key" {
		t.Fatalf("transcriber key = %q, want env fallback", cfg.Transcriber.APIKey)
	}
	// The regex extractor never picks up the key; transcription has its own.
	if cfg.Extractor.APIKey != "" {
		t.Fatalf("extractor key = %q, want empty under regex provider", cfg.Extractor.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("extractor:\n  provider: carrier-pigeon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
