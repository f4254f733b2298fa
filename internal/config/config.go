// Package config loads runtime configuration from a YAML file with
// environment-variable overrides, and sets up structured logging.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oncotrace/oncotrace/internal/engine"
)

type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Store       StoreConfig       `yaml:"store"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type EngineConfig struct {
	StabilityThresholdPct float64  `yaml:"stability_threshold_pct"`
	TreatmentWindowDays   int      `yaml:"treatment_window_days"`
	DedupeToleranceCM     float64  `yaml:"dedupe_tolerance_cm"`
	MajorDropPct          float64  `yaml:"major_drop_pct"`
	IncludeLesions        []string `yaml:"include_lesions"`
	NewLesionPolicy       string   `yaml:"new_lesion_policy"`
}

type ExtractorConfig struct {
	// Provider is "anthropic", "openai", or "regex" for offline use.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// APIKey is normally left empty in the file and supplied through
	// ANTHROPIC_API_KEY / OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// TranscriberConfig enables dictated-report audio input. Transcription
// always goes through the OpenAI audio API, independent of the extractor
// provider. An empty model means whisper-1.
type TranscriberConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			StabilityThresholdPct: 10,
			TreatmentWindowDays:   60,
			DedupeToleranceCM:     0.05,
			MajorDropPct:          30,
			NewLesionPolicy:       string(engine.NewLesionPolicyNew),
		},
		Extractor: ExtractorConfig{Provider: "regex"},
		Server:    ServerConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads path (optional) over the defaults and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ONCOTRACE_LLM_PROVIDER"); v != "" {
		c.Extractor.Provider = v
	}
	if v := os.Getenv("ONCOTRACE_LLM_MODEL"); v != "" {
		c.Extractor.Model = v
	}
	if v := os.Getenv("ONCOTRACE_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ONCOTRACE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ONCOTRACE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ONCOTRACE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("ONCOTRACE_STABILITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Engine.StabilityThresholdPct = f
		}
	}

	if v := os.Getenv("ONCOTRACE_TRANSCRIBER_MODEL"); v != "" {
		c.Transcriber.Model = v
	}

	if c.Extractor.APIKey == "" {
		switch strings.ToLower(c.Extractor.Provider) {
		case "anthropic":
			c.Extractor.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.Extractor.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Transcriber.APIKey == "" {
		c.Transcriber.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Extractor.Provider) {
	case "anthropic", "openai", "regex":
	default:
		return fmt.Errorf("unknown extractor provider %q", c.Extractor.Provider)
	}
	switch engine.NewLesionPolicy(c.Engine.NewLesionPolicy) {
	case engine.NewLesionPolicyNew, engine.NewLesionPolicyUndetected, "":
	default:
		return fmt.Errorf("unknown new_lesion_policy %q", c.Engine.NewLesionPolicy)
	}
	if c.Engine.StabilityThresholdPct < 0 {
		return fmt.Errorf("stability_threshold_pct must be non-negative")
	}
	if c.Engine.DedupeToleranceCM < 0 {
		return fmt.Errorf("dedupe_tolerance_cm must be non-negative")
	}
	return nil
}

// EngineSettings converts the file form into the engine's config type.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		StabilityThresholdPct: c.Engine.StabilityThresholdPct,
		TreatmentWindowDays:   c.Engine.TreatmentWindowDays,
		DedupeToleranceCM:     c.Engine.DedupeToleranceCM,
		MajorDropPct:          c.Engine.MajorDropPct,
		IncludeLesions:        c.Engine.IncludeLesions,
		NewLesionPolicy:       engine.NewLesionPolicy(c.Engine.NewLesionPolicy),
	}
}
