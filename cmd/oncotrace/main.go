// Command oncotrace runs a batch lesion-evolution analysis over a set of
// imaging report files and writes the result as markdown, CSV, JSON, or
// PDF.
//
// Report files may be plain text (extracted with the configured extractor),
// .json files containing a pre-extracted document report, or dictated audio
// transcribed through the configured transcriber.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/oncotrace/oncotrace/internal/config"
	"github.com/oncotrace/oncotrace/internal/engine"
	"github.com/oncotrace/oncotrace/internal/extract"
	"github.com/oncotrace/oncotrace/internal/report"
	"github.com/oncotrace/oncotrace/internal/store"
	"github.com/oncotrace/oncotrace/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		inputPath  = flag.String("input", "", "report file or directory of report files (required)")
		patientID  = flag.String("patient", "", "patient identifier")
		format     = flag.String("format", "markdown", "output format: markdown, csv, json, pdf")
		outPath    = flag.String("out", "", "output file (default stdout; required for pdf)")
		save       = flag.Bool("save", false, "persist the run to the configured database")
	)
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.SetupLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, "oncotrace", cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer shutdown(ctx)
	}

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		log.Fatalf("extractor: %v", err)
	}
	audio, err := buildAudioExtractor(cfg, extractor, logger)
	if err != nil {
		log.Fatalf("transcriber: %v", err)
	}

	docs, err := loadDocuments(ctx, extractor, audio, *inputPath)
	if err != nil {
		log.Fatalf("input: %v", err)
	}

	eng := engine.New(cfg.EngineSettings(), logger)
	res, err := eng.Analyze(ctx, engine.Input{PatientID: *patientID, Documents: docs})
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	if *save {
		if cfg.Store.Path == "" {
			log.Fatal("-save requires store.path in the config")
		}
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer st.Close()
		if *patientID != "" {
			if err := st.UpsertPatient(ctx, *patientID, ""); err != nil {
				log.Fatalf("store: %v", err)
			}
		}
		if err := st.SaveRun(ctx, res); err != nil {
			log.Fatalf("store: %v", err)
		}
	}

	out, err := renderOutput(ctx, res, *format)
	if err != nil {
		log.Fatalf("render: %v", err)
	}

	if *outPath == "" {
		if *format == "pdf" {
			log.Fatal("pdf output requires -out")
		}
		os.Stdout.Write(out)
		return
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		log.Fatalf("write output: %v", err)
	}
	logger.Info("report written", "path", *outPath, "format", *format, "run_id", res.Metadata.RunID)
}

func buildExtractor(cfg *config.Config, logger *slog.Logger) (extract.Extractor, error) {
	switch strings.ToLower(cfg.Extractor.Provider) {
	case "regex", "":
		return &extract.RegexExtractor{Log: logger}, nil
	default:
		caller, err := extract.NewCaller(cfg.Extractor.Provider, cfg.Extractor.APIKey, cfg.Extractor.Model, cfg.Extractor.BaseURL)
		if err != nil {
			return nil, err
		}
		return extract.NewLLMExtractor(caller, logger), nil
	}
}

// buildAudioExtractor returns nil when no transcription key is configured;
// audio inputs then fail with a pointer at the missing config.
func buildAudioExtractor(cfg *config.Config, inner extract.Extractor, logger *slog.Logger) (*extract.AudioExtractor, error) {
	if cfg.Transcriber.APIKey == "" {
		return nil, nil
	}
	tr, err := extract.NewWhisperTranscriber(cfg.Transcriber.APIKey, cfg.Transcriber.Model, cfg.Transcriber.BaseURL)
	if err != nil {
		return nil, err
	}
	return extract.NewAudioExtractor(tr, inner, logger), nil
}

func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".mp4", ".mpeg", ".mpga", ".m4a", ".wav", ".webm":
		return true
	}
	return false
}

func loadDocuments(ctx context.Context, x extract.Extractor, audio *extract.AudioExtractor, path string) ([]engine.DocumentReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".txt" || ext == ".md" || ext == ".json" || isAudioFile(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no report files in %s", path)
	}

	var docs []engine.DocumentReport
	for _, f := range files {
		docID := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if isAudioFile(f) {
			if audio == nil {
				return nil, fmt.Errorf("%s: audio input requires transcriber.api_key (or OPENAI_API_KEY)", f)
			}
			af, err := os.Open(f)
			if err != nil {
				return nil, err
			}
			doc, err := audio.ExtractAudio(ctx, af, filepath.Base(f), docID)
			af.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
			docs = append(docs, doc)
			continue
		}
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(f), ".json") {
			var doc engine.DocumentReport
			if err := json.Unmarshal(b, &doc); err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
			if doc.DocumentID == "" {
				doc.DocumentID = docID
			}
			docs = append(docs, doc)
			continue
		}
		doc, err := x.ExtractDocument(ctx, string(b), docID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func renderOutput(ctx context.Context, res *engine.Result, format string) ([]byte, error) {
	switch format {
	case "markdown", "md":
		return []byte(report.BuildMarkdown(res)), nil
	case "csv":
		var sb strings.Builder
		if err := report.WriteCSV(&sb, res); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil
	case "json":
		return json.MarshalIndent(res, "", "  ")
	case "pdf":
		md := report.BuildMarkdown(res)
		return report.NewChromiumPDFRenderer().Render(ctx, md, res)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
