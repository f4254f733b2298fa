package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// Transcriber converts dictated report audio into text. filename carries
// the original extension so the backend can pick the right decoder.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// WhisperTranscriber transcribes through the OpenAI audio API. Reports are
// dictated in Portuguese, so the language hint is fixed.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber builds a transcriber; baseURL overrides the
// endpoint for OpenAI-compatible servers.
func NewWhisperTranscriber(apiKey, model, baseURL string) (*WhisperTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("transcription api key not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperTranscriber{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	model := w.model
	if model == "" {
		model = openai.Whisper1
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		Reader:   audio,
		FilePath: filename,
		Language: "pt",
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// AudioExtractor turns dictated report audio into a DocumentReport by
// transcribing it and handing the text to a text extractor.
type AudioExtractor struct {
	transcriber Transcriber
	inner       Extractor
	log         *slog.Logger
}

func NewAudioExtractor(transcriber Transcriber, inner Extractor, logger *slog.Logger) *AudioExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioExtractor{transcriber: transcriber, inner: inner, log: logger}
}

// ExtractAudio transcribes one audio file and extracts the resulting text.
func (x *AudioExtractor) ExtractAudio(ctx context.Context, audio io.Reader, filename, documentID string) (engine.DocumentReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "extract.audio")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	text, err := x.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return engine.DocumentReport{}, &ExtractError{DocumentID: documentID, Err: fmt.Errorf("transcribe: %w", err)}
	}
	if strings.TrimSpace(text) == "" {
		return engine.DocumentReport{}, &ExtractError{DocumentID: documentID, Err: errors.New("transcription produced no text")}
	}
	x.log.Info("audio transcribed", "document_id", documentID, "chars", len(text))
	return x.inner.ExtractDocument(ctx, text, documentID)
}
