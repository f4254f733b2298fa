package extract

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeTranscriber struct {
	text     string
	err      error
	filename string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, filename string) (string, error) {
	f.filename = filename
	io.Copy(io.Discard, audio)
	return f.text, f.err
}

func TestAudioExtractorTranscribesThenExtracts(t *testing.T) {
	fake := &fakeTranscriber{text: sampleReport}
	x := NewAudioExtractor(fake, &RegexExtractor{}, discardLogger())

	doc, err := x.ExtractAudio(context.Background(), strings.NewReader("fake-audio-bytes"), "ditado.mp3", "exam-feb")
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if fake.filename != "ditado.mp3" {
		t.Fatalf("filename passed to transcriber = %q", fake.filename)
	}
	if doc.DocumentID != "exam-feb" {
		t.Fatalf("document id = %q", doc.DocumentID)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(doc.Records), doc.Records)
	}
	if doc.Records[0].RawLabel != "Lesão A" {
		t.Fatalf("first record = %+v", doc.Records[0])
	}
}

func TestAudioExtractorTranscriptionFailure(t *testing.T) {
	fake := &fakeTranscriber{err: errors.New("status code: 500")}
	x := NewAudioExtractor(fake, &RegexExtractor{}, discardLogger())

	_, err := x.ExtractAudio(context.Background(), strings.NewReader(""), "ditado.wav", "exam-feb")
	var xerr *ExtractError
	if !errors.As(err, &xerr) {
		t.Fatalf("error = %v, want *ExtractError", err)
	}
	if xerr.DocumentID != "exam-feb" {
		t.Fatalf("error document id = %q", xerr.DocumentID)
	}
}

func TestAudioExtractorEmptyTranscription(t *testing.T) {
	fake := &fakeTranscriber{text: "   \n"}
	x := NewAudioExtractor(fake, &RegexExtractor{}, discardLogger())

	_, err := x.ExtractAudio(context.Background(), strings.NewReader("x"), "ditado.m4a", "exam-feb")
	var xerr *ExtractError
	if !errors.As(err, &xerr) {
		t.Fatalf("error = %v, want *ExtractError", err)
	}
}

func TestNewWhisperTranscriberRequiresKey(t *testing.T) {
	if _, err := NewWhisperTranscriber("", "", ""); err == nil {
		t.Fatal("empty api key accepted")
	}
}
