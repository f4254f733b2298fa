package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oncotrace/oncotrace/internal/engine"
)

type fakeCaller struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const goodResponse = `{
  "exam_date": "2025-02-15",
  "lesions": [
    {"label": "Lesão A", "size": "1,2", "unit": "cm"},
    {"label": "Nódulo II", "size": "8", "unit": "mm"}
  ],
  "treatments": ["chemotherapy"],
  "confidence": 0.92
}`

func TestLLMExtractorHappyPath(t *testing.T) {
	fake := &fakeCaller{responses: []string{goodResponse}}
	x := NewLLMExtractor(fake, discardLogger())

	doc, err := x.ExtractDocument(context.Background(), "texto do laudo", "exam-feb")
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("made %d calls, want 1", fake.calls)
	}
	if !doc.ExamDate.Equal(time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("exam date = %v", doc.ExamDate)
	}
	if len(doc.Records) != 2 || doc.Records[0].RawLabel != "Lesão A" {
		t.Fatalf("records = %+v", doc.Records)
	}
	if len(doc.Events) != 1 || doc.Events[0].Kind != engine.TreatmentChemotherapy {
		t.Fatalf("events = %+v", doc.Events)
	}
}

func TestLLMExtractorStripsCodeFences(t *testing.T) {
	fake := &fakeCaller{responses: []string{"```json\n" + goodResponse + "\n```"}}
	x := NewLLMExtractor(fake, discardLogger())

	doc, err := x.ExtractDocument(context.Background(), "texto", "exam-feb")
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("records = %+v", doc.Records)
	}
}

func TestLLMExtractorRetriesInvalidJSON(t *testing.T) {
	fake := &fakeCaller{responses: []string{"not json at all", goodResponse}}
	x := NewLLMExtractor(fake, discardLogger())

	doc, err := x.ExtractDocument(context.Background(), "texto", "exam-feb")
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("made %d calls, want 2 (one retry)", fake.calls)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("records = %+v", doc.Records)
	}
	if !strings.Contains(fake.prompts[1], "not valid JSON") {
		t.Fatal("retry prompt carries no corrective feedback")
	}
}

func TestLLMExtractorRejectsBadUnit(t *testing.T) {
	bad := `{"exam_date": null, "lesions": [{"label": "Lesão A", "size": "1", "unit": "in"}], "treatments": [], "confidence": 0.9}`
	fake := &fakeCaller{responses: []string{bad, bad, bad}}
	x := NewLLMExtractor(fake, discardLogger())

	// Validation never passes, so the regex fallback takes over.
	doc, err := x.ExtractDocument(context.Background(), "Lesão A: 1,2 cm", "exam")
	if err != nil {
		t.Fatalf("fallback should absorb the failure: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("made %d calls, want 3 attempts", fake.calls)
	}
	if len(doc.Records) != 1 || doc.Records[0].RawUnit != "cm" {
		t.Fatalf("fallback records = %+v", doc.Records)
	}
}

func TestLLMExtractorFallsBackOnTransportError(t *testing.T) {
	fake := &fakeCaller{err: errors.New("api error: status code: 401")}
	x := NewLLMExtractor(fake, discardLogger())

	doc, err := x.ExtractDocument(context.Background(), sampleReport, "exam-feb")
	if err != nil {
		t.Fatalf("fallback should absorb the failure: %v", err)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("fallback records = %+v", doc.Records)
	}
}

func TestLLMExtractorCarriesSeenLabels(t *testing.T) {
	fake := &fakeCaller{responses: []string{goodResponse}}
	x := NewLLMExtractor(fake, discardLogger())

	if _, err := x.ExtractDocument(context.Background(), "laudo 1", "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := x.ExtractDocument(context.Background(), "laudo 2", "d2"); err != nil {
		t.Fatal(err)
	}

	second := fake.prompts[1]
	if !strings.Contains(second, "Lesão A") || !strings.Contains(second, "Nódulo II") {
		t.Fatalf("second prompt does not carry previously seen labels:\n%s", second)
	}
	if strings.Contains(fake.prompts[0], "already seen") {
		t.Fatal("first prompt should carry no label context")
	}
}

func TestValidateResponse(t *testing.T) {
	cases := []struct {
		name    string
		resp    extractionResponse
		wantErr bool
	}{
		{"empty ok", extractionResponse{Confidence: 0.5}, false},
		{"confidence too high", extractionResponse{Confidence: 1.5}, true},
		{"negative confidence", extractionResponse{Confidence: -0.1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResponse(&tc.resp)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateResponse = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
