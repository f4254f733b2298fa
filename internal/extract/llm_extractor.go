package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oncotrace/oncotrace/internal/engine"
)

const tracerName = "oncotrace/extract"

const extractionSchema = `{
  "exam_date": "date of the exam as YYYY-MM-DD, or null if not stated",
  "lesions": [
    {
      "label": "lesion identifier exactly as written, e.g. 'Lesão A'",
      "size": "numeric size exactly as written, e.g. '1,2'",
      "unit": "mm or cm"
    }
  ],
  "treatments": ["zero or more of: surgery, chemotherapy, radiotherapy"],
  "confidence": 0.95
}`

type extractionResponse struct {
	ExamDate *string `json:"exam_date"`
	Lesions  []struct {
		Label string `json:"label"`
		Size  string `json:"size"`
		Unit  string `json:"unit"`
	} `json:"lesions"`
	Treatments []string `json:"treatments"`
	Confidence float64  `json:"confidence"`
}

// LLMExtractor extracts structured reports via an LLM, keeping lesion
// naming consistent across a batch by telling the model which labels it
// has already seen. Exhausted retries fall back to regex extraction so a
// flaky model never loses a document.
type LLMExtractor struct {
	exec       *Executor
	fallback   RegexExtractor
	log        *slog.Logger
	seenLabels []string
}

func NewLLMExtractor(caller Caller, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{
		exec:     NewExecutor(caller),
		fallback: RegexExtractor{Log: logger},
		log:      logger,
	}
}

func (x *LLMExtractor) ExtractDocument(ctx context.Context, text, documentID string) (engine.DocumentReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "extract.document")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	var resp extractionResponse
	metrics, err := x.exec.Run(ctx, "extraction", x.buildPrompt(text), &resp, func() error {
		return validateResponse(&resp)
	})
	span.SetAttributes(attribute.Int("attempts", metrics.Attempts))
	if err != nil {
		x.log.Warn("llm extraction failed, falling back to regex",
			"document_id", documentID, "attempts", metrics.Attempts, "error", err)
		return x.fallback.ExtractDocument(ctx, text, documentID)
	}

	doc := engine.DocumentReport{DocumentID: documentID}
	if resp.ExamDate != nil && *resp.ExamDate != "" {
		if d, perr := ParseDate(*resp.ExamDate); perr == nil {
			doc.ExamDate = d
		}
	}
	for _, l := range resp.Lesions {
		doc.Records = append(doc.Records, engine.CandidateRecord{
			RawLabel:         strings.TrimSpace(l.Label),
			RawSize:          l.Size,
			RawUnit:          l.Unit,
			SourceDocumentID: documentID,
		})
		x.remember(l.Label)
	}
	for _, t := range resp.Treatments {
		kind, ok := treatmentKind(t)
		if !ok {
			continue
		}
		doc.Events = append(doc.Events, engine.TreatmentEvent{
			Date:             doc.ExamDate,
			Kind:             kind,
			SourceDocumentID: documentID,
		})
	}

	x.log.Info("llm extraction complete",
		"document_id", documentID,
		"records", len(doc.Records),
		"confidence", resp.Confidence,
		"attempts", metrics.Attempts)
	return doc, nil
}

func (x *LLMExtractor) buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Extract every lesion measurement from the following imaging report.\n\n")
	sb.WriteString("Report:\n\"\"\"\n")
	sb.WriteString(text)
	sb.WriteString("\n\"\"\"\n\nSchema:\n")
	sb.WriteString(extractionSchema)
	if len(x.seenLabels) > 0 {
		sb.WriteString("\n\nLesion labels already seen in earlier reports for this patient: ")
		sb.WriteString(strings.Join(x.seenLabels, ", "))
		sb.WriteString(". Reuse these exact labels when the report refers to the same lesion.")
	}
	return sb.String()
}

func (x *LLMExtractor) remember(label string) {
	label = strings.TrimSpace(label)
	for _, s := range x.seenLabels {
		if strings.EqualFold(s, label) {
			return
		}
	}
	x.seenLabels = append(x.seenLabels, label)
}

func validateResponse(r *extractionResponse) error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	for i, l := range r.Lesions {
		if strings.TrimSpace(l.Label) == "" {
			return fmt.Errorf("lesion %d has an empty label", i)
		}
		if strings.TrimSpace(l.Size) == "" {
			return fmt.Errorf("lesion %d has an empty size", i)
		}
		switch strings.ToLower(strings.TrimSpace(l.Unit)) {
		case "mm", "cm":
		default:
			return fmt.Errorf("lesion %d has unit %q, want mm or cm", i, l.Unit)
		}
	}
	return nil
}

func treatmentKind(s string) (engine.TreatmentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "surgery", "cirurgia":
		return engine.TreatmentSurgery, true
	case "chemotherapy", "quimioterapia":
		return engine.TreatmentChemotherapy, true
	case "radiotherapy", "radioterapia":
		return engine.TreatmentRadiotherapy, true
	}
	return "", false
}
