package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// RegexExtractor recognizes the structured phrasing most reports use.
// It is deterministic and needs no network, which also makes it the
// fallback path when LLM extraction fails.
type RegexExtractor struct {
	Log *slog.Logger
}

var examDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)data\s+do\s+exame\s*:?\s*([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4})`),
	regexp.MustCompile(`(?i)exame\s+realizado\s+em\s*:?\s*([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4})`),
	regexp.MustCompile(`(?i)data\s*:?\s*([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4})`),
	regexp.MustCompile(`(?i)data\s+do\s+exame\s*:?\s*(\d{1,2}\s+de\s+[a-zçã]+\s+de\s+\d{4})`),
	regexp.MustCompile(`([0-9]{4}-[0-9]{2}-[0-9]{2})`),
}

// lesionPattern captures "Lesão A: 1,2 cm" and close variants such as
// "Nódulo II mede 0,8 cm" or "Massa 3 - 2.5 centímetros".
var lesionPattern = regexp.MustCompile(
	`(?i)((?:les[ãa]o|n[óo]dulo|met[áa]stase|massa|tumor)\s+[A-Za-z0-9]{1,4})\b[\s,]*(?::|-|mede|medindo|com|de)?\s*(\d+(?:[.,]\d+)?)\s*(mm|cm|mil[íi]metros?|cent[íi]metros?)\b`)

var treatmentKeywords = []struct {
	pattern *regexp.Regexp
	kind    engine.TreatmentKind
}{
	{regexp.MustCompile(`(?i)\b(cirurgia|cirúrgic\w+|ressec[çc][ãa]o|exérese|excis[ãa]o)\b`), engine.TreatmentSurgery},
	{regexp.MustCompile(`(?i)\b(quimioterapia|quimioterápic\w+|qt)\b`), engine.TreatmentChemotherapy},
	{regexp.MustCompile(`(?i)\b(radioterapia|radioterápic\w+|rt)\b`), engine.TreatmentRadiotherapy},
}

// ExtractDocument scans text for an exam date, lesion measurements, and
// treatment mentions. A missing date is not an error; the report is
// returned with a zero date for the engine to diagnose.
func (x *RegexExtractor) ExtractDocument(ctx context.Context, text, documentID string) (engine.DocumentReport, error) {
	doc := engine.DocumentReport{DocumentID: documentID}

	if d, ok := findExamDate(text); ok {
		doc.ExamDate = d
	}

	for _, m := range lesionPattern.FindAllStringSubmatch(text, -1) {
		doc.Records = append(doc.Records, engine.CandidateRecord{
			RawLabel:         strings.TrimSpace(m[1]),
			RawSize:          m[2],
			RawUnit:          m[3],
			SourceDocumentID: documentID,
		})
	}

	for _, tk := range treatmentKeywords {
		if tk.pattern.MatchString(text) {
			doc.Events = append(doc.Events, engine.TreatmentEvent{
				Date:             doc.ExamDate,
				Kind:             tk.kind,
				SourceDocumentID: documentID,
			})
		}
	}

	if x.Log != nil {
		x.Log.Debug("regex extraction complete",
			"document_id", documentID,
			"records", len(doc.Records),
			"events", len(doc.Events),
			"dated", !doc.ExamDate.IsZero())
	}
	return doc, nil
}

func findExamDate(text string) (time.Time, bool) {
	for _, p := range examDatePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, err := ParseDate(m[1]); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
