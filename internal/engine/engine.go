package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "oncotrace/engine"

// Engine runs the full analysis batch: normalize, resolve identities,
// dedup, build timelines, classify. It holds no per-run state.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New returns an Engine with the given parameters. A nil logger falls back
// to slog.Default. Numeric fields are taken as configured, zeros included
// (a zero stability threshold classifies any change, a zero dedup tolerance
// collapses exact matches only); start from DefaultConfig for the standard
// clinical parameters.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NewLesionPolicy == "" {
		cfg.NewLesionPolicy = NewLesionPolicyNew
	}
	return &Engine{cfg: cfg, log: logger}
}

// Analyze processes one batch of documents for one patient. Malformed
// records and documents degrade into diagnostics; the only error condition
// is an entirely empty input.
func (e *Engine) Analyze(ctx context.Context, in Input) (*Result, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "engine.analyze")
	defer span.End()

	if len(in.Documents) == 0 {
		return nil, ErrNoDocuments
	}

	var diags []Diagnostic

	// Pass 1: document validation and the exam-date axis. Documents with
	// no determinable date cannot be placed on the timeline and are
	// excluded from measurement extraction.
	firstExam := time.Time{}
	for _, doc := range in.Documents {
		if doc.ExamDate.IsZero() {
			continue
		}
		d := dateOnly(doc.ExamDate)
		if firstExam.IsZero() || d.Before(firstExam) {
			firstExam = d
		}
	}

	resolver := NewResolver()
	var obs []rawObservation
	var events []TreatmentEvent
	seq := 0

	for _, doc := range in.Documents {
		if doc.ExamDate.IsZero() {
			diags = append(diags, Diagnostic{
				Kind:       DiagMissingExamDate,
				DocumentID: doc.DocumentID,
				Detail:     "no exam date could be determined; document excluded from the timeline",
			})
			e.log.Warn("document without exam date excluded", "document_id", doc.DocumentID)
			// Treatment events carry their own dates and stay usable.
			events = append(events, doc.Events...)
			continue
		}
		docDate := dateOnly(doc.ExamDate)
		events = append(events, doc.Events...)

		if len(doc.Records) == 0 {
			diags = append(diags, Diagnostic{
				Kind:       DiagEmptyDocument,
				DocumentID: doc.DocumentID,
				Date:       docDate,
				Detail:     "document contains no lesion measurements",
			})
		}

		for _, rec := range doc.Records {
			recDate := docDate
			if !rec.ExamDate.IsZero() {
				rd := dateOnly(rec.ExamDate)
				if !rd.Equal(docDate) {
					diags = append(diags, Diagnostic{
						Kind:       DiagExamDateMismatch,
						DocumentID: doc.DocumentID,
						Label:      rec.RawLabel,
						Date:       docDate,
						Detail: fmt.Sprintf("record date %s disagrees with document date %s; document date used",
							rd.Format("2006-01-02"), docDate.Format("2006-01-02")),
					})
				}
			}

			if strings.TrimSpace(rec.RawLabel) == "" {
				diags = append(diags, Diagnostic{
					Kind:       DiagUnparseableMeasurement,
					DocumentID: doc.DocumentID,
					Date:       recDate,
					Detail:     "record has no lesion label",
				})
				continue
			}

			size, err := NormalizeSize(rec.RawSize, rec.RawUnit)
			if err != nil {
				diags = append(diags, Diagnostic{
					Kind:       DiagUnparseableMeasurement,
					DocumentID: doc.DocumentID,
					Label:      rec.RawLabel,
					Date:       recDate,
					Detail:     err.Error(),
				})
				e.log.Warn("dropped unparseable measurement",
					"document_id", doc.DocumentID, "label", rec.RawLabel,
					"size", rec.RawSize, "unit", rec.RawUnit)
				continue
			}

			identity, diag := resolver.Resolve(rec.RawLabel, recDate, firstExam)
			if diag != nil {
				diag.DocumentID = doc.DocumentID
				diags = append(diags, *diag)
				e.log.Warn("ambiguous lesion label", "document_id", doc.DocumentID, "label", rec.RawLabel)
			}

			obs = append(obs, rawObservation{
				identity: identity,
				date:     recDate,
				sizeCM:   size,
				docID:    doc.DocumentID,
				seq:      seq,
			})
			seq++
		}
	}

	events = append(events, in.Events...)
	kept := events[:0]
	for _, ev := range events {
		if !ev.Date.IsZero() {
			ev.Date = dateOnly(ev.Date)
			kept = append(kept, ev)
		}
	}
	events = kept
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	measurements, dupDiags := dedupe(obs, e.cfg.DedupeToleranceCM)
	diags = append(diags, dupDiags...)

	conflicted := make(map[string]bool)
	byLesion := make(map[string][]Measurement)
	for _, m := range measurements {
		byLesion[m.LesionID] = append(byLesion[m.LesionID], m)
		if m.Conflict {
			conflicted[m.LesionID] = true
		}
	}
	axis := buildAxis(measurements)

	identities := e.filterIdentities(resolver)
	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })

	res := &Result{Diagnostics: diags}
	if res.Diagnostics == nil {
		res.Diagnostics = []Diagnostic{}
	}
	for _, id := range identities {
		ms := byLesion[id.ID]
		if len(ms) == 0 {
			continue
		}
		tl := buildTimeline(id, ms, axis, e.cfg.NewLesionPolicy)
		variations, summary := computeVariations(tl, events, e.cfg)
		summary.ConflictingMeasurements = conflicted[id.ID]
		res.Timelines = append(res.Timelines, tl)
		res.Variations = append(res.Variations, variations...)
		res.Summaries = append(res.Summaries, summary)
	}

	res.Stats = computeStats(res.Summaries)
	res.Metadata = Metadata{
		RunID:             uuid.NewString(),
		PatientID:         in.PatientID,
		TotalLesions:      len(res.Summaries),
		TotalMeasurements: len(measurements),
		GeneratedAt:       time.Now().UTC(),
	}
	if len(axis) > 0 {
		res.Metadata.StartDate = axis[0]
		res.Metadata.EndDate = axis[len(axis)-1]
	}

	span.SetAttributes(
		attribute.Int("lesions", res.Metadata.TotalLesions),
		attribute.Int("measurements", res.Metadata.TotalMeasurements),
		attribute.Int("diagnostics", len(res.Diagnostics)),
	)
	e.log.Info("analysis complete",
		"run_id", res.Metadata.RunID,
		"patient_id", in.PatientID,
		"lesions", res.Metadata.TotalLesions,
		"measurements", res.Metadata.TotalMeasurements,
		"diagnostics", len(res.Diagnostics))
	return res, nil
}

// filterIdentities applies the allow-list. Entries are resolved through
// the same normalization as labels, so any alias form selects its lesion.
func (e *Engine) filterIdentities(r *Resolver) []*LesionIdentity {
	all := r.Identities()
	if len(e.cfg.IncludeLesions) == 0 {
		return append([]*LesionIdentity(nil), all...)
	}
	allowed := make(map[*LesionIdentity]bool)
	for _, label := range e.cfg.IncludeLesions {
		if id, ok := r.Lookup(label); ok {
			allowed[id] = true
		}
	}
	var out []*LesionIdentity
	for _, id := range all {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

func computeStats(summaries []LesionSummary) Stats {
	st := Stats{TotalLesions: len(summaries)}
	if len(summaries) == 0 {
		return st
	}
	sum := 0.0
	for _, s := range summaries {
		switch s.Status {
		case StatusIncreased:
			st.Increased++
		case StatusDecreased:
			st.Decreased++
		case StatusStable:
			st.Stable++
		case StatusDisappeared:
			st.Disappeared++
		case StatusReappeared:
			st.Reappeared++
		}
		sum += s.TotalPercentChange
		if s.TotalPercentChange > st.MaxIncreasePct {
			st.MaxIncreasePct = s.TotalPercentChange
			st.MostIncreased = s.LesionID
		}
		if s.TotalPercentChange < st.MaxDecreasePct {
			st.MaxDecreasePct = s.TotalPercentChange
			st.MostDecreased = s.LesionID
		}
	}
	st.AvgTotalChange = sum / float64(len(summaries))
	return st
}

// dateOnly truncates to a UTC calendar date so dates compare and hash
// consistently regardless of source time zone or clock component.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
