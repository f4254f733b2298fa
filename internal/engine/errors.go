package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnparseableMeasurement marks a raw size or unit the normalizer could
// not interpret. The offending record is dropped, never coerced to zero.
var ErrUnparseableMeasurement = errors.New("unparseable measurement")

// ErrNoDocuments is returned when Analyze is invoked with no documents at
// all. Partial or malformed input is handled through diagnostics instead.
var ErrNoDocuments = errors.New("no documents to analyze")

// DiagnosticKind identifies a non-fatal condition observed during a run.
type DiagnosticKind string

const (
	DiagUnparseableMeasurement DiagnosticKind = "unparseable_measurement"
	DiagAmbiguousLesionLabel   DiagnosticKind = "ambiguous_lesion_label"
	DiagInconsistentDuplicate  DiagnosticKind = "inconsistent_duplicate_measurement"
	DiagMissingExamDate        DiagnosticKind = "missing_exam_date"
	DiagEmptyDocument          DiagnosticKind = "empty_document"
	DiagExamDateMismatch       DiagnosticKind = "exam_date_mismatch"
)

// Diagnostic records one observed condition. No diagnostic ever aborts a
// run; callers decide how much to surface.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	DocumentID string         `json:"document_id,omitempty"`
	Label      string         `json:"label,omitempty"`
	Date       time.Time      `json:"date,omitzero"`
	Detail     string         `json:"detail"`
}

func (d Diagnostic) String() string {
	if d.Label != "" {
		return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Label, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}
