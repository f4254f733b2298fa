// Package engine reconstructs per-lesion size timelines from measurements
// extracted out of longitudinal imaging reports. The engine is pure batch
// computation: it performs no I/O and every run is independent.
package engine

import "time"

// TreatmentKind classifies a treatment event extracted from a report.
type TreatmentKind string

const (
	TreatmentSurgery      TreatmentKind = "surgery"
	TreatmentChemotherapy TreatmentKind = "chemotherapy"
	TreatmentRadiotherapy TreatmentKind = "radiotherapy"
)

// CandidateRecord is one lesion mention as the upstream parser produced it.
// Size and unit are kept raw; normalization happens inside the engine so
// unparseable values can be diagnosed instead of silently coerced.
type CandidateRecord struct {
	RawLabel string `json:"raw_lesion_label"`
	// ExamDate may be zero, in which case the document date applies.
	ExamDate         time.Time `json:"exam_date,omitzero"`
	RawSize          string    `json:"raw_size"`
	RawUnit          string    `json:"raw_unit"`
	SourceDocumentID string    `json:"source_document_id,omitempty"`
}

// TreatmentEvent is a dated treatment mention. Events never alter computed
// sizes or statuses; they only annotate variations as advisory context.
type TreatmentEvent struct {
	Date             time.Time     `json:"date"`
	Kind             TreatmentKind `json:"kind"`
	SourceDocumentID string        `json:"source_document_id,omitempty"`
}

// DocumentReport is the per-document envelope supplied by the parser.
// A zero ExamDate marks a document whose date could not be determined.
type DocumentReport struct {
	DocumentID string            `json:"document_id"`
	ExamDate   time.Time         `json:"exam_date,omitzero"`
	Records    []CandidateRecord `json:"records"`
	Events     []TreatmentEvent  `json:"events,omitempty"`
}

// Input is one full analysis batch for a single patient.
type Input struct {
	PatientID string           `json:"patient_id"`
	Documents []DocumentReport `json:"documents"`
	// Events holds treatment events entered outside any document.
	Events []TreatmentEvent `json:"events,omitempty"`
}

// LesionIdentity is one resolved lesion: a canonical ID plus every raw
// label that mapped onto it during the run.
type LesionIdentity struct {
	ID      string   `json:"id"`
	Aliases []string `json:"aliases"`
}

// Measurement is a deduplicated size observation. After dedup there is at
// most one Measurement per (LesionID, ExamDate).
type Measurement struct {
	LesionID string    `json:"lesion_id"`
	ExamDate time.Time `json:"exam_date"`
	SizeCM   float64   `json:"size_cm"`
	// Conflict marks that duplicate mentions disagreed beyond tolerance
	// and the last-listed value was kept.
	Conflict bool `json:"conflict,omitempty"`
}

// TimelineEntry is one axis date in a lesion's timeline. Absent means the
// lesion was expected on that date's report and not found, which is a
// distinct state from the date predating the lesion's first appearance
// (such dates simply have no entry).
type TimelineEntry struct {
	Date   time.Time `json:"date"`
	SizeCM float64   `json:"size_cm"`
	Absent bool      `json:"absent,omitempty"`
}

// LesionTimeline is the dated series for one lesion. Entry dates strictly
// increase and form a contiguous suffix of the global exam-date axis.
type LesionTimeline struct {
	LesionID string          `json:"lesion_id"`
	Aliases  []string        `json:"aliases,omitempty"`
	Entries  []TimelineEntry `json:"entries"`
}

// Transition tags what a VariationEntry describes.
type Transition string

const (
	TransitionMeasured    Transition = "measured"
	TransitionDisappeared Transition = "disappeared"
	TransitionReappeared  Transition = "reappeared"
)

// VariationEntry describes the change between two consecutive timeline
// entries. PercentChange is nil whenever either side is absent.
type VariationEntry struct {
	LesionID        string          `json:"lesion_id"`
	FromDate        time.Time       `json:"from_date"`
	ToDate          time.Time       `json:"to_date"`
	FromSizeCM      float64         `json:"from_size_cm"`
	ToSizeCM        float64         `json:"to_size_cm"`
	PercentChange   *float64        `json:"percent_change"`
	Transition      Transition      `json:"transition"`
	NearbyTreatment *TreatmentEvent `json:"nearby_treatment,omitempty"`
}

// Status is the overall classification of a lesion across the run.
type Status string

const (
	StatusIncreased   Status = "increased"
	StatusDecreased   Status = "decreased"
	StatusStable      Status = "stable"
	StatusDisappeared Status = "disappeared"
	StatusReappeared  Status = "reappeared"
)

// LesionSummary condenses one lesion's history. First/Last refer to the
// first and last present measurements; TotalPercentChange compares them.
type LesionSummary struct {
	LesionID                string    `json:"lesion_id"`
	FirstDate               time.Time `json:"first_date"`
	FirstSizeCM             float64   `json:"first_size_cm"`
	LastDate                time.Time `json:"last_date"`
	LastSizeCM              float64   `json:"last_size_cm"`
	TotalPercentChange      float64   `json:"total_percent_change"`
	Status                  Status    `json:"status"`
	MeasurementCount        int       `json:"measurement_count"`
	MaxSizeCM               float64   `json:"max_size_cm"`
	MinSizeCM               float64   `json:"min_size_cm"`
	ConflictingMeasurements bool      `json:"conflicting_measurements,omitempty"`
}

// Stats aggregates the run across lesions.
type Stats struct {
	TotalLesions   int     `json:"total_lesions"`
	Increased      int     `json:"increased"`
	Decreased      int     `json:"decreased"`
	Stable         int     `json:"stable"`
	Disappeared    int     `json:"disappeared"`
	Reappeared     int     `json:"reappeared"`
	AvgTotalChange float64 `json:"avg_total_change_pct"`
	MaxIncreasePct float64 `json:"max_increase_pct"`
	MaxDecreasePct float64 `json:"max_decrease_pct"`
	MostIncreased  string  `json:"most_increased,omitempty"`
	MostDecreased  string  `json:"most_decreased,omitempty"`
}

// Metadata describes the run itself.
type Metadata struct {
	RunID             string    `json:"run_id"`
	PatientID         string    `json:"patient_id,omitempty"`
	TotalLesions      int       `json:"total_lesions"`
	TotalMeasurements int       `json:"total_measurements"`
	StartDate         time.Time `json:"start_date,omitzero"`
	EndDate           time.Time `json:"end_date,omitzero"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// Result is the complete output of one Analyze call. Every slice is sorted
// by lesion ID (then date) so identical inputs produce identical results.
type Result struct {
	Summaries   []LesionSummary  `json:"summaries"`
	Timelines   []LesionTimeline `json:"timelines"`
	Variations  []VariationEntry `json:"variations"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
	Stats       Stats            `json:"stats"`
	Metadata    Metadata         `json:"metadata"`
}

// NewLesionPolicy controls how dates before a lesion's first appearance
// are represented.
type NewLesionPolicy string

const (
	// NewLesionPolicyNew omits axis dates before the first appearance.
	NewLesionPolicyNew NewLesionPolicy = "new"
	// NewLesionPolicyUndetected back-fills them as absent entries.
	NewLesionPolicyUndetected NewLesionPolicy = "undetected"
)

// Config holds the tunable parameters of a run.
type Config struct {
	// StabilityThresholdPct is the exclusive band, in percent, within
	// which total change counts as stable.
	StabilityThresholdPct float64
	// TreatmentWindowDays bounds how far back a treatment event may sit
	// and still be associated with a disappearance or major drop.
	TreatmentWindowDays int
	// DedupeToleranceCM is the max spread, in cm, for duplicate mentions
	// of one lesion on one date to collapse silently.
	DedupeToleranceCM float64
	// MajorDropPct is the decrease, in percent, beyond which a variation
	// looks for a nearby treatment event.
	MajorDropPct float64
	// IncludeLesions restricts output to the listed lesion labels when
	// non-empty. Entries are matched through identity resolution, so any
	// alias of a lesion selects it.
	IncludeLesions []string
	NewLesionPolicy NewLesionPolicy
}

// DefaultConfig returns the standard clinical parameters.
func DefaultConfig() Config {
	return Config{
		StabilityThresholdPct: 10,
		TreatmentWindowDays:   60,
		DedupeToleranceCM:     0.05,
		MajorDropPct:          30,
		NewLesionPolicy:       NewLesionPolicyNew,
	}
}
