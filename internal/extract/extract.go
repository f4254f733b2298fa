// Package extract turns free-text imaging reports into structured
// DocumentReports for the analysis engine. Extraction is best effort:
// a deterministic regex extractor handles the common report shapes, and
// an LLM-backed extractor handles everything else, falling back to the
// regex path when the model cannot produce usable JSON.
package extract

import (
	"context"
	"fmt"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// Extractor produces one DocumentReport from raw report text.
type Extractor interface {
	ExtractDocument(ctx context.Context, text, documentID string) (engine.DocumentReport, error)
}

// ExtractError wraps a failure for one document.
type ExtractError struct {
	DocumentID string
	Err        error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }
