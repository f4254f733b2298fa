// Package store persists extracted measurements and analysis runs.
// Input documents are never stored; only what the engine consumed and
// produced.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS measurements (
	patient_id TEXT NOT NULL,
	lesion_id  TEXT NOT NULL,
	exam_date  TEXT NOT NULL,
	size_cm    REAL NOT NULL,
	conflict   INTEGER NOT NULL DEFAULT 0,
	source     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (patient_id, lesion_id, exam_date)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id     TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	result     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_patient ON analysis_runs(patient_id, created_at);
`

// Store wraps a single-connection SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertPatient creates the patient row if it does not exist and updates
// the name when it does.
func (s *Store) UpsertPatient(ctx context.Context, patientID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (patient_id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET name = excluded.name`,
		patientID, name, now())
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}

// SaveMeasurements writes measurements for one patient. Re-saving the same
// (lesion, date) replaces the stored size.
func (s *Store) SaveMeasurements(ctx context.Context, patientID string, ms []engine.Measurement, source string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range ms {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO measurements
				(patient_id, lesion_id, exam_date, size_cm, conflict, source, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			patientID, m.LesionID, m.ExamDate.Format("2006-01-02"),
			m.SizeCM, boolToInt(m.Conflict), source, now()); err != nil {
			return fmt.Errorf("save measurement %s/%s: %w", m.LesionID, m.ExamDate.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// Measurements returns every stored measurement for the patient, ordered
// by lesion then date.
func (s *Store) Measurements(ctx context.Context, patientID string) ([]engine.Measurement, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT lesion_id, exam_date, size_cm, conflict
		FROM measurements WHERE patient_id = ?
		ORDER BY lesion_id, exam_date`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []engine.Measurement
	for rows.Next() {
		var lesionID, examDate string
		var sizeCM float64
		var conflict int
		if err := rows.Scan(&lesionID, &examDate, &sizeCM, &conflict); err != nil {
			return nil, err
		}
		d, err := time.Parse("2006-01-02", examDate)
		if err != nil {
			return nil, fmt.Errorf("stored exam date %q: %w", examDate, err)
		}
		out = append(out, engine.Measurement{
			LesionID: lesionID,
			ExamDate: d.UTC(),
			SizeCM:   sizeCM,
			Conflict: conflict != 0,
		})
	}
	return out, rows.Err()
}

// RunInfo is one row of the run listing.
type RunInfo struct {
	RunID     string    `json:"run_id" db:"run_id"`
	PatientID string    `json:"patient_id" db:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveRun stores the full result JSON under its run ID.
func (s *Store) SaveRun(ctx context.Context, res *engine.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_runs (run_id, patient_id, created_at, result)
		VALUES (?, ?, ?, ?)`,
		res.Metadata.RunID, res.Metadata.PatientID, now(), string(payload))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Run loads one stored result by run ID.
func (s *Store) Run(ctx context.Context, runID string) (*engine.Result, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT result FROM analysis_runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	var res engine.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &res, nil
}

// ListRuns returns run metadata for a patient, newest first.
func (s *Store) ListRuns(ctx context.Context, patientID string) ([]RunInfo, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT run_id, patient_id, created_at FROM analysis_runs
		WHERE patient_id = ? ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var createdAt string
		if err := rows.Scan(&info.RunID, &info.PatientID, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			info.CreatedAt = t
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeletePatient removes the patient and all associated data.
func (s *Store) DeletePatient(ctx context.Context, patientID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM analysis_runs WHERE patient_id = ?`,
		`DELETE FROM measurements WHERE patient_id = ?`,
		`DELETE FROM patients WHERE patient_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, patientID); err != nil {
			return fmt.Errorf("delete patient data: %w", err)
		}
	}
	return tx.Commit()
}

// Counts reports table sizes, for the health endpoint.
type Counts struct {
	Patients     int `json:"patients"`
	Measurements int `json:"measurements"`
	Runs         int `json:"runs"`
}

func (s *Store) Stats(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.GetContext(ctx, &c.Patients, `SELECT COUNT(*) FROM patients`); err != nil {
		return c, err
	}
	if err := s.db.GetContext(ctx, &c.Measurements, `SELECT COUNT(*) FROM measurements`); err != nil {
		return c, err
	}
	if err := s.db.GetContext(ctx, &c.Runs, `SELECT COUNT(*) FROM analysis_runs`); err != nil {
		return c, err
	}
	return c, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
