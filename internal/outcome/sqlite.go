package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite. It is the default
// backend: a single file, no external services.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite outcome store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id TEXT NOT NULL,
		technique_id TEXT NOT NULL,
		outcome_date DATETIME NOT NULL,
		success INTEGER,
		va_before REAL,
		va_after REAL,
		va_improvement REAL,
		reading_speed_before INTEGER,
		reading_speed_after INTEGER,
		sessions_completed INTEGER,
		adherence_percentage REAL,
		patient_satisfaction INTEGER,
		clinician_notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_patient ON outcomes(patient_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_patient_technique ON outcomes(patient_id, technique_id);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOutcome scans a row into an OutcomeRecord.
func scanOutcome(s scanner) (*domain.OutcomeRecord, error) {
	rec := &domain.OutcomeRecord{}
	var success sql.NullBool
	var vaBefore, vaAfter, vaImprovement, adherence sql.NullFloat64
	var readBefore, readAfter, sessions, satisfaction sql.NullInt64

	err := s.Scan(
		&rec.PatientID, &rec.TechniqueID, &rec.OutcomeDate, &success,
		&vaBefore, &vaAfter, &vaImprovement,
		&readBefore, &readAfter,
		&sessions, &adherence, &satisfaction,
		&rec.ClinicianNotes,
	)
	if err != nil {
		return nil, err
	}

	if success.Valid {
		v := success.Bool
		rec.Success = &v
	}
	rec.Measurements.VABefore = nullFloat(vaBefore)
	rec.Measurements.VAAfter = nullFloat(vaAfter)
	rec.Measurements.VAImprovement = nullFloat(vaImprovement)
	rec.Measurements.ReadingSpeedBefore = nullInt(readBefore)
	rec.Measurements.ReadingSpeedAfter = nullInt(readAfter)
	rec.Adherence.SessionsCompleted = nullInt(sessions)
	rec.Adherence.AdherencePercentage = nullFloat(adherence)
	rec.PatientSatisfaction = nullInt(satisfaction)

	return rec, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

const selectOutcomeColumns = `
	patient_id, technique_id, outcome_date, success,
	va_before, va_after, va_improvement,
	reading_speed_before, reading_speed_after,
	sessions_completed, adherence_percentage, patient_satisfaction,
	clinician_notes`

// Append persists one outcome record. Inserts only; existing rows are never
// touched.
func (s *SQLiteStore) Append(ctx context.Context, record *domain.OutcomeRecord) error {
	if record.PatientID == "" {
		return domain.ErrPatientIDRequired
	}
	if record.TechniqueID == "" {
		return domain.ErrTechniqueIDRequired
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (
			patient_id, technique_id, outcome_date, success,
			va_before, va_after, va_improvement,
			reading_speed_before, reading_speed_after,
			sessions_completed, adherence_percentage, patient_satisfaction,
			clinician_notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.PatientID,
		record.TechniqueID,
		record.OutcomeDate,
		boolPtrValue(record.Success),
		record.Measurements.VABefore,
		record.Measurements.VAAfter,
		record.Measurements.VAImprovement,
		record.Measurements.ReadingSpeedBefore,
		record.Measurements.ReadingSpeedAfter,
		record.Adherence.SessionsCompleted,
		record.Adherence.AdherencePercentage,
		record.PatientSatisfaction,
		record.ClinicianNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

func boolPtrValue(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

// History returns the patient's outcome records, most recent first.
func (s *SQLiteStore) History(ctx context.Context, patientID string) ([]*domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectOutcomeColumns+`
		FROM outcomes
		WHERE patient_id = ?
		ORDER BY outcome_date DESC, id DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []*domain.OutcomeRecord
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// TechniqueOutcomes aggregates the patient's history per technique in SQL.
func (s *SQLiteStore) TechniqueOutcomes(ctx context.Context, patientID string) (map[string]domain.TechniqueSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT technique_id,
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM outcomes
		WHERE patient_id = ?
		GROUP BY technique_id
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query technique outcomes: %w", err)
	}
	defer rows.Close()

	result := map[string]domain.TechniqueSummary{}
	for rows.Next() {
		var technique string
		var summary domain.TechniqueSummary
		if err := rows.Scan(&technique, &summary.Successes, &summary.Failures, &summary.Total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[technique] = summary
	}
	return result, rows.Err()
}

// Summary returns the aggregate view over the patient's full history.
func (s *SQLiteStore) Summary(ctx context.Context, patientID string) (*domain.PatientSummary, error) {
	history, err := s.History(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return summarize(patientID, history), nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
