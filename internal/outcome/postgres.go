package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL, for
// deployments where several server instances share one outcome history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL outcome store over an existing
// connection. The schema is created if it does not exist.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createPostgresSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL outcome store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func createPostgresSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id BIGSERIAL PRIMARY KEY,
		patient_id TEXT NOT NULL,
		technique_id TEXT NOT NULL,
		outcome_date TIMESTAMPTZ NOT NULL,
		success BOOLEAN,
		va_before DOUBLE PRECISION,
		va_after DOUBLE PRECISION,
		va_improvement DOUBLE PRECISION,
		reading_speed_before INTEGER,
		reading_speed_after INTEGER,
		sessions_completed INTEGER,
		adherence_percentage DOUBLE PRECISION,
		patient_satisfaction INTEGER,
		clinician_notes TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_patient ON outcomes(patient_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_patient_technique ON outcomes(patient_id, technique_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Append persists one outcome record.
func (s *PostgresStore) Append(ctx context.Context, record *domain.OutcomeRecord) error {
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
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

// History returns the patient's outcome records, most recent first.
func (s *PostgresStore) History(ctx context.Context, patientID string) ([]*domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectOutcomeColumns+`
		FROM outcomes
		WHERE patient_id = $1
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
func (s *PostgresStore) TechniqueOutcomes(ctx context.Context, patientID string) (map[string]domain.TechniqueSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT technique_id,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT success THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM outcomes
		WHERE patient_id = $1
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
func (s *PostgresStore) Summary(ctx context.Context, patientID string) (*domain.PatientSummary, error) {
	history, err := s.History(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return summarize(patientID, history), nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
