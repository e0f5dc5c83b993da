// Package outcome persists logged rehabilitation outcomes and feeds the
// patient's history back into recommendation ranking.
package outcome

import (
	"context"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// Store is the append-only outcome history store. Records are never updated
// or deleted; repeated outcomes for the same patient and technique accumulate.
type Store interface {
	// Append persists one outcome record. DeriveSuccess must have been
	// called before appending.
	Append(ctx context.Context, record *domain.OutcomeRecord) error

	// History returns the patient's outcome records, most recent first.
	History(ctx context.Context, patientID string) ([]*domain.OutcomeRecord, error)

	// TechniqueOutcomes aggregates the patient's history per technique.
	// Records whose success flag is still unresolved count toward Total only.
	TechniqueOutcomes(ctx context.Context, patientID string) (map[string]domain.TechniqueSummary, error)

	// Summary returns the aggregate view over the patient's full history.
	Summary(ctx context.Context, patientID string) (*domain.PatientSummary, error)

	// Close releases the underlying resources.
	Close() error
}

// summarize builds the aggregate patient view from a history slice. Shared by
// both SQL backends so the two stay behaviorally identical.
func summarize(patientID string, history []*domain.OutcomeRecord) *domain.PatientSummary {
	summary := &domain.PatientSummary{
		PatientID:     patientID,
		TotalOutcomes: len(history),
	}

	seen := map[string]bool{}
	var improvementSum float64
	var improvementCount int

	for _, rec := range history {
		if !seen[rec.TechniqueID] {
			seen[rec.TechniqueID] = true
			summary.TechniquesTried = append(summary.TechniquesTried, rec.TechniqueID)
		}
		if rec.Success != nil {
			if *rec.Success {
				summary.Successes++
			} else {
				summary.Failures++
			}
		}
		if imp := rec.Measurements.VAImprovement; imp != nil {
			improvementSum += *imp
			improvementCount++
			if summary.BestVAImprovement == nil || *imp > *summary.BestVAImprovement {
				best := *imp
				summary.BestVAImprovement = &best
			}
		}
	}

	if resolved := summary.Successes + summary.Failures; resolved > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(resolved)
	}
	if improvementCount > 0 {
		avg := improvementSum / float64(improvementCount)
		summary.AvgVAImprovement = &avg
	}

	return summary
}
