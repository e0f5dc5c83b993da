package domain

import "time"

// MinSignificantVAImprovement is the clinically meaningful visual-acuity
// improvement (LogMAR) used to derive success when no explicit flag is given.
const MinSignificantVAImprovement = 0.1

// OutcomeMeasurements holds the before/after measurement pair of one
// rehabilitation outcome.
type OutcomeMeasurements struct {
	VABefore           *float64 `json:"va_before,omitempty"`
	VAAfter            *float64 `json:"va_after,omitempty"`
	VAImprovement      *float64 `json:"va_improvement,omitempty"`
	ReadingSpeedBefore *int     `json:"reading_speed_before,omitempty"`
	ReadingSpeedAfter  *int     `json:"reading_speed_after,omitempty"`
}

// OutcomeAdherence captures how well the patient followed the protocol.
type OutcomeAdherence struct {
	SessionsCompleted   *int     `json:"sessions_completed,omitempty"`
	AdherencePercentage *float64 `json:"adherence_percentage,omitempty"`
}

// OutcomeRecord is one logged result of applying a technique to a patient.
// Records are appended to the patient's history and never mutated or deleted.
//
// Success is tri-state: nil means unknown until derivation; DeriveSuccess
// resolves it from the VA delta when both measurements are present.
type OutcomeRecord struct {
	PatientID           string              `json:"patient_id"`
	TechniqueID         string              `json:"technique_id"`
	OutcomeDate         time.Time           `json:"outcome_date"`
	Success             *bool               `json:"success,omitempty"`
	Measurements        OutcomeMeasurements `json:"measurements"`
	Adherence           OutcomeAdherence    `json:"adherence"`
	PatientSatisfaction *int                `json:"patient_satisfaction,omitempty"`
	ClinicianNotes      string              `json:"clinician_notes,omitempty"`
}

// DeriveSuccess fills VAImprovement and, when Success was not explicitly
// supplied, resolves it deterministically from the before/after delta using
// the fixed clinically-significant threshold.
func (o *OutcomeRecord) DeriveSuccess() {
	if o.Measurements.VABefore == nil || o.Measurements.VAAfter == nil {
		return
	}
	improvement := *o.Measurements.VABefore - *o.Measurements.VAAfter
	o.Measurements.VAImprovement = &improvement
	if o.Success == nil {
		derived := improvement >= MinSignificantVAImprovement
		o.Success = &derived
	}
}

// TechniqueSummary aggregates a patient's history for one technique.
type TechniqueSummary struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Total     int `json:"total"`
}

// PatientSummary is the aggregate view over a patient's full history.
type PatientSummary struct {
	PatientID         string   `json:"patient_id"`
	TotalOutcomes     int      `json:"total_outcomes"`
	Successes         int      `json:"successes"`
	Failures          int      `json:"failures"`
	SuccessRate       float64  `json:"success_rate"`
	TechniquesTried   []string `json:"techniques_tried,omitempty"`
	BestVAImprovement *float64 `json:"best_va_improvement,omitempty"`
	AvgVAImprovement  *float64 `json:"avg_va_improvement,omitempty"`
}
