package explain

import (
	"time"

	"github.com/google/uuid"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// AuditMetadata identifies one evaluation session.
type AuditMetadata struct {
	TrailID             string    `json:"trail_id"`
	Timestamp           time.Time `json:"timestamp"`
	EngineVersion       string    `json:"engine_version"`
	TotalRulesEvaluated int       `json:"total_rules_evaluated"`
	TotalMatched        int       `json:"total_matched"`
	Source              string    `json:"source"`
}

// AuditInputSummary is the snapshot of the key input fields the decision was
// made from.
type AuditInputSummary struct {
	ActiveICD10        []string `json:"active_icd10"`
	VisionPatterns     []string `json:"vision_patterns"`
	WHOCategory        string   `json:"who_category"`
	VALogMAR           *float64 `json:"va_logmar,omitempty"`
	PHQ9Score          *float64 `json:"phq9_score,omitempty"`
	CognitiveStatus    string   `json:"cognitive_status"`
	FunctionalGoals    []string `json:"functional_goals"`
	EquipmentAvailable []string `json:"equipment_available"`
	Setting            string   `json:"setting"`
	PatientAge         *int     `json:"patient_age,omitempty"`
}

// AuditValidation summarizes the guardrail outcome.
type AuditValidation struct {
	IsValid       bool                     `json:"is_valid"`
	ErrorsCount   int                      `json:"errors_count"`
	WarningsCount int                      `json:"warnings_count"`
	Errors        []domain.ValidationIssue `json:"errors"`
	Warnings      []domain.ValidationIssue `json:"warnings"`
}

// FiredRule is the per-recommendation scoring breakdown.
type FiredRule struct {
	RuleID           string                   `json:"rule_id"`
	Technique        string                   `json:"technique"`
	EvidenceLevel    domain.EvidenceLevel     `json:"evidence_level"`
	Priority         int                      `json:"priority"`
	SuitabilityScore float64                  `json:"suitability_score"`
	ScoreAdjustments []domain.ScoreAdjustment `json:"score_adjustments"`
}

// AuditTrail is the complete record of one evaluation: what went in, what
// the guardrails said, which rules fired with what scores, and which were
// skipped and why.
type AuditTrail struct {
	Metadata     AuditMetadata        `json:"metadata"`
	InputSummary AuditInputSummary    `json:"input_summary"`
	Validation   *AuditValidation     `json:"validation,omitempty"`
	FiredRules   []FiredRule          `json:"fired_rules"`
	SkippedRules []domain.SkippedRule `json:"skipped_rules"`
}

// BuildAuditTrail assembles the audit record for one evaluation session.
func (b *Builder) BuildAuditTrail(eval *domain.EvaluationResult, ctx *domain.PatientContext, validation *domain.ValidationResult) *AuditTrail {
	trail := &AuditTrail{
		Metadata: AuditMetadata{
			TrailID:             uuid.New().String(),
			Timestamp:           time.Now(),
			EngineVersion:       engineVersion,
			TotalRulesEvaluated: eval.TotalRulesEvaluated,
			TotalMatched:        eval.TotalMatched,
			Source:              string(ctx.Source),
		},
		InputSummary: AuditInputSummary{
			ActiveICD10:        ctx.ActiveICD10,
			VisionPatterns:     ctx.VisionPatterns,
			CognitiveStatus:    string(ctx.CognitiveStatus),
			FunctionalGoals:    ctx.FunctionalGoals,
			EquipmentAvailable: ctx.EquipmentAvailable,
			Setting:            string(ctx.Setting),
			PatientAge:         ctx.Patient.Age,
		},
		FiredRules:   []FiredRule{},
		SkippedRules: eval.SkippedRules,
	}

	if ctx.WHOCategory != nil {
		trail.InputSummary.WHOCategory = ctx.WHOCategory.Category
	}
	if va, ok := ctx.Observation("va_logmar"); ok {
		trail.InputSummary.VALogMAR = &va
	}
	if phq9, ok := ctx.Observation("phq9_score"); ok {
		trail.InputSummary.PHQ9Score = &phq9
	}

	if validation != nil {
		trail.Validation = &AuditValidation{
			IsValid:       validation.IsValid,
			ErrorsCount:   len(validation.Errors),
			WarningsCount: len(validation.Warnings),
			Errors:        validation.Errors,
			Warnings:      validation.Warnings,
		}
	}

	for _, rec := range eval.Recommendations {
		trail.FiredRules = append(trail.FiredRules, FiredRule{
			RuleID:           rec.RuleID,
			Technique:        rec.Technique,
			EvidenceLevel:    rec.EvidenceLevel,
			Priority:         rec.Priority,
			SuitabilityScore: rec.SuitabilityScore,
			ScoreAdjustments: rec.MatchDetails.ScoreAdjustments,
		})
	}

	return trail
}
