// Package service wires the pipeline together: normalize, validate, evaluate,
// adjust against history, explain.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/domain"
	"github.com/vision-rehab-cdss-server/internal/engine"
	"github.com/vision-rehab-cdss-server/internal/explain"
	"github.com/vision-rehab-cdss-server/internal/guardrails"
	"github.com/vision-rehab-cdss-server/internal/normalizer"
	"github.com/vision-rehab-cdss-server/internal/outcome"
)

// Result is the consolidated outcome of one evaluation request. Invalid input
// short-circuits: IsValid is false, Recommendations is empty, and the report
// carries only the safety alerts.
type Result struct {
	IsValid             bool                     `json:"is_valid"`
	Errors              []domain.ValidationIssue `json:"errors"`
	Warnings            []domain.ValidationIssue `json:"warnings"`
	Recommendations     []domain.Recommendation  `json:"recommendations"`
	ClinicalReport      string                   `json:"clinical_report"`
	AuditTrail          *explain.AuditTrail      `json:"audit_trail"`
	PatientContext      *domain.PatientContext   `json:"patient_context"`
	TotalRulesEvaluated int                      `json:"total_rules_evaluated"`
	TotalMatched        int                      `json:"total_matched"`
}

// Evaluator sequences normalization, guardrail validation, rule evaluation,
// history-based adjustment, and explanation into one call.
type Evaluator struct {
	logger    *logrus.Logger
	parser    *normalizer.Parser
	validator *guardrails.Validator
	engine    *engine.Engine
	store     outcome.Store
	builder   *explain.Builder

	// templates maps rule ID to its justification template.
	templates map[string]string
}

// NewEvaluator assembles the pipeline from the loaded knowledge base and the
// configured outcome store.
func NewEvaluator(logger *logrus.Logger, kb *domain.KnowledgeBase, store outcome.Store) *Evaluator {
	templates := make(map[string]string, len(kb.Rules))
	for _, rule := range kb.Rules {
		templates[rule.RuleID] = rule.Recommendation.JustificationTemplate
	}

	return &Evaluator{
		logger:    logger,
		parser:    normalizer.NewParser(logger, kb.Mappings),
		validator: guardrails.NewValidator(logger, kb.Guardrails),
		engine:    engine.New(logger, kb.Rules),
		store:     store,
		builder:   explain.NewBuilder(logger),
		templates: templates,
	}
}

// EvaluateFHIR runs the full pipeline over a FHIR bundle.
func (e *Evaluator) EvaluateFHIR(ctx context.Context, bundle *normalizer.Bundle, lang domain.Language) (*Result, error) {
	patientCtx := e.parser.ParseBundle(bundle)
	return e.evaluate(ctx, patientCtx, lang)
}

// EvaluateManual runs the full pipeline over a flat manual record.
func (e *Evaluator) EvaluateManual(ctx context.Context, record *normalizer.ManualRecord, lang domain.Language) (*Result, error) {
	patientCtx := e.parser.ParseManual(record)
	return e.evaluate(ctx, patientCtx, lang)
}

func (e *Evaluator) evaluate(ctx context.Context, patientCtx *domain.PatientContext, lang domain.Language) (*Result, error) {
	if !lang.IsValid() {
		lang = domain.LanguageArabic
	}

	validation := e.validator.Validate(patientCtx)
	if !validation.IsValid {
		return e.rejected(patientCtx, validation, lang)
	}

	eval := e.engine.Evaluate(patientCtx)

	// History adjustment needs a patient identity; anonymous evaluations
	// skip it entirely.
	if patientID := patientCtx.Patient.PatientID; patientID != "" {
		history, err := e.store.TechniqueOutcomes(ctx, patientID)
		if err != nil {
			return nil, err
		}
		eval.Recommendations = outcome.AdjustPriorities(eval.Recommendations, history)
	}

	for i := range eval.Recommendations {
		rec := &eval.Recommendations[i]
		rec.Justification = e.builder.BuildJustification(rec, e.templates[rec.RuleID], patientCtx)
	}

	report, err := e.builder.FormatForClinician(eval, patientCtx, validation, lang)
	if err != nil {
		return nil, err
	}

	return &Result{
		IsValid:             true,
		Errors:              validation.Errors,
		Warnings:            validation.Warnings,
		Recommendations:     eval.Recommendations,
		ClinicalReport:      report,
		AuditTrail:          e.builder.BuildAuditTrail(eval, patientCtx, validation),
		PatientContext:      patientCtx,
		TotalRulesEvaluated: eval.TotalRulesEvaluated,
		TotalMatched:        eval.TotalMatched,
	}, nil
}

// rejected builds the short-circuit result for a context that failed
// guardrail validation: no rules are evaluated.
func (e *Evaluator) rejected(patientCtx *domain.PatientContext, validation *domain.ValidationResult, lang domain.Language) (*Result, error) {
	e.logger.WithField("errors", len(validation.Errors)).Warn("Evaluation rejected by guardrails")

	empty := &domain.EvaluationResult{
		Recommendations: []domain.Recommendation{},
		SkippedRules:    []domain.SkippedRule{},
	}

	report, err := e.builder.FormatForClinician(empty, patientCtx, validation, lang)
	if err != nil {
		return nil, err
	}

	return &Result{
		IsValid:         false,
		Errors:          validation.Errors,
		Warnings:        validation.Warnings,
		Recommendations: []domain.Recommendation{},
		ClinicalReport:  report,
		AuditTrail:      e.builder.BuildAuditTrail(empty, patientCtx, validation),
		PatientContext:  patientCtx,
	}, nil
}

// LogOutcome derives the success flag when needed and appends the record to
// the patient's history.
func (e *Evaluator) LogOutcome(ctx context.Context, record *domain.OutcomeRecord) error {
	if record.PatientID == "" {
		return domain.ErrPatientIDRequired
	}
	if record.TechniqueID == "" {
		return domain.ErrTechniqueIDRequired
	}
	if record.OutcomeDate.IsZero() {
		record.OutcomeDate = time.Now()
	}

	record.DeriveSuccess()

	if err := e.store.Append(ctx, record); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"patient_id":   record.PatientID,
		"technique_id": record.TechniqueID,
	}).Info("Outcome logged")
	return nil
}

// PatientHistory returns the patient's outcome records, most recent first.
func (e *Evaluator) PatientHistory(ctx context.Context, patientID string) ([]*domain.OutcomeRecord, error) {
	if patientID == "" {
		return nil, domain.ErrPatientIDRequired
	}
	return e.store.History(ctx, patientID)
}

// PatientSummary returns the aggregate view over the patient's history.
func (e *Evaluator) PatientSummary(ctx context.Context, patientID string) (*domain.PatientSummary, error) {
	if patientID == "" {
		return nil, domain.ErrPatientIDRequired
	}
	return e.store.Summary(ctx, patientID)
}

// Rules exposes the loaded rule set for the read-only listing endpoint.
func (e *Evaluator) Rules() []domain.ClinicalRule {
	return e.engine.Rules()
}
