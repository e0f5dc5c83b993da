package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-rehab-cdss-server/internal/domain"
	"github.com/vision-rehab-cdss-server/internal/normalizer"
	"github.com/vision-rehab-cdss-server/internal/outcome"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func testKnowledgeBase() *domain.KnowledgeBase {
	return &domain.KnowledgeBase{
		Rules: []domain.ClinicalRule{
			{
				RuleID:      "ECC-001",
				Technique:   "Eccentric viewing training",
				TechniqueAr: "تدريب الرؤية اللامركزية",
				Conditions: domain.RuleConditions{
					HasVisionPattern: []string{"central_scotoma"},
					FunctionalGoals:  []string{"reading"},
				},
				Recommendation: domain.RuleRecommendation{
					Action:                "Train a preferred retinal locus",
					EvidenceLevel:         domain.Evidence2a,
					Priority:              1,
					JustificationTemplate: "حدة الإبصار {va} LogMAR مع هدف {goal}",
				},
			},
			{
				RuleID:    "MAG-001",
				Technique: "Optical magnifier",
				Conditions: domain.RuleConditions{
					HasVisionPattern: []string{"central_scotoma", "general_blur"},
				},
				Recommendation: domain.RuleRecommendation{
					Action:        "Prescribe an optical magnifier",
					EvidenceLevel: domain.Evidence1b,
					Priority:      2,
				},
			},
			{
				RuleID:    "SCAN-001",
				Technique: "Scanning training",
				Conditions: domain.RuleConditions{
					HasVisionPattern: []string{"hemianopia"},
				},
				Recommendation: domain.RuleRecommendation{
					Action:        "Saccadic scanning training",
					EvidenceLevel: domain.Evidence1b,
					Priority:      1,
				},
			},
		},
		Mappings: domain.CodeMappings{
			ICD10ToDiagnosis: map[string]domain.DiagnosisMapping{
				"H35.30": {Name: "AMD", NameAr: "التنكس البقعي", Pattern: "central_scotoma", Category: "macular"},
			},
			LOINCToObservation: map[string]domain.ObservationMapping{
				"70770-3": {Field: "va_logmar"},
				"44261-6": {Field: "phq9_score"},
			},
			WHOClassification: map[string]domain.WHOBand{
				"category_1": {Label: "Moderate visual impairment", LabelAr: "متوسط", VARange: domain.VARange{Min: 0.1, Max: 0.3}},
			},
		},
	}
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	store, err := outcome.NewSQLiteStore(filepath.Join(t.TempDir(), "outcomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEvaluator(testLogger(), testKnowledgeBase(), store)
}

func scotomaRecord() *normalizer.ManualRecord {
	return &normalizer.ManualRecord{
		Age:             intPtr(72),
		ICD10Codes:      []string{"H35.30"},
		VALogMAR:        floatPtr(1.0),
		FunctionalGoals: []string{"reading"},
	}
}

func TestEvaluateManualFullPipeline(t *testing.T) {
	e := newTestEvaluator(t)

	result, err := e.EvaluateManual(context.Background(), scotomaRecord(), domain.LanguageArabic)

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.Len(t, result.Recommendations, 2)

	// Priority 1 rule first, with its goal bonus and filled justification.
	top := result.Recommendations[0]
	assert.Equal(t, "ECC-001", top.RuleID)
	assert.Equal(t, 19.0, top.SuitabilityScore)
	assert.Contains(t, top.Justification, "1")
	assert.Contains(t, top.Justification, "reading")

	assert.Equal(t, 3, result.TotalRulesEvaluated)
	assert.Equal(t, 2, result.TotalMatched)
	assert.NotEmpty(t, result.ClinicalReport)
	require.NotNil(t, result.AuditTrail)
	assert.Len(t, result.AuditTrail.FiredRules, 2)
	assert.Len(t, result.AuditTrail.SkippedRules, 1)
}

func TestEvaluateGuardrailVeto(t *testing.T) {
	e := newTestEvaluator(t)

	record := scotomaRecord()
	record.Age = intPtr(200)

	result, err := e.EvaluateManual(context.Background(), record, domain.LanguageEnglish)

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
	assert.Empty(t, result.Recommendations)
	assert.Zero(t, result.TotalRulesEvaluated, "evaluation never runs on invalid input")
	assert.Contains(t, result.ClinicalReport, "Safety Alerts")
}

func TestEvaluateWithOutcomeHistory(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	// ECC-001 failed once with no successes for this patient.
	require.NoError(t, e.LogOutcome(ctx, &domain.OutcomeRecord{
		PatientID:   "pt-001",
		TechniqueID: "ECC-001",
		OutcomeDate: time.Now(),
		Success:     boolPtr(false),
	}))

	bundle := &normalizer.Bundle{
		Entry: []normalizer.BundleEntry{
			{Resource: []byte(`{"resourceType":"Patient","id":"pt-001","birthDate":"1952-01-01"}`)},
			{Resource: []byte(`{"resourceType":"Condition","clinicalStatus":{"coding":[{"code":"active"}]},"code":{"coding":[{"system":"http://hl7.org/fhir/sid/icd-10","code":"H35.30"}]}}`)},
			{Resource: []byte(`{"resourceType":"Observation","code":{"coding":[{"code":"70770-3"}]},"valueQuantity":{"value":1.0}}`)},
			{Resource: []byte(`{"resourceType":"Goal","description":{"text":"Reading"}}`)},
		},
	}

	result, err := e.EvaluateFHIR(ctx, bundle, domain.LanguageArabic)

	require.NoError(t, err)
	require.Len(t, result.Recommendations, 2)

	// The failed technique is demoted below the untouched one.
	assert.Equal(t, "MAG-001", result.Recommendations[0].RuleID)
	demoted := result.Recommendations[1]
	assert.Equal(t, "ECC-001", demoted.RuleID)
	assert.Equal(t, 6, demoted.Priority)
	assert.NotEmpty(t, demoted.OutcomeNote)
}

func TestEvaluateManualWithOutcomeHistory(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	require.NoError(t, e.LogOutcome(ctx, &domain.OutcomeRecord{
		PatientID:   "pt-002",
		TechniqueID: "ECC-001",
		OutcomeDate: time.Now(),
		Success:     boolPtr(false),
	}))

	// A manual record carrying the patient identity reaches the same
	// history adjustment as the bundle path.
	record := scotomaRecord()
	record.PatientID = "pt-002"

	result, err := e.EvaluateManual(ctx, record, domain.LanguageArabic)

	require.NoError(t, err)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "MAG-001", result.Recommendations[0].RuleID)
	demoted := result.Recommendations[1]
	assert.Equal(t, "ECC-001", demoted.RuleID)
	assert.Equal(t, 6, demoted.Priority)
	assert.Equal(t, 9.0, demoted.SuitabilityScore)
	assert.NotEmpty(t, demoted.OutcomeNote)
}

func TestEvaluateAnonymousSkipsAdjustment(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	// History exists, but a manual record carries no patient identity.
	require.NoError(t, e.LogOutcome(ctx, &domain.OutcomeRecord{
		PatientID:   "pt-001",
		TechniqueID: "ECC-001",
		OutcomeDate: time.Now(),
		Success:     boolPtr(false),
	}))

	result, err := e.EvaluateManual(ctx, scotomaRecord(), domain.LanguageArabic)

	require.NoError(t, err)
	assert.Equal(t, "ECC-001", result.Recommendations[0].RuleID)
	assert.Equal(t, 1, result.Recommendations[0].Priority)
	assert.Empty(t, result.Recommendations[0].OutcomeNote)
}

func TestLogOutcomeDerivesSuccess(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	record := &domain.OutcomeRecord{
		PatientID:   "pt-001",
		TechniqueID: "ECC-001",
		Measurements: domain.OutcomeMeasurements{
			VABefore: floatPtr(1.0),
			VAAfter:  floatPtr(0.8),
		},
	}

	require.NoError(t, e.LogOutcome(ctx, record))

	require.NotNil(t, record.Success)
	assert.True(t, *record.Success)
	assert.InDelta(t, 0.2, *record.Measurements.VAImprovement, 1e-9)
	assert.False(t, record.OutcomeDate.IsZero())

	history, err := e.PatientHistory(ctx, "pt-001")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestLogOutcomeValidation(t *testing.T) {
	e := newTestEvaluator(t)

	err := e.LogOutcome(context.Background(), &domain.OutcomeRecord{TechniqueID: "ECC-001"})
	assert.ErrorIs(t, err, domain.ErrPatientIDRequired)

	err = e.LogOutcome(context.Background(), &domain.OutcomeRecord{PatientID: "pt-001"})
	assert.ErrorIs(t, err, domain.ErrTechniqueIDRequired)
}

func TestPatientSummary(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	require.NoError(t, e.LogOutcome(ctx, &domain.OutcomeRecord{
		PatientID:   "pt-001",
		TechniqueID: "ECC-001",
		Success:     boolPtr(true),
	}))

	summary, err := e.PatientSummary(ctx, "pt-001")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalOutcomes)
	assert.Equal(t, 1, summary.Successes)

	_, err = e.PatientSummary(ctx, "")
	assert.ErrorIs(t, err, domain.ErrPatientIDRequired)
}

func TestEvaluateDeterministicAcrossCalls(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	first, err := e.EvaluateManual(ctx, scotomaRecord(), domain.LanguageArabic)
	require.NoError(t, err)
	second, err := e.EvaluateManual(ctx, scotomaRecord(), domain.LanguageArabic)
	require.NoError(t, err)

	assert.Equal(t, first.Recommendations, second.Recommendations)
}
