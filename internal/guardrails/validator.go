// Package guardrails runs clinical safety checks against a patient context
// before rule evaluation: static integrity checks, configured contradiction
// rules, and built-in dynamic checks. Errors halt the pipeline; warnings are
// surfaced alongside recommendations.
package guardrails

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// Static integrity bounds.
const (
	maxPlausibleAge = 150
	// LogMAR below -0.3 is physically impossible.
	minPlausibleVALogMAR = -0.3
	phq9Min              = 0
	phq9Max              = 27
	// LogMAR above this cutoff makes purely visual goals unrealistic.
	severeVILogMAR = 2.0
)

// visualGoals are the functional goals that require usable vision.
var visualGoals = map[string]bool{
	"reading":          true,
	"face_recognition": true,
	"tv_watching":      true,
	"driving":          true,
	"writing":          true,
}

// Validator checks patient contexts for contradictions and impossible data.
type Validator struct {
	logger *logrus.Logger
	rules  []domain.GuardrailRule
}

// NewValidator creates a validator over the configured contradiction rules.
func NewValidator(logger *logrus.Logger, rules []domain.GuardrailRule) *Validator {
	return &Validator{logger: logger, rules: rules}
}

// Validate runs all checks in order and collects their findings into one
// result. The result is invalid iff at least one error was appended.
func (v *Validator) Validate(ctx *domain.PatientContext) *domain.ValidationResult {
	result := domain.NewValidationResult()

	v.checkDataIntegrity(ctx, result)
	v.checkContradictionRules(ctx, result)
	v.checkGoalVsCapability(ctx, result)
	v.checkDiagnosisVsPattern(ctx, result)

	v.logger.WithFields(logrus.Fields{
		"is_valid": result.IsValid,
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	}).Debug("Guardrail validation completed")

	return result
}

// checkDataIntegrity runs the static sanity checks.
func (v *Validator) checkDataIntegrity(ctx *domain.PatientContext, result *domain.ValidationResult) {
	if age := ctx.Patient.Age; age != nil {
		if *age < 0 || *age > maxPlausibleAge {
			result.AddError(
				"DATA_AGE_INVALID",
				fmt.Sprintf("عمر المريض (%d) خارج النطاق المنطقي (0-150)", *age),
				fmt.Sprintf("Patient age (%d) outside logical range (0-150)", *age),
			)
		}
	}

	if va, ok := ctx.Observation("va_logmar"); ok && va < minPlausibleVALogMAR {
		result.AddError(
			"DATA_VA_INVALID",
			fmt.Sprintf("قيمة VA غير منطقية (LogMAR=%g < -0.3)", va),
			fmt.Sprintf("VA value impossible (LogMAR=%g < -0.3)", va),
		)
	}

	if phq9, ok := ctx.Observation("phq9_score"); ok && (phq9 < phq9Min || phq9 > phq9Max) {
		result.AddWarning(
			"DATA_PHQ9_RANGE",
			fmt.Sprintf("قيمة PHQ-9 (%g) خارج النطاق (0-27)", phq9),
			fmt.Sprintf("PHQ-9 score (%g) outside valid range (0-27)", phq9),
		)
	}

	if len(ctx.VisionPatterns) == 0 && len(ctx.ActiveICD10) == 0 {
		result.AddWarning(
			"DATA_INSUFFICIENT",
			"لا يوجد تشخيص أو نمط فقد بصري، النتائج قد تكون محدودة",
			"No diagnosis or vision pattern provided; results may be limited",
		)
	}
}

// checkContradictionRules dispatches each configured rule to the predicate
// for its check kind and emits a finding per the rule's declared severity.
func (v *Validator) checkContradictionRules(ctx *domain.PatientContext, result *domain.ValidationResult) {
	for _, rule := range v.rules {
		var matched bool

		switch rule.Check {
		case domain.CheckGoalVsCapability:
			matched = matchGoalVsCapability(ctx, rule.Condition)
		case domain.CheckDiagnosisVsPattern:
			matched = matchDiagnosisVsPattern(ctx, rule.Condition)
		case domain.CheckCognitiveVsTechnique:
			matched = matchCognitiveVsTechnique(ctx, rule.Condition)
		case domain.CheckAgeSafety:
			matched = matchAgeSafety(ctx, rule.Condition)
		case domain.CheckDataIntegrity:
			matched = matchDataIntegrity(ctx, rule.Condition)
		case domain.CheckEquipmentAvailability:
			// Handled during rule evaluation, not validation.
			continue
		}

		if !matched {
			continue
		}
		if rule.Severity == domain.SeverityError {
			result.AddError(rule.ID, rule.MessageAr, rule.MessageEn)
		} else {
			result.AddWarning(rule.ID, rule.MessageAr, rule.MessageEn)
		}
	}
}

// matchGoalVsCapability fires when a stated functional goal is incompatible
// with the patient's acuity or loss pattern.
func matchGoalVsCapability(ctx *domain.PatientContext, cond domain.GuardrailCondition) bool {
	if cond.DiagnosisCategory != "" {
		if !ctx.HasDiagnosisCategory(cond.DiagnosisCategory) {
			return false
		}
		return ctx.HasGoal(cond.FunctionalGoal)
	}

	if cond.VALogMARMin != nil {
		va, ok := ctx.Observation("va_logmar")
		if !ok || va < *cond.VALogMARMin {
			return false
		}
		return ctx.HasGoal(cond.FunctionalGoal)
	}

	return false
}

// matchDiagnosisVsPattern fires when a declared diagnosis and pattern pair
// appear together even though they contradict.
func matchDiagnosisVsPattern(ctx *domain.PatientContext, cond domain.GuardrailCondition) bool {
	hasICD := false
	for _, code := range cond.DiagnosisICD10 {
		for _, active := range ctx.ActiveICD10 {
			if code == active {
				hasICD = true
				break
			}
		}
	}
	return hasICD && ctx.HasPattern(cond.VisionPattern)
}

func matchCognitiveVsTechnique(ctx *domain.PatientContext, cond domain.GuardrailCondition) bool {
	for _, status := range cond.CognitiveStatus {
		if ctx.CognitiveStatus == status {
			return true
		}
	}
	return false
}

func matchAgeSafety(ctx *domain.PatientContext, cond domain.GuardrailCondition) bool {
	age := ctx.Patient.Age
	if age == nil {
		return false
	}
	if cond.PatientAgeMax != nil && *age <= *cond.PatientAgeMax {
		return true
	}
	if cond.PatientAgeMin != nil && *age >= *cond.PatientAgeMin {
		return true
	}
	return false
}

func matchDataIntegrity(ctx *domain.PatientContext, cond domain.GuardrailCondition) bool {
	if cond.VALogMARMax != nil {
		if va, ok := ctx.Observation("va_logmar"); ok && va < *cond.VALogMARMax {
			return true
		}
	}
	return false
}

// checkGoalVsCapability is the built-in dynamic check: severely impaired
// acuity combined with goals that require functional vision.
func (v *Validator) checkGoalVsCapability(ctx *domain.PatientContext, result *domain.ValidationResult) {
	va, ok := ctx.Observation("va_logmar")
	if !ok || va <= severeVILogMAR {
		return
	}

	var conflicting []string
	for _, goal := range ctx.FunctionalGoals {
		if visualGoals[goal] {
			conflicting = append(conflicting, goal)
		}
	}
	if len(conflicting) == 0 {
		return
	}

	joined := strings.Join(conflicting, ", ")
	result.AddWarning(
		"DYNAMIC_SEVERE_VI_GOALS",
		fmt.Sprintf("أهداف بصرية (%s) مع ضعف بصر شديد جداً، يجب تقديم بدائل صوتية/لمسية", joined),
		fmt.Sprintf("Visual goals (%s) with very severe VI; audio/tactile alternatives needed", joined),
	)
}

// checkDiagnosisVsPattern is the built-in dynamic check: every diagnosis with
// a declared expected pattern must find that pattern in the reported set.
func (v *Validator) checkDiagnosisVsPattern(ctx *domain.PatientContext, result *domain.ValidationResult) {
	if len(ctx.VisionPatterns) == 0 {
		return
	}

	for _, diag := range ctx.Diagnoses {
		if diag.Pattern == "" || diag.Pattern == "any" || ctx.HasPattern(diag.Pattern) {
			continue
		}
		actual := strings.Join(ctx.VisionPatterns, ", ")
		result.AddWarning(
			fmt.Sprintf("DYNAMIC_PATTERN_MISMATCH_%s", diag.Code),
			fmt.Sprintf("التشخيص %s (%s) يُتوقع منه نمط '%s' لكن الأنماط المُدخلة: %s", diag.NameAr, diag.Code, diag.Pattern, actual),
			fmt.Sprintf("Diagnosis %s (%s) expects pattern '%s' but input patterns: %s", diag.Name, diag.Code, diag.Pattern, actual),
		)
	}
}
