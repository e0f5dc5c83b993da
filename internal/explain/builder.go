// Package explain turns evaluation results into human-readable justifications,
// a structured audit trail, and a localized clinician report.
package explain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// engineVersion is recorded in every audit trail.
const engineVersion = "1.0.0"

// placeholderPattern matches {variable} placeholders in justification
// templates.
var placeholderPattern = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// templateVariables is the closed set of placeholders a justification
// template may use. A template referencing anything outside this set is
// rejected up front and the default justification is rendered instead.
var templateVariables = map[string]bool{
	"va":           true,
	"va_logmar":    true,
	"va_decimal":   true,
	"phq9":         true,
	"phq9_score":   true,
	"cs":           true,
	"oct":          true,
	"diagnosis":    true,
	"diagnosis_ar": true,
	"pattern":      true,
	"goal":         true,
	"equipment":    true,
	"age":          true,
	"setting":      true,
	"who_category": true,
	"severity":     true,
}

// Builder assembles justifications, audit trails, and clinician reports.
type Builder struct {
	logger *logrus.Logger
}

// NewBuilder creates an explainability builder.
func NewBuilder(logger *logrus.Logger) *Builder {
	return &Builder{logger: logger}
}

// BuildJustification fills the rule's justification template from the patient
// context. Templates may only reference the declared variable set; an unknown
// placeholder or an empty template falls back to a generated sentence naming
// the technique, evidence level, and references.
func (b *Builder) BuildJustification(rec *domain.Recommendation, template string, ctx *domain.PatientContext) string {
	if template == "" {
		return defaultJustification(rec)
	}

	vars := collectTemplateVariables(ctx)
	unknown := false
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if !templateVariables[name] {
			unknown = true
			return match
		}
		return vars[name]
	})

	if unknown {
		b.logger.WithField("rule_id", rec.RuleID).Warn("Justification template uses undeclared variable, using default")
		return defaultJustification(rec)
	}
	return rendered
}

// collectTemplateVariables assembles the variable dictionary from the
// context. Absent values render as "N/A" so a filled template never shows an
// empty hole for a measurement.
func collectTemplateVariables(ctx *domain.PatientContext) map[string]string {
	vars := map[string]string{}

	setObs := func(names []string, field string) {
		value := "N/A"
		if v, ok := ctx.Observation(field); ok {
			value = formatNumber(v)
		}
		for _, name := range names {
			vars[name] = value
		}
	}
	setObs([]string{"va", "va_logmar"}, "va_logmar")
	setObs([]string{"phq9", "phq9_score"}, "phq9_score")
	setObs([]string{"cs"}, "contrast_sensitivity")
	setObs([]string{"oct"}, "oct_central_thickness")

	vars["diagnosis"] = ""
	vars["diagnosis_ar"] = ""
	if len(ctx.Diagnoses) > 0 {
		vars["diagnosis"] = ctx.Diagnoses[0].Name
		vars["diagnosis_ar"] = ctx.Diagnoses[0].NameAr
	}

	vars["pattern"] = firstOrEmpty(ctx.VisionPatterns)
	vars["goal"] = firstOrEmpty(ctx.FunctionalGoals)

	vars["equipment"] = "N/A"
	if len(ctx.EquipmentAvailable) > 0 {
		vars["equipment"] = ctx.EquipmentAvailable[0]
	}

	vars["age"] = "N/A"
	if ctx.Patient.Age != nil {
		vars["age"] = fmt.Sprintf("%d", *ctx.Patient.Age)
	}

	vars["setting"] = string(ctx.Setting)

	vars["va_decimal"] = "N/A"
	vars["who_category"] = ""
	if ctx.WHOCategory != nil {
		vars["va_decimal"] = formatNumber(ctx.WHOCategory.VADecimal)
		vars["who_category"] = ctx.WHOCategory.LabelAr
	}

	if phq9, ok := ctx.Observation("phq9_score"); ok {
		vars["severity"] = phq9SeverityAr(int(phq9))
	} else {
		vars["severity"] = "N/A"
	}

	return vars
}

// phq9SeverityAr maps a PHQ-9 depression screening score to its Arabic
// severity label.
func phq9SeverityAr(score int) string {
	switch {
	case score <= 4:
		return "طبيعي"
	case score <= 9:
		return "خفيف"
	case score <= 14:
		return "متوسط"
	case score <= 19:
		return "متوسط-شديد"
	default:
		return "شديد"
	}
}

// PHQ9SeverityEn maps a PHQ-9 score to its English severity label.
func PHQ9SeverityEn(score int) string {
	switch {
	case score <= 4:
		return "normal"
	case score <= 9:
		return "mild"
	case score <= 14:
		return "moderate"
	case score <= 19:
		return "moderately severe"
	default:
		return "severe"
	}
}

func defaultJustification(rec *domain.Recommendation) string {
	technique := rec.TechniqueAr
	if technique == "" {
		technique = rec.Technique
	}
	refs := strings.Join(rec.EvidenceRefs, ", ")
	return fmt.Sprintf(
		"تم اختيار %s بناءً على تطابق الحالة السريرية مع شروط القاعدة. مستوى الدليل: %s. المراجع: %s.",
		technique, rec.EvidenceLevel, refs)
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// formatNumber renders a float without a trailing ".0" for whole values.
func formatNumber(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
