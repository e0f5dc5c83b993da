package explain

import (
	"fmt"
	"strings"
	"time"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// FormatForClinician renders the full evaluation as a localized Markdown
// document: patient summary, safety alerts (errors before warnings), the
// ranked recommendations, then a fixed disclaimer.
func (b *Builder) FormatForClinician(eval *domain.EvaluationResult, ctx *domain.PatientContext, validation *domain.ValidationResult, lang domain.Language) (string, error) {
	switch lang {
	case domain.LanguageArabic:
		return b.formatArabic(eval, ctx, validation), nil
	case domain.LanguageEnglish:
		return b.formatEnglish(eval, ctx, validation), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, lang)
	}
}

func (b *Builder) formatArabic(eval *domain.EvaluationResult, ctx *domain.PatientContext, validation *domain.ValidationResult) string {
	var lines []string
	lines = append(lines, "# تقرير التوصيات السريرية\n")
	lines = append(lines, fmt.Sprintf("**التاريخ:** %s\n", time.Now().Format("2006-01-02 15:04")))

	age := "N/A"
	if ctx.Patient.Age != nil {
		age = fmt.Sprintf("%d", *ctx.Patient.Age)
	}
	var diagNames []string
	for _, d := range ctx.Diagnoses {
		name := d.NameAr
		if name == "" {
			name = d.Name
		}
		diagNames = append(diagNames, name)
	}

	lines = append(lines, "## ملخص المريض\n")
	lines = append(lines, fmt.Sprintf("- **العمر:** %s سنة", age))
	lines = append(lines, fmt.Sprintf("- **التشخيص:** %s", strings.Join(diagNames, "، ")))
	lines = append(lines, fmt.Sprintf("- **نمط الفقد:** %s", strings.Join(ctx.VisionPatterns, "، ")))
	if who := ctx.WHOCategory; who != nil {
		lines = append(lines, fmt.Sprintf("- **تصنيف WHO:** %s (%s)", who.LabelAr, who.Category))
	}
	if va, ok := ctx.Observation("va_logmar"); ok {
		decimal := "N/A"
		if ctx.WHOCategory != nil {
			decimal = formatNumber(ctx.WHOCategory.VADecimal)
		}
		lines = append(lines, fmt.Sprintf("- **حدة الإبصار:** %s LogMAR (عشري: %s)", formatNumber(va), decimal))
	}
	lines = append(lines, "")

	if validation != nil && (len(validation.Errors) > 0 || len(validation.Warnings) > 0) {
		lines = append(lines, "## تنبيهات الأمان\n")
		for _, issue := range validation.Errors {
			lines = append(lines, fmt.Sprintf("- **خطأ:** %s", issue.MessageAr))
		}
		for _, issue := range validation.Warnings {
			lines = append(lines, fmt.Sprintf("- **تحذير:** %s", issue.MessageAr))
		}
		lines = append(lines, "")
	}

	if len(eval.Recommendations) > 0 {
		lines = append(lines, fmt.Sprintf("## التوصيات (%d تقنية مطابقة)\n", len(eval.Recommendations)))
		for i, rec := range eval.Recommendations {
			technique := rec.TechniqueAr
			if technique == "" {
				technique = rec.Technique
			}
			experimental := ""
			if rec.Experimental {
				experimental = " (تجريبي)"
			}
			lines = append(lines, fmt.Sprintf("### %d. %s%s\n", i+1, technique, experimental))
			lines = append(lines, fmt.Sprintf("- **التصنيف:** %s", rec.Category))
			lines = append(lines, fmt.Sprintf("- **مستوى الدليل:** %s", rec.EvidenceLevel))
			lines = append(lines, fmt.Sprintf("- **الأولوية:** %d", rec.Priority))
			lines = append(lines, fmt.Sprintf("- **الإجراء:** %s", rec.Action))
			lines = append(lines, fmt.Sprintf("- **البروتوكول:** %s", rec.Protocol))
			if rec.PriceRange != "" {
				lines = append(lines, fmt.Sprintf("- **التكلفة التقديرية:** %s", rec.PriceRange))
			}
			if len(rec.EvidenceRefs) > 0 {
				lines = append(lines, fmt.Sprintf("- **المراجع:** %s", strings.Join(rec.EvidenceRefs, ", ")))
			}
			if rec.OutcomeNote != "" {
				lines = append(lines, fmt.Sprintf("- **ملاحظة النتائج:** %s", rec.OutcomeNote))
			}
			if rec.Justification != "" {
				lines = append(lines, fmt.Sprintf("\n> **المبرر:** %s", rec.Justification))
			}
			if rec.Controversy != "" {
				lines = append(lines, fmt.Sprintf("\n> **ملاحظة:** %s", rec.Controversy))
			}
			lines = append(lines, "")
		}
	}

	lines = append(lines, "---")
	lines = append(lines, "*هذا التقرير مُولَّد آلياً وليس بديلاً عن التقييم السريري المباشر.*")

	return strings.Join(lines, "\n")
}

func (b *Builder) formatEnglish(eval *domain.EvaluationResult, ctx *domain.PatientContext, validation *domain.ValidationResult) string {
	var lines []string
	lines = append(lines, "# Clinical Recommendations Report\n")
	lines = append(lines, fmt.Sprintf("**Date:** %s\n", time.Now().Format("2006-01-02 15:04")))

	age := "N/A"
	if ctx.Patient.Age != nil {
		age = fmt.Sprintf("%d", *ctx.Patient.Age)
	}
	var diagNames []string
	for _, d := range ctx.Diagnoses {
		diagNames = append(diagNames, d.Name)
	}

	lines = append(lines, "## Patient Summary\n")
	lines = append(lines, fmt.Sprintf("- **Age:** %s", age))
	lines = append(lines, fmt.Sprintf("- **Diagnoses:** %s", strings.Join(diagNames, ", ")))
	lines = append(lines, fmt.Sprintf("- **Loss patterns:** %s", strings.Join(ctx.VisionPatterns, ", ")))
	if who := ctx.WHOCategory; who != nil {
		lines = append(lines, fmt.Sprintf("- **WHO classification:** %s (%s)", who.Label, who.Category))
	}
	if va, ok := ctx.Observation("va_logmar"); ok {
		lines = append(lines, fmt.Sprintf("- **Visual acuity:** %s LogMAR", formatNumber(va)))
	}
	lines = append(lines, "")

	if validation != nil && (len(validation.Errors) > 0 || len(validation.Warnings) > 0) {
		lines = append(lines, "## Safety Alerts\n")
		for _, issue := range validation.Errors {
			lines = append(lines, fmt.Sprintf("- **Error:** %s", issue.MessageEn))
		}
		for _, issue := range validation.Warnings {
			lines = append(lines, fmt.Sprintf("- **Warning:** %s", issue.MessageEn))
		}
		lines = append(lines, "")
	}

	lines = append(lines, fmt.Sprintf("## Recommendations (%d matched)\n", len(eval.Recommendations)))
	for i, rec := range eval.Recommendations {
		experimental := ""
		if rec.Experimental {
			experimental = " (experimental)"
		}
		lines = append(lines, fmt.Sprintf("### %d. %s%s\n", i+1, rec.Technique, experimental))
		lines = append(lines, fmt.Sprintf("- **Evidence:** %s | **Priority:** %d", rec.EvidenceLevel, rec.Priority))
		lines = append(lines, fmt.Sprintf("- **Action:** %s", rec.Action))
		if rec.Protocol != "" {
			lines = append(lines, fmt.Sprintf("- **Protocol:** %s", rec.Protocol))
		}
		if rec.PriceRange != "" {
			lines = append(lines, fmt.Sprintf("- **Estimated cost:** %s", rec.PriceRange))
		}
		if len(rec.EvidenceRefs) > 0 {
			lines = append(lines, fmt.Sprintf("- **References:** %s", strings.Join(rec.EvidenceRefs, ", ")))
		}
		if rec.OutcomeNoteEn != "" {
			lines = append(lines, fmt.Sprintf("- **Outcome note:** %s", rec.OutcomeNoteEn))
		}
		if rec.Justification != "" {
			lines = append(lines, fmt.Sprintf("- **Justification:** %s", rec.Justification))
		}
		if rec.Controversy != "" {
			lines = append(lines, fmt.Sprintf("- **Note:** %s", rec.Controversy))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "---")
	lines = append(lines, "*This report is generated automatically and is not a substitute for direct clinical assessment.*")

	return strings.Join(lines, "\n")
}
