package domain

// IssueSeverity is the severity of one validation finding.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is one guardrail finding with localized messages.
type ValidationIssue struct {
	ID        string        `json:"id"`
	MessageAr string        `json:"message_ar"`
	MessageEn string        `json:"message_en"`
	Severity  IssueSeverity `json:"severity"`
}

// ValidationResult collects guardrail findings for one patient context.
// Invariant: IsValid == (len(Errors) == 0). Warnings never affect validity.
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// NewValidationResult returns a valid result with empty issue lists.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:  true,
		Errors:   []ValidationIssue{},
		Warnings: []ValidationIssue{},
	}
}

// AddError appends a hard error and marks the result invalid.
func (v *ValidationResult) AddError(id, messageAr, messageEn string) {
	v.IsValid = false
	v.Errors = append(v.Errors, ValidationIssue{
		ID:        id,
		MessageAr: messageAr,
		MessageEn: messageEn,
		Severity:  SeverityError,
	})
}

// AddWarning appends a soft warning; validity is unaffected.
func (v *ValidationResult) AddWarning(id, messageAr, messageEn string) {
	v.Warnings = append(v.Warnings, ValidationIssue{
		ID:        id,
		MessageAr: messageAr,
		MessageEn: messageEn,
		Severity:  SeverityWarning,
	})
}
