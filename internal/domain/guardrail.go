package domain

// GuardrailCheck discriminates the closed set of contradiction check kinds.
// Each kind has one dedicated predicate in the guardrails package.
type GuardrailCheck string

const (
	CheckGoalVsCapability      GuardrailCheck = "goal_vs_capability"
	CheckDiagnosisVsPattern    GuardrailCheck = "diagnosis_vs_pattern"
	CheckCognitiveVsTechnique  GuardrailCheck = "cognitive_vs_technique"
	CheckAgeSafety             GuardrailCheck = "age_safety"
	CheckDataIntegrity         GuardrailCheck = "data_integrity"
	CheckEquipmentAvailability GuardrailCheck = "equipment_availability"
)

// GuardrailCondition is the typed condition payload of a contradiction rule.
// Which fields are consulted depends on the rule's check kind; the loader
// keeps unknown keys out, so each predicate sees only its own shape.
type GuardrailCondition struct {
	// goal_vs_capability
	DiagnosisCategory string   `json:"diagnosis_category,omitempty" yaml:"diagnosis_category"`
	FunctionalGoal    string   `json:"functional_goal,omitempty" yaml:"functional_goal"`
	VALogMARMin       *float64 `json:"va_logmar_min,omitempty" yaml:"va_logmar_min"`

	// diagnosis_vs_pattern
	DiagnosisICD10 []string `json:"diagnosis_icd10,omitempty" yaml:"diagnosis_icd10"`
	VisionPattern  string   `json:"vision_pattern,omitempty" yaml:"vision_pattern"`

	// cognitive_vs_technique
	CognitiveStatus []CognitiveStatus `json:"cognitive_status,omitempty" yaml:"cognitive_status"`

	// age_safety
	PatientAgeMax *int `json:"patient_age_max,omitempty" yaml:"patient_age_max"`
	PatientAgeMin *int `json:"patient_age_min,omitempty" yaml:"patient_age_min"`

	// data_integrity
	VALogMARMax *float64 `json:"va_logmar_max,omitempty" yaml:"va_logmar_max"`
}

// GuardrailRule is one declarative contradiction rule.
type GuardrailRule struct {
	ID        string             `json:"id" yaml:"id"`
	Check     GuardrailCheck     `json:"check" yaml:"check"`
	Condition GuardrailCondition `json:"condition" yaml:"condition"`
	Severity  IssueSeverity      `json:"severity" yaml:"severity"`
	MessageAr string             `json:"message_ar" yaml:"message_ar"`
	MessageEn string             `json:"message_en" yaml:"message_en"`
}
