package domain

// DiagnosisMapping resolves an ICD-10 code to its diagnosis record.
type DiagnosisMapping struct {
	Name     string `json:"name" yaml:"name"`
	NameAr   string `json:"name_ar" yaml:"name_ar"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern"`
	Category string `json:"category,omitempty" yaml:"category"`
}

// ObservationMapping resolves a LOINC code to its semantic field name.
type ObservationMapping struct {
	Field string `json:"field" yaml:"field"`
}

// VARange is a decimal-acuity band of the WHO classification table.
type VARange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// WHOBand is one severity band of the WHO visual-impairment classification,
// keyed by decimal-acuity range.
type WHOBand struct {
	Label   string  `json:"label" yaml:"label"`
	LabelAr string  `json:"label_ar" yaml:"label_ar"`
	VARange VARange `json:"va_range" yaml:"va_range"`
}

// CodeMappings is the configured code lookup set: diagnosis codes, observation
// codes, and the WHO severity classification table. Loaded once at startup and
// shared read-only.
type CodeMappings struct {
	ICD10ToDiagnosis   map[string]DiagnosisMapping   `json:"icd10_to_diagnosis" yaml:"icd10_to_diagnosis"`
	LOINCToObservation map[string]ObservationMapping `json:"loinc_to_observation" yaml:"loinc_to_observation"`
	WHOClassification  map[string]WHOBand            `json:"who_classification" yaml:"who_classification"`
}

// KnowledgeBase is the full immutable declarative configuration of the
// engine: intervention rules, code mappings, and contradiction rules. It is
// constructed explicitly at startup and passed into component constructors;
// there is no implicit global state.
type KnowledgeBase struct {
	Rules      []ClinicalRule
	Mappings   CodeMappings
	Guardrails []GuardrailRule
}
