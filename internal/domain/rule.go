package domain

// ObservationRange constrains a coded measurement to a closed numeric range.
// A nil bound means unbounded on that side.
type ObservationRange struct {
	Min *float64 `json:"min,omitempty" yaml:"min"`
	Max *float64 `json:"max,omitempty" yaml:"max"`
}

// Contains reports whether v falls inside the range.
func (r ObservationRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// AgeBounds constrains patient age. Below Min rejects the rule outright;
// above Max only lowers the score.
type AgeBounds struct {
	Min *int `json:"min,omitempty" yaml:"min"`
	Max *int `json:"max,omitempty" yaml:"max"`
}

// CognitiveCondition excludes cognitive statuses from a technique.
type CognitiveCondition struct {
	Exclude []CognitiveStatus `json:"exclude,omitempty" yaml:"exclude"`
}

// SystemCapabilities marks which soft preferences are hard requirements.
type SystemCapabilities struct {
	EquipmentAvailable bool `json:"equipment_available,omitempty" yaml:"equipment_available"`
}

// RuleConditions is the closed condition predicate set of a clinical rule.
// Empty fields mean "no constraint".
type RuleConditions struct {
	HasVisionPattern      []string                    `json:"has_vision_pattern,omitempty" yaml:"has_vision_pattern"`
	HasConditionICD10     []string                    `json:"has_condition_icd10,omitempty" yaml:"has_condition_icd10"`
	ExcludeConditionICD10 []string                    `json:"exclude_condition_icd10,omitempty" yaml:"exclude_condition_icd10"`
	ObservationLOINCRange map[string]ObservationRange `json:"observation_loinc_range,omitempty" yaml:"observation_loinc_range"`
	CognitiveStatus       *CognitiveCondition         `json:"cognitive_status,omitempty" yaml:"cognitive_status"`
	EquipmentAvailable    []string                    `json:"equipment_available,omitempty" yaml:"equipment_available"`
	SystemCapabilities    *SystemCapabilities         `json:"system_capabilities,omitempty" yaml:"system_capabilities"`
	PatientAge            *AgeBounds                  `json:"patient_age,omitempty" yaml:"patient_age"`
	Setting               []CareSetting               `json:"setting,omitempty" yaml:"setting"`
	FunctionalGoals       []string                    `json:"functional_goals,omitempty" yaml:"functional_goals"`
}

// RuleRecommendation is the payload emitted when a rule matches.
type RuleRecommendation struct {
	Action                string        `json:"action" yaml:"action"`
	Protocol              string        `json:"protocol" yaml:"protocol"`
	EvidenceLevel         EvidenceLevel `json:"evidence_level" yaml:"evidence_level"`
	EvidenceRefs          []string      `json:"evidence_refs,omitempty" yaml:"evidence_refs"`
	Priority              int           `json:"priority" yaml:"priority"`
	JustificationTemplate string        `json:"justification_template,omitempty" yaml:"justification_template"`
	PriceRange            string        `json:"price_range,omitempty" yaml:"price_range"`
}

// ClinicalRule is one declarative intervention rule. Rules are loaded once at
// startup from the configured rule files, are immutable thereafter, and are
// shared read-only across all evaluations.
type ClinicalRule struct {
	RuleID         string             `json:"rule_id" yaml:"rule_id"`
	Technique      string             `json:"technique" yaml:"technique"`
	TechniqueAr    string             `json:"technique_ar" yaml:"technique_ar"`
	Category       string             `json:"category" yaml:"category"`
	Conditions     RuleConditions     `json:"conditions" yaml:"conditions"`
	Recommendation RuleRecommendation `json:"recommendation" yaml:"recommendation"`
	Experimental   bool               `json:"experimental,omitempty" yaml:"experimental"`
	Controversy    string             `json:"controversy,omitempty" yaml:"controversy"`
	HardGuardrails []string           `json:"hard_guardrails,omitempty" yaml:"hard_guardrails"`
	SourceFile     string             `json:"source_file,omitempty" yaml:"-"`
}

// Validate ensures a loaded rule carries the minimum required fields.
// Malformed rule files are fatal at startup, not per-request.
func (r *ClinicalRule) Validate() error {
	if r.RuleID == "" {
		return ErrRuleMissingID
	}
	if r.Technique == "" {
		return ErrRuleMissingTechnique
	}
	if r.Recommendation.Priority < 0 {
		return ErrRuleInvalidPriority
	}
	return nil
}
