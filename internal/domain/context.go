package domain

// Diagnosis is an expanded diagnosis record resolved from an ICD-10 code
// through the configured code mappings.
type Diagnosis struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	NameAr   string `json:"name_ar"`
	Pattern  string `json:"pattern,omitempty"`
	Category string `json:"category,omitempty"`
}

// Demographics holds the patient's demographic attributes. Age and gender are
// optional; a nil Age means the bundle carried no usable birth date.
type Demographics struct {
	PatientID string `json:"patient_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Age       *int   `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// WHOCategory is the WHO visual-impairment classification derived from the
// patient's visual acuity.
type WHOCategory struct {
	Category  string  `json:"category"`
	Label     string  `json:"label"`
	LabelAr   string  `json:"label_ar"`
	VADecimal float64 `json:"va_decimal"`
	VALogMAR  float64 `json:"va_logmar"`
}

// PatientContext is the canonical normalized view of one patient's condition.
// It is created fresh per request, never mutated after construction, and held
// only for the duration of one evaluation.
//
// All collection fields are always non-nil; downstream code may assume
// presence of every key.
type PatientContext struct {
	ActiveICD10        []string               `json:"active_icd10"`
	Diagnoses          []Diagnosis            `json:"diagnoses"`
	Observations       map[string]float64     `json:"observations"`
	MappedObservations map[string]float64     `json:"mapped_observations"`
	VisionPatterns     []string               `json:"vision_patterns"`
	Patient            Demographics           `json:"patient"`
	WHOCategory        *WHOCategory           `json:"who_category,omitempty"`
	FunctionalGoals    []string               `json:"functional_goals"`
	CognitiveStatus    CognitiveStatus        `json:"cognitive_status"`
	EquipmentAvailable []string               `json:"equipment_available"`
	Setting            CareSetting            `json:"setting"`
	Source             ContextSource          `json:"source"`
}

// NewPatientContext returns a context with every collection initialized and
// the documented defaults applied.
func NewPatientContext(source ContextSource) *PatientContext {
	return &PatientContext{
		ActiveICD10:        []string{},
		Diagnoses:          []Diagnosis{},
		Observations:       map[string]float64{},
		MappedObservations: map[string]float64{},
		VisionPatterns:     []string{},
		FunctionalGoals:    []string{},
		CognitiveStatus:    CognitiveNormal,
		EquipmentAvailable: []string{},
		Setting:            SettingClinic,
		Source:             source,
	}
}

// Observation returns the mapped observation value for a semantic field name.
func (c *PatientContext) Observation(field string) (float64, bool) {
	v, ok := c.MappedObservations[field]
	return v, ok
}

// HasPattern reports whether the given vision-loss pattern was detected.
func (c *PatientContext) HasPattern(pattern string) bool {
	for _, p := range c.VisionPatterns {
		if p == pattern {
			return true
		}
	}
	return false
}

// HasDiagnosisCategory reports whether any resolved diagnosis carries the
// given category.
func (c *PatientContext) HasDiagnosisCategory(category string) bool {
	for _, d := range c.Diagnoses {
		if d.Category == category {
			return true
		}
	}
	return false
}

// HasGoal reports whether the patient stated the given functional goal.
func (c *PatientContext) HasGoal(goal string) bool {
	for _, g := range c.FunctionalGoals {
		if g == goal {
			return true
		}
	}
	return false
}

// AddPattern appends a vision-loss pattern, keeping the set duplicate free.
func (c *PatientContext) AddPattern(pattern string) {
	if pattern == "" || c.HasPattern(pattern) {
		return
	}
	c.VisionPatterns = append(c.VisionPatterns, pattern)
}
