// Package normalizer converts raw patient input into the canonical
// PatientContext consumed by the rule engine. Two input paths are supported:
// an HL7 FHIR R4 bundle and a flat manual record.
package normalizer

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// LOINC codes used by the manual input path.
const (
	loincVALogMAR            = "70770-3"
	loincPHQ9                = "44261-6"
	loincContrastSensitivity = "29271-4"
)

// Parser normalizes FHIR bundles and manual records into PatientContexts
// using the configured code mappings. It is a pure transformation: missing or
// unparseable numeric fields are omitted rather than raising.
type Parser struct {
	logger   *logrus.Logger
	mappings domain.CodeMappings
}

// NewParser creates a parser over the given code mappings.
func NewParser(logger *logrus.Logger, mappings domain.CodeMappings) *Parser {
	return &Parser{logger: logger, mappings: mappings}
}

// FHIR resource shapes. Only the fields the normalizer consumes are modeled.

// Bundle is an HL7 FHIR R4 Bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry wraps one resource; the concrete type is resolved from the
// resourceType discriminator.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

type resourceHeader struct {
	ResourceType string `json:"resourceType"`
}

// Coding is one coded classification.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept holds one or more codings plus free text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// PatientResource is the demographic record.
type PatientResource struct {
	ID        string `json:"id,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Name      []struct {
		Given  []string `json:"given,omitempty"`
		Family string   `json:"family,omitempty"`
	} `json:"name,omitempty"`
}

// ConditionResource is a diagnosis record with a clinical status.
type ConditionResource struct {
	ClinicalStatus CodeableConcept `json:"clinicalStatus"`
	Code           CodeableConcept `json:"code"`
}

// ObservationResource carries one coded classification and exactly one
// typed value.
type ObservationResource struct {
	Code          CodeableConcept `json:"code"`
	ValueInteger  *int            `json:"valueInteger,omitempty"`
	ValueQuantity *struct {
		Value float64 `json:"value"`
	} `json:"valueQuantity,omitempty"`
	ValueString string `json:"valueString,omitempty"`
}

// GoalResource carries a free-text functional goal.
type GoalResource struct {
	Description CodeableConcept `json:"description"`
}

// DeviceResource describes available equipment.
type DeviceResource struct {
	DeviceName []struct {
		Name string `json:"name"`
	} `json:"deviceName,omitempty"`
	Type CodeableConcept `json:"type,omitempty"`
}

// ManualRecord is the flat structured input path. PatientID is optional;
// without it the evaluation is anonymous and outcome history is not applied.
type ManualRecord struct {
	PatientID           string   `json:"patient_id,omitempty"`
	Age                 *int     `json:"age,omitempty"`
	Gender              string   `json:"gender,omitempty"`
	ICD10Codes          []string `json:"icd10_codes,omitempty"`
	Diagnosis           string   `json:"diagnosis,omitempty"`
	VisionPattern       string   `json:"vision_pattern,omitempty"`
	VALogMAR            *float64 `json:"va_logmar,omitempty"`
	VADecimal           *float64 `json:"va_decimal,omitempty"`
	PHQ9Score           *float64 `json:"phq9_score,omitempty"`
	ContrastSensitivity *float64 `json:"contrast_sensitivity,omitempty"`
	FunctionalGoals     []string `json:"functional_goals,omitempty"`
	EquipmentAvailable  []string `json:"equipment_available,omitempty"`
	Setting             string   `json:"setting,omitempty"`
	CognitiveStatus     string   `json:"cognitive_status,omitempty"`
}

// ParseBundle converts a FHIR R4 bundle into a PatientContext. Entries with
// unrecognized resource types are skipped; Condition resources are consumed
// only when their clinical status is "active".
func (p *Parser) ParseBundle(bundle *Bundle) *domain.PatientContext {
	ctx := domain.NewPatientContext(domain.SourceFHIR)

	for _, entry := range bundle.Entry {
		var header resourceHeader
		if err := json.Unmarshal(entry.Resource, &header); err != nil {
			continue
		}

		switch header.ResourceType {
		case "Patient":
			var res PatientResource
			if err := json.Unmarshal(entry.Resource, &res); err == nil {
				p.extractPatient(&res, ctx)
			}
		case "Condition":
			var res ConditionResource
			if err := json.Unmarshal(entry.Resource, &res); err == nil {
				p.extractCondition(&res, ctx)
			}
		case "Observation":
			var res ObservationResource
			if err := json.Unmarshal(entry.Resource, &res); err == nil {
				p.extractObservation(&res, ctx)
			}
		case "Goal":
			var res GoalResource
			if err := json.Unmarshal(entry.Resource, &res); err == nil {
				p.extractGoal(&res, ctx)
			}
		case "Device":
			var res DeviceResource
			if err := json.Unmarshal(entry.Resource, &res); err == nil {
				p.extractDevice(&res, ctx)
			}
		}
	}

	p.classifyWHO(ctx)
	return ctx
}

// ParseManual converts a flat manual record into the same PatientContext
// shape. Diagnosis resolution accepts explicit ICD-10 codes or falls back to
// case-insensitive substring matching against the diagnosis lookup table.
func (p *Parser) ParseManual(record *ManualRecord) *domain.PatientContext {
	ctx := domain.NewPatientContext(domain.SourceManual)

	ctx.Patient.PatientID = record.PatientID
	if record.Age != nil {
		age := *record.Age
		ctx.Patient.Age = &age
	}
	ctx.Patient.Gender = record.Gender
	if len(record.FunctionalGoals) > 0 {
		ctx.FunctionalGoals = append(ctx.FunctionalGoals, record.FunctionalGoals...)
	}
	if record.CognitiveStatus != "" {
		ctx.CognitiveStatus = domain.CognitiveStatus(record.CognitiveStatus)
	}
	if len(record.EquipmentAvailable) > 0 {
		ctx.EquipmentAvailable = append(ctx.EquipmentAvailable, record.EquipmentAvailable...)
	}
	if record.Setting != "" {
		ctx.Setting = domain.CareSetting(record.Setting)
	}

	for _, code := range record.ICD10Codes {
		p.appendDiagnosis(code, "", ctx)
	}

	// Free-text diagnosis: best-effort name match, first hit wins.
	if record.Diagnosis != "" && len(ctx.ActiveICD10) == 0 {
		p.matchDiagnosisByName(record.Diagnosis, ctx)
	}

	if record.VisionPattern != "" {
		ctx.AddPattern(record.VisionPattern)
	}

	if record.VALogMAR != nil {
		p.recordObservation(loincVALogMAR, *record.VALogMAR, ctx)
	}
	if record.VADecimal != nil {
		logmar := DecimalToLogMAR(*record.VADecimal)
		p.recordObservation(loincVALogMAR, logmar, ctx)
	}
	if record.PHQ9Score != nil {
		p.recordObservation(loincPHQ9, *record.PHQ9Score, ctx)
	}
	if record.ContrastSensitivity != nil {
		p.recordObservation(loincContrastSensitivity, *record.ContrastSensitivity, ctx)
	}

	p.classifyWHO(ctx)
	return ctx
}

// DecimalToLogMAR converts decimal visual acuity to its logarithmic form.
// The input is clamped away from zero before the log.
func DecimalToLogMAR(decimal float64) float64 {
	logmar := -math.Log10(math.Max(decimal, 0.001))
	return math.Round(logmar*100) / 100
}

func (p *Parser) extractPatient(res *PatientResource, ctx *domain.PatientContext) {
	ctx.Patient.PatientID = res.ID
	ctx.Patient.Gender = res.Gender

	if res.BirthDate != "" {
		if birth, err := time.Parse("2006-01-02", res.BirthDate); err == nil {
			age := int(time.Since(birth).Hours() / 24 / 365)
			ctx.Patient.Age = &age
		}
	}

	if len(res.Name) > 0 {
		parts := append([]string{}, res.Name[0].Given...)
		if res.Name[0].Family != "" {
			parts = append(parts, res.Name[0].Family)
		}
		ctx.Patient.Name = strings.Join(parts, " ")
	}
}

func (p *Parser) extractCondition(res *ConditionResource, ctx *domain.PatientContext) {
	status := "active"
	if len(res.ClinicalStatus.Coding) > 0 && res.ClinicalStatus.Coding[0].Code != "" {
		status = res.ClinicalStatus.Coding[0].Code
	}
	if status != "active" {
		return
	}

	for _, coding := range res.Code.Coding {
		system := strings.ToLower(coding.System)
		if !strings.Contains(system, "icd-10") && !strings.Contains(system, "icd10") {
			continue
		}
		p.appendDiagnosis(coding.Code, coding.Display, ctx)
	}
}

func (p *Parser) extractObservation(res *ObservationResource, ctx *domain.PatientContext) {
	var value float64
	var ok bool
	switch {
	case res.ValueInteger != nil:
		value, ok = float64(*res.ValueInteger), true
	case res.ValueQuantity != nil:
		value, ok = res.ValueQuantity.Value, true
	case res.ValueString != "":
		if v, err := strconv.ParseFloat(res.ValueString, 64); err == nil {
			value, ok = v, true
		}
	}
	if !ok {
		return
	}

	for _, coding := range res.Code.Coding {
		if coding.Code == "" {
			continue
		}
		p.recordObservation(coding.Code, value, ctx)
	}
}

func (p *Parser) extractGoal(res *GoalResource, ctx *domain.PatientContext) {
	if text := res.Description.Text; text != "" {
		ctx.FunctionalGoals = append(ctx.FunctionalGoals, strings.ToLower(text))
	}
}

func (p *Parser) extractDevice(res *DeviceResource, ctx *domain.PatientContext) {
	if len(res.DeviceName) > 0 && res.DeviceName[0].Name != "" {
		ctx.EquipmentAvailable = append(ctx.EquipmentAvailable, res.DeviceName[0].Name)
		return
	}
	if res.Type.Text != "" {
		ctx.EquipmentAvailable = append(ctx.EquipmentAvailable, res.Type.Text)
	}
}

// appendDiagnosis records the code and, when the lookup table knows it, the
// expanded diagnosis record plus its associated vision-loss pattern.
func (p *Parser) appendDiagnosis(code, display string, ctx *domain.PatientContext) {
	if code == "" {
		return
	}
	ctx.ActiveICD10 = append(ctx.ActiveICD10, code)

	info, ok := p.mappings.ICD10ToDiagnosis[code]
	if !ok {
		p.logger.WithField("icd10", code).Debug("Diagnosis code not in mapping table")
		return
	}

	name := info.Name
	if name == "" {
		name = display
	}
	ctx.Diagnoses = append(ctx.Diagnoses, domain.Diagnosis{
		Code:     code,
		Name:     name,
		NameAr:   info.NameAr,
		Pattern:  info.Pattern,
		Category: info.Category,
	})
	ctx.AddPattern(info.Pattern)
}

func (p *Parser) matchDiagnosisByName(diagnosis string, ctx *domain.PatientContext) {
	lowered := strings.ToLower(diagnosis)

	// Sorted code order keeps free-text resolution deterministic.
	codes := make([]string, 0, len(p.mappings.ICD10ToDiagnosis))
	for code := range p.mappings.ICD10ToDiagnosis {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		info := p.mappings.ICD10ToDiagnosis[code]
		nameMatch := info.Name != "" && strings.Contains(lowered, strings.ToLower(info.Name))
		arMatch := info.NameAr != "" && strings.Contains(diagnosis, info.NameAr)
		if nameMatch || arMatch {
			p.appendDiagnosis(code, "", ctx)
			return
		}
	}
}

func (p *Parser) recordObservation(code string, value float64, ctx *domain.PatientContext) {
	ctx.Observations[code] = value
	if mapping, ok := p.mappings.LOINCToObservation[code]; ok && mapping.Field != "" {
		ctx.MappedObservations[mapping.Field] = value
	}
}

// classifyWHO derives the WHO severity classification once acuity is known.
func (p *Parser) classifyWHO(ctx *domain.PatientContext) {
	va, ok := ctx.Observation("va_logmar")
	if !ok {
		return
	}

	vaDecimal := math.Pow(10, -va)
	rounded := math.Round(vaDecimal*10000) / 10000

	// Band keys are checked in sorted order so a value on a shared boundary
	// always lands in the same (least severe) category.
	keys := make([]string, 0, len(p.mappings.WHOClassification))
	for key := range p.mappings.WHOClassification {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		band := p.mappings.WHOClassification[key]
		if vaDecimal >= band.VARange.Min && vaDecimal <= band.VARange.Max {
			ctx.WHOCategory = &domain.WHOCategory{
				Category:  key,
				Label:     band.Label,
				LabelAr:   band.LabelAr,
				VADecimal: rounded,
				VALogMAR:  math.Round(va*100) / 100,
			}
			return
		}
	}

	// No band matched: treat as total blindness.
	ctx.WHOCategory = &domain.WHOCategory{
		Category:  "category_5",
		Label:     "Total blindness (NLP)",
		LabelAr:   "عمى كامل",
		VADecimal: rounded,
		VALogMAR:  math.Round(va*100) / 100,
	}
}
