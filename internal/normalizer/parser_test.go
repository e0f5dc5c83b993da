package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func testMappings() domain.CodeMappings {
	return domain.CodeMappings{
		ICD10ToDiagnosis: map[string]domain.DiagnosisMapping{
			"H35.30": {
				Name:     "Age-related macular degeneration, unspecified",
				NameAr:   "التنكس البقعي المرتبط بالعمر",
				Pattern:  "central_scotoma",
				Category: "macular",
			},
			"H40.9": {
				Name:     "Unspecified glaucoma",
				NameAr:   "الجلوكوما",
				Pattern:  "peripheral_loss",
				Category: "glaucoma",
			},
		},
		LOINCToObservation: map[string]domain.ObservationMapping{
			"70770-3": {Field: "va_logmar"},
			"44261-6": {Field: "phq9_score"},
			"29271-4": {Field: "contrast_sensitivity"},
		},
		WHOClassification: map[string]domain.WHOBand{
			"category_0": {Label: "No or mild visual impairment", LabelAr: "خفيف", VARange: domain.VARange{Min: 0.3, Max: 2.0}},
			"category_1": {Label: "Moderate visual impairment", LabelAr: "متوسط", VARange: domain.VARange{Min: 0.1, Max: 0.3}},
			"category_2": {Label: "Severe visual impairment", LabelAr: "شديد", VARange: domain.VARange{Min: 0.05, Max: 0.1}},
		},
	}
}

func rawEntry(t *testing.T, resource string) BundleEntry {
	t.Helper()
	return BundleEntry{Resource: json.RawMessage(resource)}
}

func TestParseBundle(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	bundle := &Bundle{
		ResourceType: "Bundle",
		Entry: []BundleEntry{
			rawEntry(t, `{"resourceType":"Patient","id":"pt-001","birthDate":"1950-03-10","gender":"female","name":[{"given":["Amal"],"family":"Hassan"}]}`),
			rawEntry(t, `{"resourceType":"Condition","clinicalStatus":{"coding":[{"code":"active"}]},"code":{"coding":[{"system":"http://hl7.org/fhir/sid/icd-10","code":"H35.30","display":"AMD"}]}}`),
			rawEntry(t, `{"resourceType":"Condition","clinicalStatus":{"coding":[{"code":"resolved"}]},"code":{"coding":[{"system":"http://hl7.org/fhir/sid/icd-10","code":"H40.9"}]}}`),
			rawEntry(t, `{"resourceType":"Observation","code":{"coding":[{"code":"70770-3"}]},"valueQuantity":{"value":0.8}}`),
			rawEntry(t, `{"resourceType":"Observation","code":{"coding":[{"code":"44261-6"}]},"valueInteger":12}`),
			rawEntry(t, `{"resourceType":"Goal","description":{"text":"Reading"}}`),
			rawEntry(t, `{"resourceType":"Device","deviceName":[{"name":"cctv"}]}`),
		},
	}

	ctx := p.ParseBundle(bundle)

	assert.Equal(t, domain.SourceFHIR, ctx.Source)
	assert.Equal(t, "pt-001", ctx.Patient.PatientID)
	assert.Equal(t, "Amal Hassan", ctx.Patient.Name)
	require.NotNil(t, ctx.Patient.Age)
	assert.Greater(t, *ctx.Patient.Age, 70)

	// Resolved condition must be ignored.
	assert.Equal(t, []string{"H35.30"}, ctx.ActiveICD10)
	require.Len(t, ctx.Diagnoses, 1)
	assert.Equal(t, "central_scotoma", ctx.Diagnoses[0].Pattern)
	assert.Equal(t, []string{"central_scotoma"}, ctx.VisionPatterns)

	assert.Equal(t, 0.8, ctx.Observations["70770-3"])
	assert.Equal(t, 0.8, ctx.MappedObservations["va_logmar"])
	assert.Equal(t, 12.0, ctx.MappedObservations["phq9_score"])

	assert.Equal(t, []string{"reading"}, ctx.FunctionalGoals)
	assert.Equal(t, []string{"cctv"}, ctx.EquipmentAvailable)

	require.NotNil(t, ctx.WHOCategory)
	// 10^-0.8 = 0.158 decimal: moderate impairment band.
	assert.Equal(t, "category_1", ctx.WHOCategory.Category)
}

func TestParseBundleSkipsMalformedEntries(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	bundle := &Bundle{
		Entry: []BundleEntry{
			rawEntry(t, `not-json`),
			rawEntry(t, `{"resourceType":"Medication"}`),
			rawEntry(t, `{"resourceType":"Observation","code":{"coding":[{"code":"70770-3"}]},"valueString":"not-a-number"}`),
		},
	}

	ctx := p.ParseBundle(bundle)

	assert.Empty(t, ctx.Observations)
	assert.Empty(t, ctx.ActiveICD10)
}

func TestParseManualWithCodes(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	ctx := p.ParseManual(&ManualRecord{
		PatientID:          "pt-001",
		Age:                intPtr(72),
		Gender:             "male",
		ICD10Codes:         []string{"H35.30"},
		VALogMAR:           floatPtr(1.0),
		PHQ9Score:          floatPtr(8),
		FunctionalGoals:    []string{"reading"},
		EquipmentAvailable: []string{"magnifier"},
		Setting:            "home",
		CognitiveStatus:    "mild_impairment",
	})

	assert.Equal(t, domain.SourceManual, ctx.Source)
	assert.Equal(t, "pt-001", ctx.Patient.PatientID)
	assert.Equal(t, 72, *ctx.Patient.Age)
	assert.Equal(t, []string{"H35.30"}, ctx.ActiveICD10)
	assert.Equal(t, []string{"central_scotoma"}, ctx.VisionPatterns)
	assert.Equal(t, 1.0, ctx.MappedObservations["va_logmar"])
	assert.Equal(t, 8.0, ctx.MappedObservations["phq9_score"])
	assert.Equal(t, domain.SettingHome, ctx.Setting)
	assert.Equal(t, domain.CognitiveMildImpairment, ctx.CognitiveStatus)
}

func TestParseManualFreeTextDiagnosis(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	ctx := p.ParseManual(&ManualRecord{
		Diagnosis: "Advanced unspecified glaucoma in both eyes",
	})

	assert.Equal(t, []string{"H40.9"}, ctx.ActiveICD10)
	assert.Equal(t, []string{"peripheral_loss"}, ctx.VisionPatterns)
}

func TestParseManualArabicDiagnosis(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	ctx := p.ParseManual(&ManualRecord{Diagnosis: "تشخيص الجلوكوما المتقدمة"})

	assert.Equal(t, []string{"H40.9"}, ctx.ActiveICD10)
}

func TestParseManualDefaults(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	ctx := p.ParseManual(&ManualRecord{})

	assert.Equal(t, domain.CognitiveNormal, ctx.CognitiveStatus)
	assert.Equal(t, domain.SettingClinic, ctx.Setting)
	assert.NotNil(t, ctx.Observations)
	assert.NotNil(t, ctx.VisionPatterns)
	assert.Nil(t, ctx.Patient.Age)
	assert.Nil(t, ctx.WHOCategory)
}

func TestDecimalToLogMAR(t *testing.T) {
	assert.Equal(t, 1.0, DecimalToLogMAR(0.1))
	assert.Equal(t, 0.3, DecimalToLogMAR(0.5))
	assert.Equal(t, 0.0, DecimalToLogMAR(1.0))
	// Zero is clamped instead of producing +Inf.
	assert.Equal(t, 3.0, DecimalToLogMAR(0))
}

func TestParseManualDecimalAcuity(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	ctx := p.ParseManual(&ManualRecord{VADecimal: floatPtr(0.1)})

	assert.Equal(t, 1.0, ctx.MappedObservations["va_logmar"])
	require.NotNil(t, ctx.WHOCategory)
	assert.Equal(t, "category_1", ctx.WHOCategory.Category)
	assert.Equal(t, 0.1, ctx.WHOCategory.VADecimal)
}

func TestClassifyWHOFallbackCategory(t *testing.T) {
	p := NewParser(testLogger(), testMappings())

	// 10^-3 = 0.001 decimal falls below every configured band.
	ctx := p.ParseManual(&ManualRecord{VALogMAR: floatPtr(3.0)})

	require.NotNil(t, ctx.WHOCategory)
	assert.Equal(t, "category_5", ctx.WHOCategory.Category)
	assert.Equal(t, "Total blindness (NLP)", ctx.WHOCategory.Label)
}

func TestParsePureNoSideEffects(t *testing.T) {
	p := NewParser(testLogger(), testMappings())
	record := &ManualRecord{ICD10Codes: []string{"H35.30"}, VALogMAR: floatPtr(0.5)}

	first := p.ParseManual(record)
	second := p.ParseManual(record)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}
