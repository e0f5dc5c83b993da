// Package domain contains core business entities and types for the
// vision-rehabilitation clinical decision-support engine.
//
// The engine evaluates declaratively defined intervention rules against a
// normalized patient context and produces ranked, explained recommendations
// with a full audit trail.
package domain

// EvidenceLevel is an ordinal code summarizing the strength of clinical
// evidence behind a recommended technique (Oxford CEBM-style bands plus the
// legacy C/D grades carried by older rule files).
type EvidenceLevel string

const (
	Evidence1a EvidenceLevel = "1a"
	Evidence1b EvidenceLevel = "1b"
	Evidence2a EvidenceLevel = "2a"
	Evidence2b EvidenceLevel = "2b"
	Evidence3  EvidenceLevel = "3"
	Evidence4  EvidenceLevel = "4"
	Evidence5  EvidenceLevel = "5"
	EvidenceC  EvidenceLevel = "C"
	EvidenceD  EvidenceLevel = "D"
)

// evidenceBaseScores maps evidence levels to base suitability scores.
// Higher-confidence evidence bands map to higher base scores.
var evidenceBaseScores = map[EvidenceLevel]float64{
	Evidence1a: 20,
	Evidence1b: 18,
	Evidence2a: 14,
	Evidence2b: 12,
	Evidence3:  8,
	Evidence4:  5,
	Evidence5:  2,
	EvidenceC:  3,
	EvidenceD:  1,
}

// defaultBaseScore is used for unrecognized evidence levels.
const defaultBaseScore = 2.0

// BaseScore returns the base suitability score for the evidence level.
func (e EvidenceLevel) BaseScore() float64 {
	if s, ok := evidenceBaseScores[e]; ok {
		return s
	}
	return defaultBaseScore
}

// IsValid reports whether the evidence level is a known band.
func (e EvidenceLevel) IsValid() bool {
	_, ok := evidenceBaseScores[e]
	return ok
}

// CognitiveStatus describes the patient's cognitive capacity as relevant to
// technique selection.
type CognitiveStatus string

const (
	CognitiveNormal           CognitiveStatus = "normal"
	CognitiveMildImpairment   CognitiveStatus = "mild_impairment"
	CognitiveModerateDementia CognitiveStatus = "moderate_dementia"
	CognitiveSevereDementia   CognitiveStatus = "severe_dementia"
)

// CareSetting is the environment where rehabilitation takes place.
type CareSetting string

const (
	SettingClinic    CareSetting = "clinic"
	SettingHome      CareSetting = "home"
	SettingCommunity CareSetting = "community"
	SettingRemote    CareSetting = "remote"
)

// ContextSource tags how a patient context entered the pipeline.
type ContextSource string

const (
	SourceFHIR   ContextSource = "fhir"
	SourceManual ContextSource = "manual"
)

// Language selects the rendered report language.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// IsValid reports whether the language is supported for report rendering.
func (l Language) IsValid() bool {
	return l == LanguageArabic || l == LanguageEnglish
}
