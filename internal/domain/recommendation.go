package domain

// ScoreAdjustment is one named delta applied to a recommendation's base
// score during condition matching. The trail of adjustments is preserved for
// the audit record.
type ScoreAdjustment struct {
	Reason string  `json:"reason"`
	Detail string  `json:"detail,omitempty"`
	Delta  float64 `json:"delta"`
}

// MatchDetails records how a rule matched: the adjustment trail plus the
// provenance of the rule definition.
type MatchDetails struct {
	ScoreAdjustments []ScoreAdjustment `json:"score_adjustments"`
	SourceFile       string            `json:"source_file,omitempty"`
}

// Recommendation is a matched, scored intervention. It is created by the
// evaluation engine, adjusted at most once by the outcome store, has its
// justification attached by the explainability builder, and is read-only
// afterwards.
type Recommendation struct {
	RuleID           string        `json:"rule_id"`
	Technique        string        `json:"technique"`
	TechniqueAr      string        `json:"technique_ar,omitempty"`
	Category         string        `json:"category,omitempty"`
	Action           string        `json:"action"`
	Protocol         string        `json:"protocol,omitempty"`
	EvidenceLevel    EvidenceLevel `json:"evidence_level"`
	EvidenceRefs     []string      `json:"evidence_refs,omitempty"`
	Priority         int           `json:"priority"`
	SuitabilityScore float64       `json:"suitability_score"`
	Justification    string        `json:"justification,omitempty"`
	Experimental     bool          `json:"experimental,omitempty"`
	Controversy      string        `json:"controversy,omitempty"`
	HardGuardrails   []string      `json:"hard_guardrails,omitempty"`
	PriceRange       string        `json:"price_range,omitempty"`
	MatchDetails     MatchDetails  `json:"match_details"`
	OutcomeNote      string        `json:"outcome_note,omitempty"`
	OutcomeNoteEn    string        `json:"outcome_note_en,omitempty"`
}

// SkippedRule is the per-rule rejection diagnostic. Rejections are never
// surfaced as errors, only as audit detail.
type SkippedRule struct {
	RuleID    string `json:"rule_id"`
	Technique string `json:"technique"`
	Reason    string `json:"reason"`
}

// EvaluationResult is the output of one pass of the rule engine over a
// patient context. Invariant:
// len(Recommendations) + len(SkippedRules) == TotalRulesEvaluated.
type EvaluationResult struct {
	Recommendations     []Recommendation `json:"recommendations"`
	SkippedRules        []SkippedRule    `json:"skipped_rules"`
	TotalRulesEvaluated int              `json:"total_rules_evaluated"`
	TotalMatched        int              `json:"total_matched"`
}

// Less implements the canonical recommendation ordering: ascending priority,
// ties broken by descending suitability score. This ordering is shared by the
// engine and the outcome adjustment step and must stay stable.
func (r Recommendation) Less(other Recommendation) bool {
	if r.Priority != other.Priority {
		return r.Priority < other.Priority
	}
	return r.SuitabilityScore > other.SuitabilityScore
}
