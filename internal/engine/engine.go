// Package engine evaluates the immutable clinical rule set against a patient
// context, producing scored, ranked recommendations plus a log of the rules
// that did not match.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// Fixed score adjustment deltas applied during condition matching.
const (
	missingObservationPenalty = -3
	missingEquipmentPenalty   = -5
	ageAboveMaxPenalty        = -5
	settingMismatchPenalty    = -3
	goalMatchBonus            = 5
)

// Engine holds the full rule set in memory. The set is loaded once, never
// mutated, and safe to share across concurrent evaluations.
type Engine struct {
	logger *logrus.Logger
	rules  []domain.ClinicalRule
}

// New creates a rule engine over the loaded rule set.
func New(logger *logrus.Logger, rules []domain.ClinicalRule) *Engine {
	return &Engine{logger: logger, rules: rules}
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

// Rules returns the loaded rule set for inspection.
func (e *Engine) Rules() []domain.ClinicalRule {
	return e.rules
}

// matchResult is the outcome of checking one rule's conditions.
type matchResult struct {
	matched     bool
	failReason  string
	adjustments []domain.ScoreAdjustment
}

// Evaluate checks every rule against the context. Every rule lands either in
// Recommendations or SkippedRules, so
// len(Recommendations)+len(SkippedRules) == TotalRulesEvaluated.
func (e *Engine) Evaluate(ctx *domain.PatientContext) *domain.EvaluationResult {
	result := &domain.EvaluationResult{
		Recommendations:     []domain.Recommendation{},
		SkippedRules:        []domain.SkippedRule{},
		TotalRulesEvaluated: len(e.rules),
	}

	for i := range e.rules {
		rule := &e.rules[i]
		match := e.checkConditions(rule, ctx)
		if match.matched {
			result.Recommendations = append(result.Recommendations, buildRecommendation(rule, match))
		} else {
			result.SkippedRules = append(result.SkippedRules, domain.SkippedRule{
				RuleID:    rule.RuleID,
				Technique: rule.Technique,
				Reason:    match.failReason,
			})
		}
	}

	sortRecommendations(result.Recommendations)
	result.TotalMatched = len(result.Recommendations)

	e.logger.WithFields(logrus.Fields{
		"total_rules": result.TotalRulesEvaluated,
		"matched":     result.TotalMatched,
		"skipped":     len(result.SkippedRules),
	}).Info("Rule evaluation completed")

	return result
}

// checkConditions applies the rule's condition predicates in order with
// early-exit rejection. Non-rejecting findings accumulate as score
// adjustments.
func (e *Engine) checkConditions(rule *domain.ClinicalRule, ctx *domain.PatientContext) matchResult {
	cond := rule.Conditions
	result := matchResult{matched: true}

	// 1. Vision-pattern requirement.
	if len(cond.HasVisionPattern) > 0 && !containsString(cond.HasVisionPattern, "any") {
		if !intersects(cond.HasVisionPattern, ctx.VisionPatterns) {
			return reject(fmt.Sprintf("vision pattern mismatch: need %v, have %v",
				cond.HasVisionPattern, ctx.VisionPatterns))
		}
	}

	// 2. Required diagnosis codes.
	if len(cond.HasConditionICD10) > 0 {
		if !intersects(cond.HasConditionICD10, ctx.ActiveICD10) {
			return reject(fmt.Sprintf("ICD-10 mismatch: need any of %v", cond.HasConditionICD10))
		}
	}

	// 3. Excluded diagnosis codes.
	if len(cond.ExcludeConditionICD10) > 0 {
		if excluded := intersection(cond.ExcludeConditionICD10, ctx.ActiveICD10); len(excluded) > 0 {
			return reject(fmt.Sprintf("excluded ICD-10 present: %v", excluded))
		}
	}

	// 4. Measurement ranges. A missing observation only lowers the score;
	// a present but out-of-range value rejects.
	codes := make([]string, 0, len(cond.ObservationLOINCRange))
	for code := range cond.ObservationLOINCRange {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rng := cond.ObservationLOINCRange[code]
		value, ok := ctx.Observations[code]
		if !ok {
			result.adjustments = append(result.adjustments, domain.ScoreAdjustment{
				Reason: "missing_observation",
				Detail: code,
				Delta:  missingObservationPenalty,
			})
			continue
		}
		if !rng.Contains(value) {
			return reject(fmt.Sprintf("LOINC %s value %g outside range %s", code, value, rangeString(rng)))
		}
	}

	// 5. Cognitive-status exclusion.
	if cond.CognitiveStatus != nil {
		for _, excluded := range cond.CognitiveStatus.Exclude {
			if ctx.CognitiveStatus == excluded {
				return reject(fmt.Sprintf("cognitive status %q is excluded", ctx.CognitiveStatus))
			}
		}
	}

	// 6. Equipment: hard requirement rejects, soft preference only deducts.
	if len(cond.EquipmentAvailable) > 0 && !intersects(cond.EquipmentAvailable, ctx.EquipmentAvailable) {
		if cond.SystemCapabilities != nil && cond.SystemCapabilities.EquipmentAvailable {
			return reject(fmt.Sprintf("required equipment %v not available", cond.EquipmentAvailable))
		}
		result.adjustments = append(result.adjustments, domain.ScoreAdjustment{
			Reason: "missing_equipment",
			Detail: strings.Join(cond.EquipmentAvailable, ","),
			Delta:  missingEquipmentPenalty,
		})
	}

	// 7. Age bounds: below minimum rejects, above maximum only deducts.
	if cond.PatientAge != nil && ctx.Patient.Age != nil {
		age := *ctx.Patient.Age
		if cond.PatientAge.Min != nil && age < *cond.PatientAge.Min {
			return reject(fmt.Sprintf("patient age %d below minimum %d", age, *cond.PatientAge.Min))
		}
		if cond.PatientAge.Max != nil && age > *cond.PatientAge.Max {
			result.adjustments = append(result.adjustments, domain.ScoreAdjustment{
				Reason: "age_above_max",
				Detail: fmt.Sprintf("%d", age),
				Delta:  ageAboveMaxPenalty,
			})
		}
	}

	// 8. Care setting mismatch only deducts.
	if len(cond.Setting) > 0 {
		found := false
		for _, s := range cond.Setting {
			if s == ctx.Setting {
				found = true
				break
			}
		}
		if !found {
			result.adjustments = append(result.adjustments, domain.ScoreAdjustment{
				Reason: "setting_mismatch",
				Detail: string(ctx.Setting),
				Delta:  settingMismatchPenalty,
			})
		}
	}

	// 9. Functional-goal overlap grants a bonus.
	if len(cond.FunctionalGoals) > 0 && intersects(cond.FunctionalGoals, ctx.FunctionalGoals) {
		result.adjustments = append(result.adjustments, domain.ScoreAdjustment{
			Reason: "goal_match",
			Detail: strings.Join(cond.FunctionalGoals, ","),
			Delta:  goalMatchBonus,
		})
	}

	return result
}

// buildRecommendation assembles a recommendation from a matched rule:
// suitability score = evidence base score + adjustment deltas, floored at
// zero.
func buildRecommendation(rule *domain.ClinicalRule, match matchResult) domain.Recommendation {
	rec := rule.Recommendation

	score := rec.EvidenceLevel.BaseScore()
	for _, adj := range match.adjustments {
		score += adj.Delta
	}
	if score < 0 {
		score = 0
	}

	adjustments := match.adjustments
	if adjustments == nil {
		adjustments = []domain.ScoreAdjustment{}
	}

	return domain.Recommendation{
		RuleID:           rule.RuleID,
		Technique:        rule.Technique,
		TechniqueAr:      rule.TechniqueAr,
		Category:         rule.Category,
		Action:           rec.Action,
		Protocol:         rec.Protocol,
		EvidenceLevel:    rec.EvidenceLevel,
		EvidenceRefs:     rec.EvidenceRefs,
		Priority:         rec.Priority,
		SuitabilityScore: score,
		Experimental:     rule.Experimental,
		Controversy:      rule.Controversy,
		HardGuardrails:   rule.HardGuardrails,
		PriceRange:       rec.PriceRange,
		MatchDetails: domain.MatchDetails{
			ScoreAdjustments: adjustments,
			SourceFile:       rule.SourceFile,
		},
	}
}

// sortRecommendations applies the canonical ordering: ascending priority,
// ties broken by descending suitability score. The sort is stable so
// identical input yields identical ranking.
func sortRecommendations(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Less(recs[j])
	})
}

// SortRecommendations exposes the canonical ordering for the outcome
// adjustment step, which must re-sort with the same rule.
func SortRecommendations(recs []domain.Recommendation) {
	sortRecommendations(recs)
}

func reject(reason string) matchResult {
	return matchResult{matched: false, failReason: reason}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func intersection(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

func rangeString(r domain.ObservationRange) string {
	minStr, maxStr := "-inf", "+inf"
	if r.Min != nil {
		minStr = fmt.Sprintf("%g", *r.Min)
	}
	if r.Max != nil {
		maxStr = fmt.Sprintf("%g", *r.Max)
	}
	return fmt.Sprintf("[%s, %s]", minStr, maxStr)
}
