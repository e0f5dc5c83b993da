package outcome

import (
	"fmt"

	"github.com/vision-rehab-cdss-server/internal/domain"
	"github.com/vision-rehab-cdss-server/internal/engine"
)

// Penalty applied to a technique that only ever failed for this patient.
const (
	failurePriorityPenalty = 5
	failureScorePenalty    = 10
)

// AdjustPriorities demotes recommendations whose technique previously failed
// for this patient and annotates ones that previously succeeded. A technique
// is demoted only when its history holds failures and no successes; any past
// success leaves the ranking untouched. The input slice is modified in place,
// each recommendation at most once, then re-sorted under the canonical
// ordering.
func AdjustPriorities(recommendations []domain.Recommendation, history map[string]domain.TechniqueSummary) []domain.Recommendation {
	if len(history) == 0 {
		return recommendations
	}

	for i := range recommendations {
		rec := &recommendations[i]
		summary, ok := lookupTechnique(history, rec)
		if !ok {
			continue
		}

		if summary.Failures > 0 && summary.Successes == 0 {
			rec.Priority += failurePriorityPenalty
			rec.SuitabilityScore -= failureScorePenalty
			if rec.SuitabilityScore < 0 {
				rec.SuitabilityScore = 0
			}
			rec.OutcomeNote = fmt.Sprintf("جُرّب سابقاً بدون نجاح (%d محاولة فاشلة)", summary.Failures)
			rec.OutcomeNoteEn = fmt.Sprintf("Previously tried without success (%d failed attempts)", summary.Failures)
		} else if summary.Successes > 0 {
			rec.OutcomeNote = fmt.Sprintf("جُرّب سابقاً بنجاح (%d مرة)", summary.Successes)
			rec.OutcomeNoteEn = fmt.Sprintf("Previously tried with success (%d times)", summary.Successes)
		}
	}

	engine.SortRecommendations(recommendations)
	return recommendations
}

// lookupTechnique resolves the history entry for a recommendation. Outcomes
// are logged against either the rule ID or the technique name, so both keys
// are accepted.
func lookupTechnique(history map[string]domain.TechniqueSummary, rec *domain.Recommendation) (domain.TechniqueSummary, bool) {
	if summary, ok := history[rec.RuleID]; ok {
		return summary, true
	}
	summary, ok := history[rec.Technique]
	return summary, ok
}
