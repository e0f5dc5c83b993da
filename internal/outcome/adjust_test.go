package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

func makeRecs() []domain.Recommendation {
	return []domain.Recommendation{
		{RuleID: "R1", Technique: "Eccentric viewing training", Priority: 1, SuitabilityScore: 19},
		{RuleID: "R2", Technique: "Optical magnifier", Priority: 1, SuitabilityScore: 18},
		{RuleID: "R3", Technique: "Scanning training", Priority: 2, SuitabilityScore: 20},
	}
}

func TestAdjustPrioritiesNoHistory(t *testing.T) {
	recs := makeRecs()

	adjusted := AdjustPriorities(makeRecs(), nil)

	assert.Equal(t, recs, adjusted)
}

func TestAdjustPrioritiesFailurePenalty(t *testing.T) {
	history := map[string]domain.TechniqueSummary{
		"R1": {Failures: 2, Total: 2},
	}

	adjusted := AdjustPriorities(makeRecs(), history)

	// R1 is demoted: priority 1→6, score 19→9, and sinks below R3.
	var r1 domain.Recommendation
	for _, rec := range adjusted {
		if rec.RuleID == "R1" {
			r1 = rec
		}
	}
	assert.Equal(t, 6, r1.Priority)
	assert.Equal(t, 9.0, r1.SuitabilityScore)
	assert.Contains(t, r1.OutcomeNote, "بدون نجاح")
	assert.Contains(t, r1.OutcomeNoteEn, "without success")
	assert.Equal(t, "R1", adjusted[len(adjusted)-1].RuleID)
}

func TestAdjustPrioritiesMonotonicity(t *testing.T) {
	history := map[string]domain.TechniqueSummary{
		"R1": {Failures: 1, Total: 1},
	}

	before := makeRecs()
	after := AdjustPriorities(makeRecs(), history)

	rankOf := func(recs []domain.Recommendation, id string) int {
		for i, rec := range recs {
			if rec.RuleID == id {
				return i
			}
		}
		return -1
	}

	assert.GreaterOrEqual(t, rankOf(after, "R1"), rankOf(before, "R1"))
	for _, rec := range after {
		if rec.RuleID == "R1" {
			assert.Greater(t, rec.Priority, before[0].Priority)
			assert.Less(t, rec.SuitabilityScore, before[0].SuitabilityScore)
		}
	}
}

func TestAdjustPrioritiesAnySuccessProtects(t *testing.T) {
	history := map[string]domain.TechniqueSummary{
		"R1": {Successes: 1, Failures: 3, Total: 4},
	}

	adjusted := AdjustPriorities(makeRecs(), history)

	require.Equal(t, "R1", adjusted[0].RuleID)
	assert.Equal(t, 1, adjusted[0].Priority)
	assert.Equal(t, 19.0, adjusted[0].SuitabilityScore)
	assert.Contains(t, adjusted[0].OutcomeNote, "بنجاح")
}

func TestAdjustPrioritiesScoreFloor(t *testing.T) {
	recs := []domain.Recommendation{
		{RuleID: "R1", Technique: "T", Priority: 1, SuitabilityScore: 4},
	}
	history := map[string]domain.TechniqueSummary{
		"R1": {Failures: 1, Total: 1},
	}

	adjusted := AdjustPriorities(recs, history)

	assert.Equal(t, 0.0, adjusted[0].SuitabilityScore)
}

func TestAdjustPrioritiesMatchesTechniqueName(t *testing.T) {
	// Outcomes logged against the technique name instead of the rule ID.
	history := map[string]domain.TechniqueSummary{
		"Optical magnifier": {Failures: 1, Total: 1},
	}

	adjusted := AdjustPriorities(makeRecs(), history)

	for _, rec := range adjusted {
		if rec.RuleID == "R2" {
			assert.Equal(t, 6, rec.Priority)
		}
	}
}
