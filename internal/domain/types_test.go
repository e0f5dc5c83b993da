package domain

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestEvidenceLevelBaseScore(t *testing.T) {
	tests := []struct {
		level EvidenceLevel
		score float64
	}{
		{Evidence1a, 20},
		{Evidence1b, 18},
		{Evidence2a, 14},
		{Evidence2b, 12},
		{Evidence3, 8},
		{Evidence4, 5},
		{Evidence5, 2},
		{EvidenceC, 3},
		{EvidenceD, 1},
		{EvidenceLevel("made_up"), 2},
		{EvidenceLevel(""), 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.score, tt.level.BaseScore(), "level %q", tt.level)
	}

	assert.True(t, Evidence1a.IsValid())
	assert.False(t, EvidenceLevel("made_up").IsValid())
}

func TestRecommendationOrdering(t *testing.T) {
	recs := []Recommendation{
		{RuleID: "A", Priority: 2, SuitabilityScore: 20},
		{RuleID: "B", Priority: 1, SuitabilityScore: 14},
		{RuleID: "C", Priority: 1, SuitabilityScore: 19},
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Less(recs[j]) })

	assert.Equal(t, "C", recs[0].RuleID, "lowest priority first, highest score breaks the tie")
	assert.Equal(t, "B", recs[1].RuleID)
	assert.Equal(t, "A", recs[2].RuleID)
}

func TestValidationResultInvariant(t *testing.T) {
	v := NewValidationResult()
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Errors)

	v.AddWarning("W1", "تحذير", "warning")
	assert.True(t, v.IsValid, "warnings never invalidate")

	v.AddError("E1", "خطأ", "error")
	assert.False(t, v.IsValid)
	assert.Equal(t, v.IsValid, len(v.Errors) == 0)
	assert.Equal(t, SeverityError, v.Errors[0].Severity)
}

func TestDeriveSuccess(t *testing.T) {
	t.Run("significant improvement", func(t *testing.T) {
		rec := OutcomeRecord{Measurements: OutcomeMeasurements{
			VABefore: floatPtr(1.0),
			VAAfter:  floatPtr(0.8),
		}}
		rec.DeriveSuccess()
		require.NotNil(t, rec.Success)
		assert.True(t, *rec.Success)
		assert.InDelta(t, 0.2, *rec.Measurements.VAImprovement, 1e-9)
	})

	t.Run("exact threshold counts as success", func(t *testing.T) {
		rec := OutcomeRecord{Measurements: OutcomeMeasurements{
			VABefore: floatPtr(0.5),
			VAAfter:  floatPtr(0.4),
		}}
		rec.DeriveSuccess()
		require.NotNil(t, rec.Success)
		assert.True(t, *rec.Success)
	})

	t.Run("below threshold", func(t *testing.T) {
		rec := OutcomeRecord{Measurements: OutcomeMeasurements{
			VABefore: floatPtr(0.5),
			VAAfter:  floatPtr(0.45),
		}}
		rec.DeriveSuccess()
		require.NotNil(t, rec.Success)
		assert.False(t, *rec.Success)
	})

	t.Run("explicit flag is preserved", func(t *testing.T) {
		rec := OutcomeRecord{
			Success: boolPtr(false),
			Measurements: OutcomeMeasurements{
				VABefore: floatPtr(1.0),
				VAAfter:  floatPtr(0.5),
			},
		}
		rec.DeriveSuccess()
		assert.False(t, *rec.Success)
		assert.InDelta(t, 0.5, *rec.Measurements.VAImprovement, 1e-9)
	})

	t.Run("missing measurements stay unresolved", func(t *testing.T) {
		rec := OutcomeRecord{Measurements: OutcomeMeasurements{VABefore: floatPtr(1.0)}}
		rec.DeriveSuccess()
		assert.Nil(t, rec.Success)
		assert.Nil(t, rec.Measurements.VAImprovement)
	})
}

func TestClinicalRuleValidate(t *testing.T) {
	valid := ClinicalRule{
		RuleID:         "ECC-001",
		Technique:      "Eccentric viewing training",
		Recommendation: RuleRecommendation{Action: "train", Priority: 1},
	}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.RuleID = ""
	assert.ErrorIs(t, noID.Validate(), ErrRuleMissingID)

	noTechnique := valid
	noTechnique.Technique = ""
	assert.ErrorIs(t, noTechnique.Validate(), ErrRuleMissingTechnique)

	badPriority := valid
	badPriority.Recommendation.Priority = -1
	assert.ErrorIs(t, badPriority.Validate(), ErrRuleInvalidPriority)
}

func TestObservationRangeContains(t *testing.T) {
	closed := ObservationRange{Min: floatPtr(0.4), Max: floatPtr(1.6)}
	assert.True(t, closed.Contains(0.4))
	assert.True(t, closed.Contains(1.6))
	assert.False(t, closed.Contains(0.39))
	assert.False(t, closed.Contains(1.61))

	minOnly := ObservationRange{Min: floatPtr(1.3)}
	assert.True(t, minOnly.Contains(2.5))
	assert.False(t, minOnly.Contains(1.0))

	open := ObservationRange{}
	assert.True(t, open.Contains(-100))
}

func TestLanguageIsValid(t *testing.T) {
	assert.True(t, LanguageArabic.IsValid())
	assert.True(t, LanguageEnglish.IsValid())
	assert.False(t, Language("fr").IsValid())
	assert.False(t, Language("").IsValid())
}
