package critique

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blksails/e2e-agents/types"
)

func TestScore(t *testing.T) {
	t.Run("perfect dimensions", func(t *testing.T) {
		score, err := Score(Dimensions{Completeness: 1, Accuracy: 1, Feasibility: 1, Coverage: 1}, DefaultReviewThreshold)
		require.NoError(t, err)
		assert.Equal(t, 1.0, score.Overall)
		assert.False(t, score.HumanReviewRequired)
	})

	t.Run("weighted sum rounded to 3 decimals", func(t *testing.T) {
		score, err := Score(Dimensions{Completeness: 0.9, Accuracy: 0.8, Feasibility: 0.7, Coverage: 0.6}, DefaultReviewThreshold)
		require.NoError(t, err)
		// 0.9*0.30 + 0.8*0.30 + 0.7*0.25 + 0.6*0.15 = 0.775
		assert.Equal(t, 0.775, score.Overall)
	})

	t.Run("range errors", func(t *testing.T) {
		cases := []Dimensions{
			{Completeness: -0.1, Accuracy: 1, Feasibility: 1, Coverage: 1},
			{Completeness: 1, Accuracy: 1.1, Feasibility: 1, Coverage: 1},
			{Completeness: 1, Accuracy: 1, Feasibility: -1, Coverage: 1},
			{Completeness: 1, Accuracy: 1, Feasibility: 1, Coverage: 2},
		}
		for _, d := range cases {
			_, err := Score(d, DefaultReviewThreshold)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "out of range [0,1]")
		}
	})

	t.Run("review flag follows the threshold", func(t *testing.T) {
		score, err := Score(Dimensions{Completeness: 0.6, Accuracy: 0.6, Feasibility: 0.6, Coverage: 0.6}, DefaultReviewThreshold)
		require.NoError(t, err)
		assert.Equal(t, 0.6, score.Overall)
		assert.False(t, score.HumanReviewRequired)

		score, err = Score(Dimensions{Completeness: 0.6, Accuracy: 0.6, Feasibility: 0.6, Coverage: 0.6}, 0.7)
		require.NoError(t, err)
		assert.True(t, score.HumanReviewRequired)
	})

	t.Run("low accuracy forces review regardless of overall", func(t *testing.T) {
		score, err := Score(Dimensions{Completeness: 1, Accuracy: 0.4, Feasibility: 1, Coverage: 1}, DefaultReviewThreshold)
		require.NoError(t, err)
		assert.True(t, score.Overall >= DefaultReviewThreshold)
		assert.True(t, score.HumanReviewRequired)
	})

	t.Run("low feasibility forces review regardless of overall", func(t *testing.T) {
		score, err := Score(Dimensions{Completeness: 1, Accuracy: 1, Feasibility: 0.4, Coverage: 1}, DefaultReviewThreshold)
		require.NoError(t, err)
		assert.True(t, score.Overall >= DefaultReviewThreshold)
		assert.True(t, score.HumanReviewRequired)
	})
}

func TestDerivationHelpers(t *testing.T) {
	assert.Equal(t, 1.0, CompletenessFromMissing(0, 0), "zero expected means complete")
	assert.Equal(t, 1.0, CompletenessFromMissing(0, 10))
	assert.Equal(t, 0.5, CompletenessFromMissing(5, 10))
	assert.Equal(t, 0.0, CompletenessFromMissing(20, 10), "clamped at zero")

	assert.Equal(t, 1.0, AccuracyFromErrors(0, 0), "nothing to check means accurate")
	assert.Equal(t, 0.75, AccuracyFromErrors(1, 4))
	assert.Equal(t, 0.0, AccuracyFromErrors(9, 3), "clamped at zero")
}

func TestZeroConfidence(t *testing.T) {
	crit := ZeroConfidence(PhaseExecution, "panic during execution")

	assert.Equal(t, PhaseExecution, crit.Phase)
	assert.Equal(t, 0.0, crit.Score.Overall)
	assert.True(t, crit.Score.HumanReviewRequired)
	require.Len(t, crit.Issues, 1)
	assert.Equal(t, types.SeverityCritical, crit.Issues[0].Severity)
	assert.Equal(t, "panic during execution", crit.Issues[0].Description)
}
