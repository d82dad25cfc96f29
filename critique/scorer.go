// Package critique scores artifacts across four quality dimensions and runs
// per-phase validation batteries over workflows and execution results.
package critique

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blksails/e2e-agents/types"
)

// Dimension weights are fixed; Overall is their weighted sum.
const (
	WeightCompleteness = 0.30
	WeightAccuracy     = 0.30
	WeightFeasibility  = 0.25
	WeightCoverage     = 0.15

	// DefaultReviewThreshold is the overall score below which human review
	// is required when the caller does not supply a threshold.
	DefaultReviewThreshold = 0.6
)

// Dimensions are the four raw quality scores, each in [0,1].
type Dimensions struct {
	Completeness float64
	Accuracy     float64
	Feasibility  float64
	Coverage     float64
}

// Score validates the dimensions, derives the weighted overall (rounded to
// 3 decimals) and the human-review flag. The review flag is raised when the
// overall falls below reviewThreshold or when accuracy or feasibility drops
// below 0.5 regardless of the rest.
func Score(d Dimensions, reviewThreshold float64) (types.ConfidenceScore, error) {
	for name, v := range map[string]float64{
		"completeness": d.Completeness,
		"accuracy":     d.Accuracy,
		"feasibility":  d.Feasibility,
		"coverage":     d.Coverage,
	} {
		if v < 0 || v > 1 {
			return types.ConfidenceScore{}, fmt.Errorf("dimension %s out of range [0,1]: %v", name, v)
		}
	}

	overall := round3(d.Completeness*WeightCompleteness +
		d.Accuracy*WeightAccuracy +
		d.Feasibility*WeightFeasibility +
		d.Coverage*WeightCoverage)

	return types.ConfidenceScore{
		Completeness:        d.Completeness,
		Accuracy:            d.Accuracy,
		Feasibility:         d.Feasibility,
		Coverage:            d.Coverage,
		Overall:             overall,
		Reasoning:           reasoning(d, overall),
		HumanReviewRequired: overall < reviewThreshold || d.Accuracy < 0.5 || d.Feasibility < 0.5,
	}, nil
}

// CompletenessFromMissing derives a completeness score from a missing-item
// count: max(0, 1 - missing/expected), and 1 when nothing was expected.
func CompletenessFromMissing(missing, expected int) float64 {
	if expected == 0 {
		return 1
	}
	return math.Max(0, 1-float64(missing)/float64(expected))
}

// AccuracyFromErrors derives an accuracy score from an error count:
// max(0, 1 - errors/total), and 1 when there was nothing to check.
func AccuracyFromErrors(errs, total int) float64 {
	if total == 0 {
		return 1
	}
	return math.Max(0, 1-float64(errs)/float64(total))
}

// ZeroConfidence builds the critique attached to a synthetic failure: all
// dimensions zero, human review required, one critical issue.
func ZeroConfidence(phase, reason string) types.CritiqueResult {
	return types.CritiqueResult{
		Phase:     phase,
		Timestamp: time.Now().UnixMilli(),
		Score: types.ConfidenceScore{
			Reasoning:           reason,
			HumanReviewRequired: true,
		},
		Issues: []types.Issue{{
			Severity:    types.SeverityCritical,
			Description: reason,
		}},
	}
}

func reasoning(d Dimensions, overall float64) string {
	parts := []string{fmt.Sprintf("overall %.3f", overall)}
	if d.Completeness < 1 {
		parts = append(parts, fmt.Sprintf("completeness %.2f", d.Completeness))
	}
	if d.Accuracy < 1 {
		parts = append(parts, fmt.Sprintf("accuracy %.2f", d.Accuracy))
	}
	if d.Feasibility < 1 {
		parts = append(parts, fmt.Sprintf("feasibility %.2f", d.Feasibility))
	}
	if d.Coverage < 1 {
		parts = append(parts, fmt.Sprintf("coverage %.2f", d.Coverage))
	}
	return strings.Join(parts, ", ")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
