package attribution

import (
	"fmt"
	"math"
	"time"
)

// TouchpointRef is the minimal touchpoint view the credit calculation
// needs: journey order and timing. Callers pass refs sorted by position.
type TouchpointRef struct {
	ID        uint
	Position  int
	Timestamp time.Time
}

// CalculateCredits computes the credit share for every touchpoint in an
// ordered sequence. The returned slice is parallel to touchpoints and sums
// to 1.0 whenever the sequence is non-empty. anchor is the point in time
// decay is measured against, the journey end for closed journeys and the
// calculation time for active ones.
func CalculateCredits(model *AttributionModel, touchpoints []TouchpointRef, anchor time.Time) ([]float64, error) {
	n := len(touchpoints)
	if n == 0 {
		return nil, nil
	}

	switch model.Type {
	case ModelTypeFirstTouch:
		return oneHotCredits(n, 0), nil
	case ModelTypeLastTouch:
		return oneHotCredits(n, n-1), nil
	case ModelTypeLinear:
		return linearCredits(n), nil
	case ModelTypeTimeDecay:
		return timeDecayCredits(model, touchpoints, anchor), nil
	case ModelTypePositionBased:
		return positionBasedCredits(model, n), nil
	default:
		return nil, fmt.Errorf("unsupported attribution model type %q", model.Type)
	}
}

func oneHotCredits(n, index int) []float64 {
	credits := make([]float64, n)
	credits[index] = 1.0
	return credits
}

func linearCredits(n int) []float64 {
	credits := make([]float64, n)
	share := 1.0 / float64(n)
	for i := range credits {
		credits[i] = share
	}
	return credits
}

// timeDecayCredits weights each touchpoint by decayRate^(age/halfLife) and
// normalizes. Ages are measured in days back from the anchor, touchpoints
// recorded after the anchor count as age zero. When every raw weight
// underflows to zero the distribution degrades to linear instead of NaN.
func timeDecayCredits(model *AttributionModel, touchpoints []TouchpointRef, anchor time.Time) []float64 {
	n := len(touchpoints)
	credits := make([]float64, n)

	total := 0.0
	for i, tp := range touchpoints {
		ageDays := anchor.Sub(tp.Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		credits[i] = math.Pow(model.DecayRate, ageDays/model.HalfLifeDays)
		total += credits[i]
	}

	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return linearCredits(n)
	}

	for i := range credits {
		credits[i] /= total
	}
	return credits
}

// positionBasedCredits assigns the configured first and last weights to the
// endpoints and splits the middle weight evenly across interior
// touchpoints. A single touchpoint takes all credit, a pair absorbs half
// the middle weight each.
func positionBasedCredits(model *AttributionModel, n int) []float64 {
	switch n {
	case 1:
		return []float64{1.0}
	case 2:
		half := model.MiddleWeight / 2
		return []float64{model.FirstWeight + half, model.LastWeight + half}
	default:
		credits := make([]float64, n)
		credits[0] = model.FirstWeight
		credits[n-1] = model.LastWeight
		interior := model.MiddleWeight / float64(n-2)
		for i := 1; i < n-1; i++ {
			credits[i] = interior
		}
		return credits
	}
}
