package strategy

import (
	"math"

	"hurst-trader/indicators"
)

const (
	trendWindow         = 15
	lateralEfficiency   = 0.3
	lateralStrength     = 25.0
	lateralMaxReversals = 5
)

// TrendQuality describes how clean the recent move is.
type TrendQuality struct {
	Efficiency float64 `json:"efficiency"`
	LongestRun int     `json:"longestRun"`
	Reversals  int     `json:"reversals"`
	Strength   float64 `json:"strength"` // 0-100
	Lateral    bool    `json:"lateral"`
}

// RegimeDetector scores trend cleanliness over the last 15 ticks.
type RegimeDetector struct {
	window int
}

// NewRegimeDetector creates a new regime detector instance
func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{window: trendWindow}
}

// Assess blends efficiency, longest run and reversal count into a 0-100 strength score and
// flags the market lateral when efficiency<0.3, strength<25 or reversals>5.
func (rd *RegimeDetector) Assess(prices []float64) TrendQuality {
	closes := prices
	if len(closes) > rd.window {
		closes = closes[len(closes)-rd.window:]
	}
	if len(closes) < 2 {
		return TrendQuality{Lateral: true}
	}

	efficiency := indicators.EfficiencyRatio(closes)
	run, reversals := rd.runsAndReversals(closes)
	moves := float64(len(closes) - 1)

	runScore := math.Min(float64(run)/moves, 1)
	reversalScore := math.Max(0, 1-float64(reversals)/(moves/2))
	strength := indicators.Clamp(efficiency*50+runScore*30+reversalScore*20, 0, 100)
	if efficiency == 0 {
		// a motionless window has no trend
		strength = 0
	}

	return TrendQuality{
		Efficiency: efficiency,
		LongestRun: run,
		Reversals:  reversals,
		Strength:   strength,
		Lateral:    efficiency < lateralEfficiency || strength < lateralStrength || reversals > lateralMaxReversals,
	}
}

// runsAndReversals returns the longest run of same-direction moves and the number of direction
// changes between consecutive non-flat moves.
func (rd *RegimeDetector) runsAndReversals(closes []float64) (int, int) {
	var longest, current, reversals int
	prev := 0
	for i := 1; i < len(closes); i++ {
		sign := 0
		switch d := closes[i] - closes[i-1]; {
		case d > 0:
			sign = 1
		case d < 0:
			sign = -1
		}
		if sign == 0 {
			current = 0
			continue
		}
		if prev != 0 && sign != prev {
			reversals++
			current = 0
		}
		current++
		if current > longest {
			longest = current
		}
		prev = sign
	}
	return longest, reversals
}
