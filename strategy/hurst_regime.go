package strategy

import (
	"fmt"
	"math"

	"hurst-trader/indicators"
	"hurst-trader/models"
)

const (
	hurstWindow        = 50
	hurstMinR2         = 0.5
	hurstMaxConf       = 0.7
	directionTicks     = 5
	directionThreshold = 0.0001 // 0.01% of mean price

	persistentAbove     = 0.58
	antipersistentBelow = 0.42
	highPersistence     = 0.6
	lowPersistence      = 0.4
)

// Behavior is the regime implied by a Hurst exponent.
type Behavior string

const (
	Persistent     Behavior = "persistent"
	Antipersistent Behavior = "antipersistent"
	RandomWalk     Behavior = "random"
)

// ClassifyBehavior maps H to persistent (>0.58), antipersistent (<0.42) or random.
func ClassifyBehavior(h float64) Behavior {
	switch {
	case h > persistentAbove:
		return Persistent
	case h < antipersistentBelow:
		return Antipersistent
	default:
		return RandomWalk
	}
}

// PersistenceBand maps H to high (>0.6), medium or low (<0.4).
func PersistenceBand(h float64) string {
	switch {
	case h > highPersistence:
		return "high"
	case h < lowPersistence:
		return "low"
	default:
		return "medium"
	}
}

// HurstRegime trades with the trend when the series is persistent and against it when it is
// antipersistent, provided the log-log fit is trustworthy.
type HurstRegime struct{}

// NewHurstRegime creates the detector.
func NewHurstRegime() *HurstRegime { return &HurstRegime{} }

func (*HurstRegime) Name() string { return HurstRegimeName }

func (*HurstRegime) MinTicks() int { return hurstWindow }

func (d *HurstRegime) Detect(prices []float64) models.DetectorResult {
	if len(prices) < hurstWindow {
		return insufficient(d.Name(), len(prices), hurstWindow)
	}
	est := indicators.Hurst(prices)
	behavior := ClassifyBehavior(est.Hurst)
	dir := recentDirection(prices, directionTicks)

	params := map[string]interface{}{
		"hurst":     est.Hurst,
		"r2":        est.R2,
		"band":      PersistenceBand(est.Hurst),
		"behavior":  string(behavior),
		"direction": string(dir),
	}
	if est.R2 <= hurstMinR2 {
		return hold(d.Name(), fmt.Sprintf("H=%.3f untrusted (R2=%.2f)", est.Hurst, est.R2), params)
	}
	if dir == models.Hold {
		return hold(d.Name(), fmt.Sprintf("H=%.3f but last %d ticks are flat", est.Hurst, directionTicks), params)
	}

	var signal models.Signal
	switch behavior {
	case Persistent:
		signal = dir
	case Antipersistent:
		signal = dir.Opposite()
	default:
		return hold(d.Name(), fmt.Sprintf("H=%.3f looks like a random walk", est.Hurst), params)
	}

	conf := math.Min(math.Abs(est.Hurst-0.5)*2*est.R2*1.5, hurstMaxConf)
	return models.DetectorResult{
		Strategy:   d.Name(),
		Signal:     signal,
		Confidence: conf,
		Rationale:  fmt.Sprintf("%s regime H=%.3f R2=%.2f, recent move %s", behavior, est.Hurst, est.R2, dir),
		Params:     params,
	}
}

// recentDirection is the direction of the last n-tick move, ignoring moves smaller than
// 0.01% of the window's mean price.
func recentDirection(prices []float64, n int) models.Signal {
	if len(prices) <= n {
		return models.Hold
	}
	change := prices[len(prices)-1] - prices[len(prices)-1-n]
	return direction(change, math.Abs(indicators.SMA(prices))*directionThreshold)
}
