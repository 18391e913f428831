package strategy

import (
	"fmt"
	"math"

	"hurst-trader/indicators"
	"hurst-trader/models"
)

const (
	confirmationWindow    = 15
	confirmationRun       = 5
	confirmationMinRun    = 3
	confirmationLongRun   = 4
	confirmationForce     = 1.5
	confirmationMaxConf   = 0.75
	confirmationLongConf  = 0.45
	confirmationBaseConf  = 0.5
	confirmationStepConf  = 0.05
	confirmationForceConf = 0.05
)

// MomentumConfirmation fades exhausted runs of same-direction ticks.
type MomentumConfirmation struct{}

// NewMomentumConfirmation creates the detector.
func NewMomentumConfirmation() *MomentumConfirmation { return &MomentumConfirmation{} }

func (*MomentumConfirmation) Name() string { return MomentumConfirmationName }

func (*MomentumConfirmation) MinTicks() int { return confirmationWindow }

func (d *MomentumConfirmation) Detect(prices []float64) models.DetectorResult {
	if len(prices) < confirmationWindow {
		return insufficient(d.Name(), len(prices), confirmationWindow)
	}
	window := indicators.Last(prices, confirmationWindow)
	run, runDir := consecutiveRun(window, confirmationRun)
	force := forceRatio(window, confirmationRun)

	params := map[string]interface{}{
		"run":       run,
		"direction": string(runDir),
		"force":     force,
	}
	if runDir == models.Hold || force == 0 {
		return hold(d.Name(), "no directional run", params)
	}

	switch {
	case run >= confirmationMinRun && force > confirmationForce:
		conf := confirmationBaseConf +
			confirmationStepConf*float64(run-confirmationMinRun) +
			confirmationForceConf*(force-confirmationForce)
		return models.DetectorResult{
			Strategy:   d.Name(),
			Signal:     runDir.Opposite(),
			Confidence: math.Min(conf, confirmationMaxConf),
			Rationale:  fmt.Sprintf("%d %s moves with force %.2f: fade", run, runDir, force),
			Params:     params,
		}
	case run >= confirmationLongRun:
		return models.DetectorResult{
			Strategy:   d.Name(),
			Signal:     runDir.Opposite(),
			Confidence: confirmationLongConf,
			Rationale:  fmt.Sprintf("%d %s moves, weak force %.2f: fade", run, runDir, force),
			Params:     params,
		}
	}
	return hold(d.Name(), fmt.Sprintf("run=%d force=%.2f below thresholds", run, force), params)
}

// consecutiveRun counts same-direction moves backwards from the newest one, looking at most
// maxMoves moves back. A flat move or a reversal ends the run.
func consecutiveRun(prices []float64, maxMoves int) (int, models.Signal) {
	if len(prices) < 2 {
		return 0, models.Hold
	}
	count := 0
	dir := models.Hold
	for i := len(prices) - 1; i >= 1 && count < maxMoves; i-- {
		step := direction(prices[i]-prices[i-1], 0)
		if step == models.Hold {
			break
		}
		if dir == models.Hold {
			dir = step
		} else if step != dir {
			break
		}
		count++
	}
	return count, dir
}

// forceRatio compares the net move over the last moves ticks with the window's average
// absolute tick move. Zero when the window never moved.
func forceRatio(prices []float64, moves int) float64 {
	if len(prices) <= moves {
		return 0
	}
	avg := indicators.MeanAbs(indicators.Diffs(prices))
	if avg == 0 {
		return 0
	}
	net := prices[len(prices)-1] - prices[len(prices)-1-moves]
	return math.Abs(net) / avg
}
