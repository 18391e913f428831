package strategy

import (
	"fmt"
	"math"

	"hurst-trader/indicators"
	"hurst-trader/models"
)

const (
	meanReversionWindow   = 20
	meanReversionVelocity = 5
	meanReversionZ        = 1.5
	meanReversionMaxConf  = 0.75
	decelerationBoost     = 0.1
	meanReversionCeiling  = 0.85
)

// MeanReversion fades prices stretched more than 1.5 standard deviations from the 20-tick mean.
type MeanReversion struct{}

// NewMeanReversion creates the detector.
func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (*MeanReversion) Name() string { return MeanReversionName }

func (*MeanReversion) MinTicks() int { return meanReversionWindow }

// Detect computes the z-score of the latest price and the 5-tick velocity.
// An overbought spike still rising signals PUT, an oversold dip still falling signals CALL.
func (d *MeanReversion) Detect(prices []float64) models.DetectorResult {
	if len(prices) < meanReversionWindow {
		return insufficient(d.Name(), len(prices), meanReversionWindow)
	}
	window := indicators.Last(prices, meanReversionWindow)
	mean := indicators.SMA(window)
	std := indicators.StdDev(window)
	if std == 0 {
		return hold(d.Name(), "no dispersion in window", map[string]interface{}{"mean": mean})
	}

	last := window[len(window)-1]
	z := (last - mean) / std
	n := len(window)
	velocity := (window[n-1] - window[n-1-meanReversionVelocity]) / meanReversionVelocity
	prevVelocity := (window[n-1-meanReversionVelocity] - window[n-1-2*meanReversionVelocity]) / meanReversionVelocity
	acceleration := velocity - prevVelocity
	decelerating := math.Abs(velocity) < math.Abs(prevVelocity)

	params := map[string]interface{}{
		"mean":         mean,
		"std":          std,
		"z":            z,
		"velocity":     velocity,
		"acceleration": acceleration,
		"decelerating": decelerating,
	}

	var signal models.Signal
	switch {
	case z > meanReversionZ && velocity > 0:
		signal = models.Put
	case z < -meanReversionZ && velocity < 0:
		signal = models.Call
	default:
		return hold(d.Name(), fmt.Sprintf("z=%.2f velocity=%.5f: no stretched move", z, velocity), params)
	}

	conf := math.Min(math.Abs(z)/3, meanReversionMaxConf)
	if decelerating {
		conf = math.Min(conf+decelerationBoost, meanReversionCeiling)
	}
	return models.DetectorResult{
		Strategy:   d.Name(),
		Signal:     signal,
		Confidence: conf,
		Rationale:  fmt.Sprintf("z=%.2f velocity=%.5f decelerating=%t: expect pullback", z, velocity, decelerating),
		Params:     params,
	}
}
