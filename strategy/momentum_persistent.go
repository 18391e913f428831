package strategy

import (
	"fmt"
	"math"

	"hurst-trader/indicators"
	"hurst-trader/models"
)

const (
	persistentMinTicks   = 20
	primaryAlignment     = 0.8
	secondaryAgreement   = 2
	secondaryForce       = 1.5
	primaryMaxConf       = 0.80
	secondaryMaxConf     = 0.55
	efficiencyBonusAbove = 0.5
	forceCap             = 3.0
)

var alignmentWindows = [3]int{3, 7, 15}

// PersistenceAnalysis is the full breakdown behind a MomentumPersistent decision.
type PersistenceAnalysis struct {
	Result     models.DetectorResult `json:"result"`
	Hurst      float64               `json:"hurst"`
	R2         float64               `json:"r2"`
	Estimated  bool                  `json:"estimated"` // false when the caller supplied H
	Behavior   Behavior              `json:"behavior"`
	Directions [3]models.Signal      `json:"directions"`
	Up         int                   `json:"up"`
	Down       int                   `json:"down"`
	Lateral    int                   `json:"lateral"`
	Alignment  float64               `json:"alignment"`
	Force      float64               `json:"force"`
	Trend      TrendQuality          `json:"trend"`
	IsLateral  bool                  `json:"isLateral"`
}

// MomentumPersistent trades with the majority direction of three nested windows when the
// series is persistent. The lateral flag is reported but does not gate the signal.
type MomentumPersistent struct {
	regime *RegimeDetector
}

// NewMomentumPersistent creates the detector.
func NewMomentumPersistent() *MomentumPersistent {
	return &MomentumPersistent{regime: NewRegimeDetector()}
}

func (*MomentumPersistent) Name() string { return MomentumPersistentName }

func (*MomentumPersistent) MinTicks() int { return persistentMinTicks }

func (d *MomentumPersistent) Detect(prices []float64) models.DetectorResult {
	return d.Analyze(prices, nil).Result
}

// Analyze estimates H itself once 50 ticks are available. Below that it uses supplied when
// non-nil and the neutral exponent otherwise.
func (d *MomentumPersistent) Analyze(prices []float64, supplied *indicators.HurstResult) PersistenceAnalysis {
	var a PersistenceAnalysis
	if len(prices) < persistentMinTicks {
		a.Result = insufficient(d.Name(), len(prices), persistentMinTicks)
		a.Hurst = indicators.NeutralHurst
		a.Behavior = RandomWalk
		a.IsLateral = true
		return a
	}

	est := indicators.Neutral()
	switch {
	case len(prices) >= hurstWindow:
		est = indicators.Hurst(prices)
		a.Estimated = true
	case supplied != nil:
		est = *supplied
	}
	a.Hurst, a.R2 = est.Hurst, est.R2
	a.Behavior = ClassifyBehavior(est.Hurst)

	threshold := math.Abs(indicators.SMA(prices)) * directionThreshold
	last := prices[len(prices)-1]
	for i, w := range alignmentWindows {
		dir := direction(last-prices[len(prices)-w], threshold)
		a.Directions[i] = dir
		switch dir {
		case models.Call:
			a.Up++
		case models.Put:
			a.Down++
		default:
			a.Lateral++
		}
	}
	majority, agree := models.Hold, a.Up
	if a.Up > a.Down {
		majority = models.Call
	} else if a.Down > a.Up {
		majority, agree = models.Put, a.Down
	}
	a.Alignment = (float64(agree) - 0.5*float64(a.Lateral)) / float64(len(alignmentWindows))

	a.Force = forceRatio(indicators.Last(prices, trendWindow), directionTicks)
	a.Trend = d.regime.Assess(prices)
	a.IsLateral = a.Trend.Lateral

	params := map[string]interface{}{
		"hurst":      a.Hurst,
		"r2":         a.R2,
		"behavior":   string(a.Behavior),
		"alignment":  a.Alignment,
		"up":         a.Up,
		"down":       a.Down,
		"lateral":    a.Lateral,
		"force":      a.Force,
		"efficiency": a.Trend.Efficiency,
		"strength":   a.Trend.Strength,
		"reversals":  a.Trend.Reversals,
		"isLateral":  a.IsLateral,
	}

	if a.Behavior != Persistent || majority == models.Hold {
		a.Result = hold(d.Name(), fmt.Sprintf("H=%.3f %s, alignment %.2f", a.Hurst, a.Behavior, a.Alignment), params)
		return a
	}

	hurstExcess := indicators.Clamp((a.Hurst-0.5)/0.4, 0, 1)
	if a.Alignment >= primaryAlignment {
		conf := 0.35*hurstExcess + 0.2*a.R2 + 0.25*a.Alignment + 0.1*math.Min(a.Force/forceCap, 1)
		if a.Trend.Efficiency > efficiencyBonusAbove {
			conf += 0.1 * a.Trend.Efficiency
		}
		a.Result = models.DetectorResult{
			Strategy:   d.Name(),
			Signal:     majority,
			Confidence: indicators.Clamp(conf, 0, primaryMaxConf),
			Rationale: fmt.Sprintf("persistent H=%.3f R2=%.2f, %d/3 windows %s, efficiency %.2f",
				a.Hurst, a.R2, agree, majority, a.Trend.Efficiency),
			Params: params,
		}
		return a
	}
	if agree >= secondaryAgreement && a.Force > secondaryForce {
		conf := 0.3 + 0.2*hurstExcess + 0.1*a.R2
		a.Result = models.DetectorResult{
			Strategy:   d.Name(),
			Signal:     majority,
			Confidence: indicators.Clamp(conf, 0, secondaryMaxConf),
			Rationale:  fmt.Sprintf("persistent H=%.3f, %d/3 windows %s with force %.2f", a.Hurst, agree, majority, a.Force),
			Params:     params,
		}
		return a
	}
	a.Result = hold(d.Name(), fmt.Sprintf("persistent H=%.3f but alignment %.2f force %.2f", a.Hurst, a.Alignment, a.Force), params)
	return a
}
