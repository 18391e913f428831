package indicators

import (
	"math"
)

const (
	// NeutralHurst is returned whenever the estimate cannot be trusted.
	NeutralHurst = 0.5

	minHurst = 0.1
	maxHurst = 0.9

	minReturns        = 30
	minVariance       = 1e-12
	seedScale         = 8
	scaleGrowth       = 1.4
	minRegressionSize = 3
)

// HurstResult carries the exponent and the R² of the log-log fit.
// Callers should gate on R2 before acting on an extreme exponent.
type HurstResult struct {
	Hurst  float64
	R2     float64
	Scales int  // scales that contributed to the fit
	Valid  bool // false when the neutral fallback was used
}

// Neutral is the fallback estimate for degenerate input.
func Neutral() HurstResult {
	return HurstResult{Hurst: NeutralHurst}
}

// RescaleScales returns the window sizes used for n returns: 8, then ×1.4, up to n/3.
func RescaleScales(n int) []int {
	limit := n / 3
	var scales []int
	for s := seedScale; s <= limit; {
		scales = append(scales, s)
		next := int(math.Floor(float64(s) * scaleGrowth))
		if next <= s {
			next = s + 1
		}
		s = next
	}
	return scales
}

// Hurst estimates the Hurst exponent of a price series with rescaled-range analysis.
// It never panics and never returns NaN or Inf; degenerate input yields Neutral().
func Hurst(prices []float64) HurstResult {
	returns := LogReturns(prices)
	if len(returns) < minReturns {
		return Neutral()
	}
	if Variance(returns) < minVariance {
		return Neutral()
	}

	var xs, ys []float64
	for _, scale := range RescaleScales(len(returns)) {
		avg, ok := averageRescaledRange(returns, scale)
		if !ok {
			continue
		}
		xs = append(xs, math.Log(float64(scale)))
		ys = append(ys, math.Log(avg))
	}
	if len(xs) < minRegressionSize {
		return Neutral()
	}

	fit := FitLine(xs, ys)
	if !fit.OK {
		return Neutral()
	}
	return HurstResult{
		Hurst:  Clamp(fit.Slope, minHurst, maxHurst),
		R2:     Clamp(fit.R2, 0, 1),
		Scales: len(xs),
		Valid:  true,
	}
}

// averageRescaledRange averages R/S over the non-overlapping windows of one scale.
// Averaging rather than taking the max keeps the estimate stable on short series.
func averageRescaledRange(returns []float64, scale int) (float64, bool) {
	windows := len(returns) / scale
	var sum float64
	var count int
	for w := 0; w < windows; w++ {
		rs, ok := rescaledRange(returns[w*scale : (w+1)*scale])
		if !ok {
			continue
		}
		sum += rs
		count++
	}
	if count == 0 {
		return 0, false
	}
	avg := sum / float64(count)
	if avg <= 0 || math.IsNaN(avg) || math.IsInf(avg, 0) {
		return 0, false
	}
	return avg, true
}

func rescaledRange(window []float64) (float64, bool) {
	mean := SMA(window)
	var cum, lo, hi float64
	for i, v := range window {
		cum += v - mean
		if i == 0 || cum < lo {
			lo = cum
		}
		if i == 0 || cum > hi {
			hi = cum
		}
	}
	s := StdDev(window)
	if s <= 0 {
		return 0, false
	}
	rs := (hi - lo) / s
	if math.IsNaN(rs) || math.IsInf(rs, 0) {
		return 0, false
	}
	return rs, true
}
