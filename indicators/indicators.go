package indicators

import (
	"math"
)

// SMA calculates Simple Moving Average
func SMA(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// SMAWithPeriod calculates Simple Moving Average over the last period values
func SMAWithPeriod(data []float64, period int) float64 {
	if len(data) < period || period <= 0 {
		return 0
	}
	return SMA(data[len(data)-period:])
}

// Variance calculates population variance
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := SMA(data)
	var sum float64
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(data))
}

// StdDev calculates population standard deviation
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// Last returns the trailing n values, or nil if there are fewer than n.
func Last(data []float64, n int) []float64 {
	if n <= 0 || len(data) < n {
		return nil
	}
	return data[len(data)-n:]
}

// LogReturns returns ln(p[i]/p[i-1]); pairs with a non-positive price are skipped.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		r := math.Log(cur / prev)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Diffs returns the tick-to-tick changes p[i]-p[i-1].
func Diffs(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i] - prices[i-1]
	}
	return out
}

// MeanAbs returns the mean absolute value.
func MeanAbs(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += math.Abs(v)
	}
	return sum / float64(len(data))
}

// LinearFit is an ordinary least squares fit y = Slope*x + Intercept.
type LinearFit struct {
	Slope     float64
	Intercept float64
	R2        float64
	OK        bool
}

// FitLine regresses ys on xs. OK is false for mismatched, short or degenerate input.
func FitLine(xs, ys []float64) LinearFit {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return LinearFit{}
	}
	mx, my := SMA(xs), SMA(ys)
	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return LinearFit{}
	}
	slope := sxy / sxx
	fit := LinearFit{Slope: slope, Intercept: my - slope*mx, OK: true}
	if syy > 0 {
		fit.R2 = (sxy * sxy) / (sxx * syy)
	} else {
		// every y equal: the horizontal line fits exactly
		fit.R2 = 1
	}
	if math.IsNaN(fit.Slope) || math.IsInf(fit.Slope, 0) {
		return LinearFit{}
	}
	if math.IsNaN(fit.R2) || math.IsInf(fit.R2, 0) {
		fit.R2 = 0
	}
	return fit
}

// EfficiencyRatio is |net displacement| / total absolute movement over prices.
// 1 means a straight line, near 0 means chop; a motionless series returns 0.
func EfficiencyRatio(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	net := math.Abs(prices[len(prices)-1] - prices[0])
	total := 0.0
	for i := 1; i < len(prices); i++ {
		total += math.Abs(prices[i] - prices[i-1])
	}
	if total == 0 {
		return 0
	}
	return net / total
}

// MaxSlice returns the maximum value in a slice
func MaxSlice(arr []float64) float64 {
	if len(arr) == 0 {
		return 0
	}
	max := arr[0]
	for _, v := range arr[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// MinSlice returns the minimum value in a slice
func MinSlice(arr []float64) float64 {
	if len(arr) == 0 {
		return 0
	}
	min := arr[0]
	for _, v := range arr[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Clamp bounds val to [min, max].
func Clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
