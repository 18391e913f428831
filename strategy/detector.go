package strategy

import (
	"fmt"
	"sort"
	"strings"

	"hurst-trader/models"
)

// Detector names accepted by New and by the STRATEGY setting.
const (
	MeanReversionName        = "mean_reversion"
	MomentumConfirmationName = "momentum_confirmation"
	HurstRegimeName          = "hurst_regime"
	MomentumPersistentName   = "momentum_persistent"
)

// Detector turns a price window into a directional call.
// Implementations are stateless and never fail: short or degenerate input yields HOLD.
type Detector interface {
	Name() string
	// MinTicks is the shortest window Detect will act on.
	MinTicks() int
	Detect(prices []float64) models.DetectorResult
}

var registry = map[string]func() Detector{
	MeanReversionName:        func() Detector { return NewMeanReversion() },
	MomentumConfirmationName: func() Detector { return NewMomentumConfirmation() },
	HurstRegimeName:          func() Detector { return NewHurstRegime() },
	MomentumPersistentName:   func() Detector { return NewMomentumPersistent() },
}

// New returns the detector registered under name.
func New(name string) (Detector, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered detectors in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hold(strategy, rationale string, params map[string]interface{}) models.DetectorResult {
	return models.DetectorResult{
		Strategy:   strategy,
		Signal:     models.Hold,
		Confidence: 0,
		Rationale:  rationale,
		Params:     params,
	}
}

func insufficient(strategy string, have, need int) models.DetectorResult {
	return hold(strategy, fmt.Sprintf("insufficient data: %d/%d ticks", have, need), nil)
}

// direction classifies a price change against a noise threshold.
func direction(change, threshold float64) models.Signal {
	switch {
	case change > threshold:
		return models.Call
	case change < -threshold:
		return models.Put
	default:
		return models.Hold
	}
}
