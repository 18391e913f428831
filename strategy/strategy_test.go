package strategy

import (
	"math"
	"math/rand"
	"testing"

	"hurst-trader/indicators"
	"hurst-trader/models"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func allDetectors(t *testing.T) []Detector {
	t.Helper()
	var out []Detector
	for _, name := range Names() {
		d, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if d.Name() != name {
			t.Fatalf("New(%q) returned %q", name, d.Name())
		}
		out = append(out, d)
	}
	return out
}

func TestRegistry(t *testing.T) {
	if got := len(allDetectors(t)); got != 4 {
		t.Fatalf("expected 4 detectors, got %d", got)
	}
	if _, err := New("  Momentum_Persistent "); err != nil {
		t.Fatalf("lookup should be case and space insensitive: %v", err)
	}
	if _, err := New("bollinger"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestShortInputHolds(t *testing.T) {
	for _, d := range allDetectors(t) {
		for _, n := range []int{0, 1, d.MinTicks() - 1} {
			res := d.Detect(ramp(n, 100, 0.1))
			if res.Signal != models.Hold || res.Confidence != 0 {
				t.Fatalf("%s with %d ticks: got %s/%.2f", d.Name(), n, res.Signal, res.Confidence)
			}
			if res.Rationale == "" {
				t.Fatalf("%s: empty rationale on short input", d.Name())
			}
		}
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	series := [][]float64{
		ramp(60, 100, 0.1),
		ramp(60, 100, -0.1),
		repeat(100, 60),
		append(repeat(100, 45), 101, 103, 106, 110, 115),
	}
	for _, d := range allDetectors(t) {
		for _, s := range series {
			res := d.Detect(s)
			if res.Confidence < 0 || res.Confidence > 1 || math.IsNaN(res.Confidence) {
				t.Fatalf("%s confidence out of range: %v", d.Name(), res.Confidence)
			}
			if res.Signal == models.Hold && res.Confidence != 0 {
				t.Fatalf("%s HOLD with confidence %v", d.Name(), res.Confidence)
			}
		}
	}
}

func TestMeanReversionFadesSpike(t *testing.T) {
	d := NewMeanReversion()
	up := append(repeat(100, 15), 100.5, 101, 101.5, 102, 103)
	res := d.Detect(up)
	if res.Signal != models.Put {
		t.Fatalf("expected PUT after overbought spike, got %s (%s)", res.Signal, res.Rationale)
	}
	if res.Confidence <= 0 || res.Confidence > meanReversionCeiling {
		t.Fatalf("confidence out of band: %v", res.Confidence)
	}

	down := append(repeat(100, 15), 99.5, 99, 98.5, 98, 97)
	if res := d.Detect(down); res.Signal != models.Call {
		t.Fatalf("expected CALL after oversold dip, got %s", res.Signal)
	}
	if res := d.Detect(repeat(100, 20)); res.Signal != models.Hold {
		t.Fatalf("flat window must hold")
	}
}

func TestMeanReversionDecelerationBoost(t *testing.T) {
	d := NewMeanReversion()
	base := repeat(100, 10)

	// fast leg then slow leg: the stretch is losing speed
	slowing := append(append([]float64{}, base...), 100.8, 101.6, 102.4, 103.2, 104, 104.2, 104.4, 104.6, 104.8, 105)
	res := d.Detect(slowing)
	if res.Signal != models.Put || res.Params["decelerating"] != true {
		t.Fatalf("expected decelerating PUT, got %s (%s)", res.Signal, res.Rationale)
	}
	unboosted := math.Abs(res.Params["z"].(float64)) / 3
	if math.Abs(res.Confidence-(unboosted+decelerationBoost)) > 1e-9 {
		t.Fatalf("confidence %v, want %v plus boost %v", res.Confidence, unboosted, decelerationBoost)
	}

	// slow leg then fast leg: still accelerating, no boost
	speeding := append(append([]float64{}, base...), 100.2, 100.4, 100.6, 100.8, 101, 101.8, 102.6, 103.4, 104.2, 105)
	res = d.Detect(speeding)
	if res.Signal != models.Put || res.Params["decelerating"] != false {
		t.Fatalf("expected accelerating PUT, got %s (%s)", res.Signal, res.Rationale)
	}
	want := math.Min(math.Abs(res.Params["z"].(float64))/3, meanReversionMaxConf)
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("accelerating confidence %v, want %v", res.Confidence, want)
	}
}

func TestMomentumConfirmationRuleA(t *testing.T) {
	prices := []float64{100, 100.1, 100, 100.1, 100, 100.1, 100, 100.1, 100, 100.1,
		100.3, 100.5, 100.7, 100.9, 101.1}
	res := NewMomentumConfirmation().Detect(prices)
	if res.Signal != models.Put {
		t.Fatalf("expected fade of up-run, got %s (%s)", res.Signal, res.Rationale)
	}
	if res.Confidence != confirmationMaxConf {
		t.Fatalf("expected capped confidence %.2f, got %.2f", confirmationMaxConf, res.Confidence)
	}
	if res.Params["run"] != 5 {
		t.Fatalf("expected run of 5, got %v", res.Params["run"])
	}
}

func TestMomentumConfirmationRuleB(t *testing.T) {
	prices := []float64{100, 102, 100, 102, 100, 102, 100, 102, 100, 102,
		101, 101.1, 101.2, 101.3, 101.4}
	res := NewMomentumConfirmation().Detect(prices)
	if res.Signal != models.Put || res.Confidence != confirmationLongConf {
		t.Fatalf("expected low-confidence fade, got %s/%.2f (%s)", res.Signal, res.Confidence, res.Rationale)
	}
}

func TestMomentumConfirmationTieStopsRun(t *testing.T) {
	prices := append(ramp(13, 100, 0.1), 101.2, 101.2)
	res := NewMomentumConfirmation().Detect(prices)
	if res.Signal != models.Hold {
		t.Fatalf("flat newest move should stop the run, got %s", res.Signal)
	}
}

func TestHurstRegimeFollowsPersistentTrend(t *testing.T) {
	d := NewHurstRegime()
	res := d.Detect(ramp(50, 100, 0.1))
	if res.Signal != models.Call {
		t.Fatalf("expected CALL on persistent climb, got %s (%s)", res.Signal, res.Rationale)
	}
	if math.Abs(res.Confidence-hurstMaxConf) > 1e-9 {
		t.Fatalf("expected capped confidence, got %v", res.Confidence)
	}
	if res := d.Detect(ramp(50, 105, -0.1)); res.Signal != models.Put {
		t.Fatalf("expected PUT on persistent decline, got %s", res.Signal)
	}
	if res := d.Detect(repeat(100, 60)); res.Signal != models.Hold {
		t.Fatalf("flat series must hold")
	}
}

// noiseSeries is either i.i.d. noise around a level or a random walk, 50 ticks long.
func noiseSeries(seed int64, walk bool) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, hurstWindow)
	p := 100.0
	for i := range out {
		if walk {
			p += rng.NormFloat64() * 0.05
			out[i] = p
		} else {
			out[i] = 100 + rng.NormFloat64()*0.05
		}
	}
	return out
}

func TestHurstRegimeFadesAntipersistentAndGatesOnFit(t *testing.T) {
	d := NewHurstRegime()
	faded, untrusted := 0, 0
	for seed := int64(1); seed < 400; seed++ {
		for _, walk := range []bool{false, true} {
			prices := noiseSeries(seed, walk)
			est := indicators.Hurst(prices)
			dir := recentDirection(prices, directionTicks)
			res := d.Detect(prices)

			switch {
			case est.R2 <= hurstMinR2:
				untrusted++
				if res.Signal != models.Hold || res.Confidence != 0 {
					t.Fatalf("seed %d: R2=%.2f must hold, got %s/%.2f", seed, est.R2, res.Signal, res.Confidence)
				}
			case dir == models.Hold:
				if res.Signal != models.Hold {
					t.Fatalf("seed %d: flat recent move must hold, got %s", seed, res.Signal)
				}
			case ClassifyBehavior(est.Hurst) == Antipersistent:
				faded++
				if res.Signal != dir.Opposite() {
					t.Fatalf("seed %d: H=%.3f R2=%.2f move %s, want %s got %s",
						seed, est.Hurst, est.R2, dir, dir.Opposite(), res.Signal)
				}
				if res.Confidence <= 0 || res.Confidence > hurstMaxConf {
					t.Fatalf("seed %d: confidence %v out of range", seed, res.Confidence)
				}
			case ClassifyBehavior(est.Hurst) == Persistent:
				if res.Signal != dir {
					t.Fatalf("seed %d: persistent H=%.3f should follow %s, got %s", seed, est.Hurst, dir, res.Signal)
				}
			default:
				if res.Signal != models.Hold {
					t.Fatalf("seed %d: random-walk H=%.3f must hold, got %s", seed, est.Hurst, res.Signal)
				}
			}
		}
	}
	if faded == 0 {
		t.Fatalf("no trusted antipersistent series in the sweep")
	}
	if untrusted == 0 {
		t.Fatalf("no poorly fitted series in the sweep")
	}
}

func TestClassifyBehaviorBands(t *testing.T) {
	cases := []struct {
		h        float64
		behavior Behavior
		band     string
	}{
		{0.9, Persistent, "high"},
		{0.59, Persistent, "medium"},
		{0.5, RandomWalk, "medium"},
		{0.41, Antipersistent, "medium"},
		{0.2, Antipersistent, "low"},
	}
	for _, c := range cases {
		if got := ClassifyBehavior(c.h); got != c.behavior {
			t.Fatalf("ClassifyBehavior(%v)=%s want %s", c.h, got, c.behavior)
		}
		if got := PersistenceBand(c.h); got != c.band {
			t.Fatalf("PersistenceBand(%v)=%s want %s", c.h, got, c.band)
		}
	}
}

func TestMomentumPersistentRisingScenario(t *testing.T) {
	a := NewMomentumPersistent().Analyze(ramp(50, 100, 0.1), nil)
	if !a.Estimated {
		t.Fatalf("50 ticks should be estimated internally")
	}
	if a.Hurst <= 0.58 {
		t.Fatalf("expected persistent H, got %.3f", a.Hurst)
	}
	if a.Up != 3 || a.Alignment != 1 {
		t.Fatalf("expected all windows up, got up=%d alignment=%.2f", a.Up, a.Alignment)
	}
	if a.Result.Signal != models.Call {
		t.Fatalf("expected CALL, got %s (%s)", a.Result.Signal, a.Result.Rationale)
	}
	if a.Result.Confidence > primaryMaxConf {
		t.Fatalf("confidence above cap: %v", a.Result.Confidence)
	}
	if a.IsLateral {
		t.Fatalf("clean ramp must not be lateral: %+v", a.Trend)
	}
}

func TestMomentumPersistentFlatScenario(t *testing.T) {
	a := NewMomentumPersistent().Analyze(repeat(100, 60), nil)
	if a.Result.Signal != models.Hold {
		t.Fatalf("expected HOLD, got %s", a.Result.Signal)
	}
	if !a.IsLateral {
		t.Fatalf("flat market must be lateral")
	}
	if a.Hurst != indicators.NeutralHurst {
		t.Fatalf("flat series should have neutral H, got %v", a.Hurst)
	}
}

func TestMomentumPersistentSuppliedHurst(t *testing.T) {
	d := NewMomentumPersistent()
	prices := ramp(30, 100, 0.1)
	if res := d.Detect(prices); res.Signal != models.Hold {
		t.Fatalf("without H the short window should hold, got %s", res.Signal)
	}
	a := d.Analyze(prices, &indicators.HurstResult{Hurst: 0.8, R2: 0.9, Valid: true})
	if a.Estimated || a.Result.Signal != models.Call {
		t.Fatalf("expected CALL from supplied H, got %s estimated=%t", a.Result.Signal, a.Estimated)
	}
	if a.Result.Confidence != primaryMaxConf {
		t.Fatalf("expected capped confidence, got %v", a.Result.Confidence)
	}
}

func TestMomentumPersistentSecondaryRule(t *testing.T) {
	prices := repeat(101, 15)
	for i := 1; i <= 10; i++ {
		prices = append(prices, 101-0.2*float64(i))
	}
	prices = append(prices, 99.3, 99.6, 99.9, 100.2, 100.5)

	a := NewMomentumPersistent().Analyze(prices, &indicators.HurstResult{Hurst: 0.8, R2: 0.9, Valid: true})
	if a.Up != 2 || a.Down != 1 {
		t.Fatalf("expected 2 up / 1 down, got %v", a.Directions)
	}
	if a.Result.Signal != models.Call {
		t.Fatalf("expected secondary CALL, got %s (%s)", a.Result.Signal, a.Result.Rationale)
	}
	if a.Result.Confidence > secondaryMaxConf || a.Result.Confidence < 0.3 {
		t.Fatalf("secondary confidence out of band: %v", a.Result.Confidence)
	}
}

func TestRegimeDetectorAssess(t *testing.T) {
	rd := NewRegimeDetector()
	clean := rd.Assess(ramp(15, 100, 0.1))
	if clean.Lateral || clean.Strength < 99 || clean.LongestRun != 14 || clean.Reversals != 0 {
		t.Fatalf("unexpected clean trend %+v", clean)
	}

	var chop []float64
	for i := 0; i < 16; i++ {
		chop = append(chop, 100+float64(i%2))
	}
	q := rd.Assess(chop)
	if !q.Lateral || q.Reversals <= lateralMaxReversals {
		t.Fatalf("zig-zag should be lateral, got %+v", q)
	}
}
