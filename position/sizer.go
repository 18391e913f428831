package position

import (
	"sync"

	"github.com/shopspring/decimal"

	"hurst-trader/config"
	"hurst-trader/logging"
	"hurst-trader/models"
)

var hundred = decimal.NewFromInt(100)

// StakeSizer tracks bankroll, streaks and escalation level, and prices the next contract.
// Balance and stake change only through UpdateLastTrade / Settle.
type StakeSizer struct {
	Config *config.Config
	Logger logging.LoggerInterface

	mu sync.Mutex

	policy       string
	initialStake decimal.Decimal
	minStake     decimal.Decimal
	maxStake     decimal.Decimal
	payout       decimal.Decimal // profit per unit stake on a win

	balance      decimal.Decimal
	currentStake decimal.Decimal
	streakLoss   decimal.Decimal
	totalProfit  decimal.Decimal
	totalLoss    decimal.Decimal

	consecutiveWins   int
	consecutiveLosses int
	winsAtBase        int
	sorosLevel        int
	martingaleLevel   int
	outcomes          []bool

	targetFired bool
	stopFired   bool

	onTarget func(profit, balance float64)
	onStop   func(loss, balance float64)
}

// NewStakeSizer builds a sizer from the stake settings in cfg.
func NewStakeSizer(cfg *config.Config, logger logging.LoggerInterface) *StakeSizer {
	s := &StakeSizer{
		Config:       cfg,
		Logger:       logger,
		policy:       cfg.StakePolicy,
		initialStake: decimal.NewFromFloat(cfg.InitialStake),
		minStake:     decimal.NewFromFloat(cfg.MinStake),
		maxStake:     decimal.NewFromFloat(cfg.MaxStake),
		payout:       decimal.NewFromFloat(cfg.ProfitPercent).Div(hundred),
		balance:      decimal.NewFromFloat(cfg.InitialBalance),
	}
	s.currentStake = s.clamp(s.initialStake)
	return s
}

// OnTargetReached registers the callback fired once per session when net profit reaches TargetProfit.
func (s *StakeSizer) OnTargetReached(fn func(profit, balance float64)) {
	s.mu.Lock()
	s.onTarget = fn
	s.mu.Unlock()
}

// OnStopLossReached registers the callback fired once per session when net loss reaches StopLoss.
func (s *StakeSizer) OnStopLossReached(fn func(loss, balance float64)) {
	s.mu.Lock()
	s.onStop = fn
	s.mu.Unlock()
}

// CalculateNextStake returns the stake for the next contract, clamped to [MinStake, MaxStake].
func (s *StakeSizer) CalculateNextStake() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStake.InexactFloat64()
}

// CurrentBalance returns the bankroll after all settled trades.
func (s *StakeSizer) CurrentBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance.InexactFloat64()
}

// UpdateLastTrade settles the last contract at the current stake using the configured payout.
func (s *StakeSizer) UpdateLastTrade(isWin bool) {
	s.mu.Lock()
	stake := s.currentStake
	profit := stake.Neg()
	if isWin {
		profit = stake.Mul(s.payout).Round(2)
	}
	fire := s.apply(isWin, stake, profit)
	s.mu.Unlock()
	fire()
}

// Settle is UpdateLastTrade with the stake actually placed and the profit reported by the
// broker. A non-positive stake falls back to the current stake.
func (s *StakeSizer) Settle(isWin bool, stake, profit float64) {
	s.mu.Lock()
	placed := s.currentStake
	if stake > 0 {
		placed = decimal.NewFromFloat(stake).Round(2)
	}
	fire := s.apply(isWin, placed, decimal.NewFromFloat(profit).Round(2))
	s.mu.Unlock()
	fire()
}

// apply must be called with mu held. The returned func runs callbacks after unlock.
func (s *StakeSizer) apply(isWin bool, stake, profit decimal.Decimal) func() {
	armed := s.escalationArmed()
	atBase := s.martingaleLevel == 0 && s.sorosLevel == 0

	s.balance = s.balance.Add(profit)
	if profit.IsPositive() {
		s.totalProfit = s.totalProfit.Add(profit)
	} else {
		s.totalLoss = s.totalLoss.Add(profit.Abs())
	}
	s.recordOutcome(isWin)
	gated := s.winRateGated()

	if isWin {
		s.consecutiveWins++
		s.consecutiveLosses = 0
		if atBase {
			s.winsAtBase++
		}
	} else {
		s.consecutiveLosses++
		s.consecutiveWins = 0
		if atBase && !armed {
			s.winsAtBase = 0
		}
	}

	next := s.initialStake
	switch s.policy {
	case config.PolicyMartingale:
		if isWin {
			if s.martingaleLevel > 0 {
				s.endCycle()
			}
			s.streakLoss = decimal.Zero
			break
		}
		lost := profit.Abs()
		if lost.IsZero() {
			lost = stake
		}
		s.streakLoss = s.streakLoss.Add(lost)
		if !armed || gated {
			s.streakLoss = decimal.Zero
			s.martingaleLevel = 0
			break
		}
		s.martingaleLevel++
		// a win at the next stake returns the streak's losses plus one base unit of profit
		next = s.streakLoss.Add(s.initialStake.Mul(s.payout)).Div(s.payout)
	case config.PolicySoros:
		if !isWin {
			if s.sorosLevel > 0 {
				s.endCycle()
			}
			break
		}
		if !armed || gated {
			s.sorosLevel = 0
			break
		}
		s.sorosLevel++
		if s.sorosLevel >= s.Config.SorosLevel {
			s.endCycle()
			break
		}
		next = stake.Add(profit)
	}
	s.currentStake = s.clamp(next)

	s.Logger.Debug("Settled %s: stake=%s profit=%s balance=%s next=%s (W%d/L%d mg=%d soros=%d)",
		outcomeLabel(isWin), stake, profit, s.balance, s.currentStake,
		s.consecutiveWins, s.consecutiveLosses, s.martingaleLevel, s.sorosLevel)

	return s.thresholdCallbacks()
}

// endCycle closes an escalation sequence; escalation must be re-earned when WinsBeforeMartingale > 0.
func (s *StakeSizer) endCycle() {
	s.martingaleLevel = 0
	s.sorosLevel = 0
	s.winsAtBase = 0
}

func (s *StakeSizer) escalationArmed() bool {
	n := s.Config.WinsBeforeMartingale
	return n <= 0 || s.winsAtBase >= n
}

func (s *StakeSizer) recordOutcome(isWin bool) {
	window := s.Config.WinRateWindow
	if window <= 0 {
		window = 100
	}
	s.outcomes = append(s.outcomes, isWin)
	if len(s.outcomes) > window {
		s.outcomes = s.outcomes[len(s.outcomes)-window:]
	}
}

func (s *StakeSizer) winRate() float64 {
	if len(s.outcomes) == 0 {
		return 0
	}
	wins := 0
	for _, w := range s.outcomes {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(s.outcomes))
}

// winRateGated suspends escalation while the rolling win rate is below MinWinRate.
func (s *StakeSizer) winRateGated() bool {
	n := s.Config.WinRateWindow
	if n <= 0 || s.Config.MinWinRate <= 0 || len(s.outcomes) < n {
		return false
	}
	return s.winRate() < s.Config.MinWinRate
}

func (s *StakeSizer) thresholdCallbacks() func() {
	net := s.totalProfit.Sub(s.totalLoss)
	balance := s.balance.InexactFloat64()
	var calls []func()

	if target := decimal.NewFromFloat(s.Config.TargetProfit); target.IsPositive() && !s.targetFired && net.GreaterThanOrEqual(target) {
		s.targetFired = true
		if fn := s.onTarget; fn != nil {
			profit := net.InexactFloat64()
			calls = append(calls, func() { fn(profit, balance) })
		}
		s.Logger.Info("Target profit reached: net=%s balance=%s", net, s.balance)
	}
	if stop := decimal.NewFromFloat(s.Config.StopLoss); stop.IsPositive() && !s.stopFired && net.Neg().GreaterThanOrEqual(stop) {
		s.stopFired = true
		if fn := s.onStop; fn != nil {
			loss := net.Neg().InexactFloat64()
			calls = append(calls, func() { fn(loss, balance) })
		}
		s.Logger.Warning("Stop loss reached: net=%s balance=%s", net, s.balance)
	}
	return func() {
		for _, call := range calls {
			call()
		}
	}
}

func (s *StakeSizer) clamp(stake decimal.Decimal) decimal.Decimal {
	if stake.LessThan(s.minStake) {
		stake = s.minStake
	}
	if s.maxStake.IsPositive() && stake.GreaterThan(s.maxStake) {
		stake = s.maxStake
	}
	if stake.IsNegative() {
		stake = decimal.Zero
	}
	return stake.Round(2)
}

// ResetSession clears streaks, escalation, accumulators and threshold flags. Balance is kept.
func (s *StakeSizer) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streakLoss = decimal.Zero
	s.totalProfit = decimal.Zero
	s.totalLoss = decimal.Zero
	s.consecutiveWins = 0
	s.consecutiveLosses = 0
	s.winsAtBase = 0
	s.sorosLevel = 0
	s.martingaleLevel = 0
	s.outcomes = nil
	s.targetFired = false
	s.stopFired = false
	s.currentStake = s.clamp(s.initialStake)
}

// SessionProfit is total profit minus total loss since the last reset.
func (s *StakeSizer) SessionProfit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalProfit.Sub(s.totalLoss).InexactFloat64()
}

// Snapshot returns a copy of the sizer state.
func (s *StakeSizer) Snapshot() models.StakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StakeSnapshot{
		Policy:            s.policy,
		CurrentBalance:    s.balance.InexactFloat64(),
		InitialStake:      s.initialStake.InexactFloat64(),
		CurrentStake:      s.currentStake.InexactFloat64(),
		ConsecutiveWins:   s.consecutiveWins,
		ConsecutiveLosses: s.consecutiveLosses,
		SorosLevel:        s.sorosLevel,
		MartingaleLevel:   s.martingaleLevel,
		TotalProfit:       s.totalProfit.InexactFloat64(),
		TotalLoss:         s.totalLoss.InexactFloat64(),
		WinRate:           s.winRate(),
	}
}

func outcomeLabel(isWin bool) string {
	if isWin {
		return "WIN"
	}
	return "LOSS"
}
