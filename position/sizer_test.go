package position

import (
	"math"
	"testing"

	"hurst-trader/config"
	"hurst-trader/logging"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (nopLogger) Fatal(string, ...interface{})          {}
func (nopLogger) Sync() error                           { return nil }
func (nopLogger) ChangeLogLevel(level logging.LogLevel) {}

func newTestConfig(policy string) *config.Config {
	cfg := config.LoadConfig()
	cfg.StakePolicy = policy
	cfg.InitialBalance = 1000
	cfg.InitialStake = 10
	cfg.MinStake = 0.35
	cfg.MaxStake = 1000
	cfg.ProfitPercent = 90
	cfg.SorosLevel = 3
	cfg.WinsBeforeMartingale = 0
	cfg.TargetProfit = 0
	cfg.StopLoss = 0
	cfg.WinRateWindow = 0
	cfg.MinWinRate = 0
	return cfg
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.011 }

func TestFixedStakeStaysConstant(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicyFixed), nopLogger{})
	for i, win := range []bool{false, false, true, false, true, true, false} {
		if got := s.CalculateNextStake(); got != 10 {
			t.Fatalf("trade %d: stake %v want 10", i, got)
		}
		s.UpdateLastTrade(win)
	}
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("final stake %v want 10", got)
	}
}

func TestFixedStakeClamped(t *testing.T) {
	cfg := newTestConfig(config.PolicyFixed)
	cfg.InitialStake = 0.1
	if got := NewStakeSizer(cfg, nopLogger{}).CalculateNextStake(); got != 0.35 {
		t.Fatalf("stake below minimum should clamp to 0.35, got %v", got)
	}
	cfg.InitialStake = 5000
	if got := NewStakeSizer(cfg, nopLogger{}).CalculateNextStake(); got != 1000 {
		t.Fatalf("stake above maximum should clamp to 1000, got %v", got)
	}
}

func TestMartingaleRecoversStreak(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicyMartingale), nopLogger{})

	s.UpdateLastTrade(false) // lose 10
	if got := s.CalculateNextStake(); !near(got, 21.11) {
		t.Fatalf("level 1 stake %v want 21.11", got)
	}
	s.UpdateLastTrade(false) // lose 21.11
	second := s.CalculateNextStake()
	if !near(second, 44.57) {
		t.Fatalf("level 2 stake %v want 44.57", second)
	}
	if snap := s.Snapshot(); snap.MartingaleLevel != 2 || snap.ConsecutiveLosses != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	s.UpdateLastTrade(true)
	if net := s.SessionProfit(); math.Abs(net-9) > 0.05 {
		t.Fatalf("net after recovery %v want about +9", net)
	}
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("stake after win %v want reset to 10", got)
	}
	if !near(s.CurrentBalance(), 1009) {
		t.Fatalf("balance %v want 1009", s.CurrentBalance())
	}
}

func TestMartingaleWaitsForWinsAtBase(t *testing.T) {
	cfg := newTestConfig(config.PolicyMartingale)
	cfg.WinsBeforeMartingale = 2
	s := NewStakeSizer(cfg, nopLogger{})

	s.UpdateLastTrade(false)
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("escalation before arming: %v", got)
	}
	s.UpdateLastTrade(true)
	s.UpdateLastTrade(true)
	s.UpdateLastTrade(false)
	if got := s.CalculateNextStake(); !near(got, 21.11) {
		t.Fatalf("armed escalation stake %v want 21.11", got)
	}
	s.UpdateLastTrade(true)
	s.UpdateLastTrade(false)
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("escalation must be re-earned after a cycle, got %v", got)
	}
}

func TestMartingaleWinRateGate(t *testing.T) {
	cfg := newTestConfig(config.PolicyMartingale)
	cfg.WinRateWindow = 4
	cfg.MinWinRate = 0.5
	s := NewStakeSizer(cfg, nopLogger{})

	s.UpdateLastTrade(true)
	s.UpdateLastTrade(false)
	s.UpdateLastTrade(false)
	if got := s.CalculateNextStake(); got == 10 {
		t.Fatalf("gate should not apply before the window fills")
	}
	s.UpdateLastTrade(false) // 1/4 wins
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("low win rate should suspend escalation, got %v", got)
	}
}

func TestSorosCompoundsAndResets(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicySoros), nopLogger{})

	s.UpdateLastTrade(true) // stake 10, profit 9
	if got := s.CalculateNextStake(); got != 19 {
		t.Fatalf("after first win %v want 19", got)
	}
	s.UpdateLastTrade(true) // stake 19, profit 17.10
	if got := s.CalculateNextStake(); !near(got, 36.10) {
		t.Fatalf("after second win %v want 36.10", got)
	}
	s.UpdateLastTrade(true) // third consecutive win reaches soros level 3
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("after soros level %v want reset to 10", got)
	}

	s.UpdateLastTrade(true)
	s.UpdateLastTrade(false)
	if got := s.CalculateNextStake(); got != 10 {
		t.Fatalf("loss must reset soros, got %v", got)
	}
	if snap := s.Snapshot(); snap.SorosLevel != 0 {
		t.Fatalf("soros level not reset: %+v", snap)
	}
}

func TestSettleUsesBrokerProfit(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicySoros), nopLogger{})
	s.Settle(true, 10, 8.5)
	if got := s.CalculateNextStake(); got != 18.5 {
		t.Fatalf("soros should compound broker profit, got %v", got)
	}
	if !near(s.CurrentBalance(), 1008.5) {
		t.Fatalf("balance %v want 1008.5", s.CurrentBalance())
	}
}

func TestSettleCompoundsPlacedStakeAfterReset(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicySoros), nopLogger{})
	s.UpdateLastTrade(true)
	if got := s.CalculateNextStake(); got != 19 {
		t.Fatalf("after first win %v want 19", got)
	}
	// a contract at 19 is in flight when the session restarts
	s.ResetSession()
	s.Settle(true, 19, 17.1)
	if got := s.CalculateNextStake(); !near(got, 36.10) {
		t.Fatalf("soros should compound the placed stake, got %v", got)
	}
}

func TestTargetFiresOnce(t *testing.T) {
	cfg := newTestConfig(config.PolicyFixed)
	cfg.TargetProfit = 15
	s := NewStakeSizer(cfg, nopLogger{})

	fired := 0
	var gotProfit, gotBalance float64
	s.OnTargetReached(func(profit, balance float64) {
		fired++
		gotProfit, gotBalance = profit, balance
	})

	for i := 0; i < 5; i++ {
		s.UpdateLastTrade(true)
	}
	if fired != 1 {
		t.Fatalf("target fired %d times, want 1", fired)
	}
	if !near(gotProfit, 18) || !near(gotBalance, 1018) {
		t.Fatalf("callback args profit=%v balance=%v", gotProfit, gotBalance)
	}

	s.ResetSession()
	s.UpdateLastTrade(true)
	s.UpdateLastTrade(true)
	if fired != 2 {
		t.Fatalf("target should re-arm after session reset, fired=%d", fired)
	}
}

func TestStopLossFiresOnce(t *testing.T) {
	cfg := newTestConfig(config.PolicyFixed)
	cfg.StopLoss = 25
	s := NewStakeSizer(cfg, nopLogger{})

	fired := 0
	s.OnStopLossReached(func(loss, balance float64) {
		fired++
		if !near(loss, 30) || !near(balance, 970) {
			t.Errorf("callback args loss=%v balance=%v", loss, balance)
		}
	})
	for i := 0; i < 4; i++ {
		s.UpdateLastTrade(false)
	}
	if fired != 1 {
		t.Fatalf("stop loss fired %d times, want 1", fired)
	}
}

func TestResetSessionKeepsBalance(t *testing.T) {
	s := NewStakeSizer(newTestConfig(config.PolicyMartingale), nopLogger{})
	s.UpdateLastTrade(false)
	s.ResetSession()
	snap := s.Snapshot()
	if snap.CurrentStake != 10 || snap.ConsecutiveLosses != 0 || snap.TotalLoss != 0 {
		t.Fatalf("session not reset: %+v", snap)
	}
	if snap.CurrentBalance != 990 {
		t.Fatalf("balance should survive reset, got %v", snap.CurrentBalance)
	}
}
