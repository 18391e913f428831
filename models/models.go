package models

import (
	"time"
)

// Signal is the direction a detector recommends.
type Signal string

const (
	Call Signal = "CALL"
	Put  Signal = "PUT"
	Hold Signal = "HOLD"
)

// Opposite returns the fading direction; HOLD stays HOLD.
func (s Signal) Opposite() Signal {
	switch s {
	case Call:
		return Put
	case Put:
		return Call
	default:
		return Hold
	}
}

// DetectorResult is produced fresh per evaluation and never merged with another detector's.
type DetectorResult struct {
	Strategy   string                 `json:"strategy"`
	Signal     Signal                 `json:"signal"`
	Confidence float64                `json:"confidence"` // 0.0 to 1.0
	Rationale  string                 `json:"rationale"`
	Params     map[string]interface{} `json:"params,omitempty"` // detector-specific metrics
	Time       time.Time              `json:"time"`
}

// Actionable reports whether the result asks for a trade.
func (r DetectorResult) Actionable() bool {
	return r.Signal == Call || r.Signal == Put
}

// TickKind distinguishes the one-off history snapshot from streaming ticks.
type TickKind string

const (
	TickHistory TickKind = "history"
	TickPrice   TickKind = "tick"
)

// TickEvent is one message from a tick subscription.
type TickEvent struct {
	Kind   TickKind  `json:"kind"`
	Symbol string    `json:"symbol"`
	Prices []float64 `json:"prices,omitempty"` // history only
	Price  float64   `json:"price,omitempty"`  // tick only
	Time   time.Time `json:"time"`
}

// OrderParams describes a contract purchase.
type OrderParams struct {
	Symbol        string  `json:"symbol"`
	Direction     Signal  `json:"direction"`
	StakeAmount   float64 `json:"stake"`
	DurationTicks int     `json:"duration_ticks"`
	Currency      string  `json:"currency"`
}

// OrderReceipt is returned by a successful placement.
type OrderReceipt struct {
	ContractID string    `json:"contract_id"`
	BuyPrice   float64   `json:"buy_price"`
	Payout     float64   `json:"payout"`
	PlacedAt   time.Time `json:"placed_at"`
}

// ContractState is the broker-side lifecycle of a contract.
type ContractState string

const (
	ContractOpen ContractState = "open"
	ContractWon  ContractState = "won"
	ContractLost ContractState = "lost"
)

// ContractStatus is a push update or the answer to a poll.
type ContractStatus struct {
	ContractID string        `json:"contract_id"`
	Status     ContractState `json:"status"`
	Profit     float64       `json:"profit"`
	Stake      float64       `json:"stake"`
	SettledAt  time.Time     `json:"settled_at"`
}

// Settled reports whether the contract has a final outcome.
func (s ContractStatus) Settled() bool {
	return s.Status == ContractWon || s.Status == ContractLost
}

// PendingContract is the single in-flight position.
type PendingContract struct {
	ContractID  string
	Symbol      string
	Direction   Signal
	Strategy    string
	StakeAmount float64
	PlacedAt    time.Time
	AuthRetries int
}

// TradeRecord is handed to the ledger once per settled contract.
type TradeRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	ContractID   string    `json:"contract_id"`
	Symbol       string    `json:"symbol"`
	Direction    Signal    `json:"direction"`
	Strategy     string    `json:"strategy"`
	IsWin        bool      `json:"is_win"`
	Stake        float64   `json:"stake"`
	Profit       float64   `json:"profit"`
	BalanceAfter float64   `json:"balance_after"`
	Timestamp    time.Time `json:"timestamp"`
}

// StakeSnapshot is a read-only copy of the sizer state for status reporting.
type StakeSnapshot struct {
	Policy            string  `json:"policy"`
	CurrentBalance    float64 `json:"currentBalance"`
	InitialStake      float64 `json:"initialStake"`
	CurrentStake      float64 `json:"currentStake"`
	ConsecutiveWins   int     `json:"consecutiveWins"`
	ConsecutiveLosses int     `json:"consecutiveLosses"`
	SorosLevel        int     `json:"sorosLevel"`
	MartingaleLevel   int     `json:"martingaleLevel"`
	TotalProfit       float64 `json:"totalProfit"`
	TotalLoss         float64 `json:"totalLoss"`
	WinRate           float64 `json:"winRate"`
}

// EngineSnapshot holds the latest engine state for the status endpoint.
type EngineSnapshot struct {
	Time        time.Time        `json:"time"`
	Symbol      string           `json:"symbol"`
	SessionID   string           `json:"sessionId"`
	Running     bool             `json:"running"`
	Strategy    string           `json:"strategy"`
	TickCount   int              `json:"tickCount"`
	LastPrice   float64          `json:"lastPrice"`
	Reconciler  string           `json:"reconciler"`
	Pending     *PendingContract `json:"pending,omitempty"`
	LastSignal  *DetectorResult  `json:"lastSignal,omitempty"`
	LastTrade   *TradeRecord     `json:"lastTrade,omitempty"`
	Stake       StakeSnapshot    `json:"stake"`
	TradesTotal int              `json:"tradesTotal"`
}
