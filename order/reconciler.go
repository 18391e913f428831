package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
	"hurst-trader/position"
)

// State is the reconciler lifecycle.
type State string

const (
	StateIdle    State = "IDLE"
	StatePlaced  State = "PLACED"
	StateSettled State = "SETTLED"
)

// MaxAuthRetries bounds re-authorizations per contract.
const MaxAuthRetries = 2

// Stopper cancels a pending timer. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d; swapped out in tests.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// PollResult is the outcome of one watchdog poll, handed back to the owning loop.
type PollResult struct {
	ContractID  string
	Status      models.ContractStatus
	AuthRetries int
	Err         error
}

// Reconciler tracks the single in-flight contract from placement to settlement.
// It belongs to one dispatch loop and is not safe for concurrent use, except Poll,
// which only touches the broker.
type Reconciler struct {
	Broker interfaces.Broker
	Sizer  *position.StakeSizer
	Ledger interfaces.TradeLedger
	Logger logging.LoggerInterface

	SessionID string
	Timeout   time.Duration
	After     AfterFunc
	// OnSettlement runs after the sizer and ledger have seen the record.
	OnSettlement func(models.TradeRecord)

	state    State
	pending  *models.PendingContract
	watchdog Stopper
	onFire   func(contractID string)
}

// NewReconciler creates an idle reconciler whose watchdog waits timeout before polling.
func NewReconciler(broker interfaces.Broker, sizer *position.StakeSizer, ledger interfaces.TradeLedger, timeout time.Duration, logger logging.LoggerInterface) *Reconciler {
	return &Reconciler{
		Broker:  broker,
		Sizer:   sizer,
		Ledger:  ledger,
		Logger:  logger,
		Timeout: timeout,
		After:   realAfterFunc,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State { return r.state }

// Pending returns a copy of the in-flight contract, or nil.
func (r *Reconciler) Pending() *models.PendingContract {
	if r.pending == nil {
		return nil
	}
	p := *r.pending
	return &p
}

// CanPlace returns ErrPositionOpen unless the reconciler is idle.
func (r *Reconciler) CanPlace() error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: %s in state %s", models.ErrPositionOpen, r.pending.ContractID, r.state)
	}
	return nil
}

// Place buys through om only from IDLE and starts tracking the new contract.
// onWatchdog is called from the timer goroutine with the contract id; it must hand the id back
// to the owning loop rather than touch the reconciler directly.
func (r *Reconciler) Place(ctx context.Context, om *OrderManager, direction models.Signal, stake float64, strategy string, onWatchdog func(contractID string)) (*models.PendingContract, error) {
	if err := r.CanPlace(); err != nil {
		return nil, err
	}
	pending, err := om.PlaceContract(ctx, direction, stake, strategy)
	if err != nil {
		return nil, err
	}
	r.Track(pending, onWatchdog)
	return r.Pending(), nil
}

// Track moves IDLE -> PLACED for an already placed contract and arms the watchdog.
func (r *Reconciler) Track(pending *models.PendingContract, onWatchdog func(contractID string)) {
	r.stopWatchdog()
	r.pending = pending
	r.state = StatePlaced
	r.onFire = onWatchdog
	r.armWatchdog()
	r.Logger.Debug("Tracking contract %s (watchdog %s)", pending.ContractID, r.Timeout)
}

// Watching reports whether contractID is the pending contract.
func (r *Reconciler) Watching(contractID string) bool {
	return r.state == StatePlaced && r.pending != nil && r.pending.ContractID == contractID
}

// AuthBudget is how many re-authorizations the pending contract has left.
func (r *Reconciler) AuthBudget() int {
	if r.pending == nil {
		return 0
	}
	left := MaxAuthRetries - r.pending.AuthRetries
	if left < 0 {
		return 0
	}
	return left
}

// Settle finalizes the pending contract from a push or poll status. It returns false and does
// nothing for open statuses, unknown ids, or when no contract is pending.
func (r *Reconciler) Settle(status models.ContractStatus) (models.TradeRecord, bool) {
	if !status.Settled() {
		return models.TradeRecord{}, false
	}
	if !r.Watching(status.ContractID) {
		r.Logger.Debug("Ignoring settlement for %s (state %s)", status.ContractID, r.state)
		return models.TradeRecord{}, false
	}

	r.stopWatchdog()
	r.state = StateSettled
	p := r.pending
	isWin := status.Status == models.ContractWon

	stake := status.Stake
	if stake == 0 {
		stake = p.StakeAmount
	}
	profit := status.Profit
	if !isWin && profit == 0 {
		profit = -stake
	}
	r.Sizer.Settle(isWin, stake, profit)

	ts := status.SettledAt
	if ts.IsZero() {
		ts = time.Now()
	}
	record := models.TradeRecord{
		ID:           uuid.NewString(),
		SessionID:    r.SessionID,
		ContractID:   p.ContractID,
		Symbol:       p.Symbol,
		Direction:    p.Direction,
		Strategy:     p.Strategy,
		IsWin:        isWin,
		Stake:        stake,
		Profit:       profit,
		BalanceAfter: r.Sizer.CurrentBalance(),
		Timestamp:    ts,
	}
	if r.Ledger != nil {
		r.Ledger.PersistTrade(record)
	}
	r.Logger.Info("Contract %s settled %s: stake=%.2f profit=%.2f balance=%.2f",
		p.ContractID, status.Status, stake, profit, record.BalanceAfter)

	r.pending = nil
	r.onFire = nil
	r.state = StateIdle
	if r.OnSettlement != nil {
		r.OnSettlement(record)
	}
	return record, true
}

// Poll queries the contract, re-authorizing once per auth failure while budget lasts.
// It is safe to run off the owning loop.
func (r *Reconciler) Poll(ctx context.Context, contractID string, budget int) PollResult {
	res := PollResult{ContractID: contractID}
	for {
		status, err := r.Broker.PollContract(ctx, contractID)
		if err == nil {
			res.Status = status
			return res
		}
		if !models.IsAuthError(err) {
			res.Err = err
			return res
		}
		if res.AuthRetries >= budget {
			res.Err = fmt.Errorf("poll %s: %w", contractID, models.ErrAuthRetriesExhausted)
			return res
		}
		res.AuthRetries++
		r.Logger.Warning("Poll of %s needs authorization, re-authorizing (%d/%d)", contractID, res.AuthRetries, budget)
		if aerr := r.Broker.Authorize(ctx); aerr != nil {
			res.Err = fmt.Errorf("re-authorize for %s: %w", contractID, aerr)
			return res
		}
	}
}

// ApplyPoll folds a poll result back into the reconciler. Results for a contract that is no
// longer pending are discarded. The watchdog is re-armed whenever the contract stays open.
func (r *Reconciler) ApplyPoll(res PollResult) (models.TradeRecord, bool, error) {
	if !r.Watching(res.ContractID) {
		r.Logger.Debug("Discarding stale poll result for %s", res.ContractID)
		return models.TradeRecord{}, false, nil
	}
	r.pending.AuthRetries += res.AuthRetries

	if res.Err != nil {
		if errors.Is(res.Err, models.ErrAuthRetriesExhausted) {
			r.Logger.Error("Giving up this poll cycle for %s: %v", res.ContractID, res.Err)
		} else {
			r.Logger.Warning("Poll of %s failed: %v", res.ContractID, res.Err)
		}
		r.armWatchdog()
		return models.TradeRecord{}, false, res.Err
	}
	if !res.Status.Settled() {
		r.Logger.Debug("Contract %s still %s", res.ContractID, res.Status.Status)
		r.armWatchdog()
		return models.TradeRecord{}, false, nil
	}
	if res.Status.ContractID == "" {
		res.Status.ContractID = res.ContractID
	}
	rec, ok := r.Settle(res.Status)
	return rec, ok, nil
}

// Reconcile polls synchronously and applies the result.
func (r *Reconciler) Reconcile(ctx context.Context) (models.TradeRecord, bool, error) {
	if r.pending == nil || r.state != StatePlaced {
		return models.TradeRecord{}, false, models.ErrNoPendingContract
	}
	return r.ApplyPoll(r.Poll(ctx, r.pending.ContractID, r.AuthBudget()))
}

// Reset tears down the watchdog and forgets any pending contract.
func (r *Reconciler) Reset() {
	r.stopWatchdog()
	if r.pending != nil {
		r.Logger.Warning("Dropping pending contract %s on reset", r.pending.ContractID)
	}
	r.pending = nil
	r.onFire = nil
	r.state = StateIdle
}

func (r *Reconciler) armWatchdog() {
	r.stopWatchdog()
	if r.pending == nil || r.onFire == nil || r.Timeout <= 0 {
		return
	}
	id, fire := r.pending.ContractID, r.onFire
	r.watchdog = r.After(r.Timeout, func() { fire(id) })
}

func (r *Reconciler) stopWatchdog() {
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
}
