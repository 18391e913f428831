package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"hurst-trader/config"
	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/metrics"
	"hurst-trader/models"
	"hurst-trader/order"
	"hurst-trader/position"
	"hurst-trader/strategy"
)

// ErrAlreadyRunning is returned by Run on an engine whose loop is active.
var ErrAlreadyRunning = errors.New("engine already running")

// Reconnector is implemented by brokers whose transport can be dialed again after a drop.
type Reconnector interface {
	Connect(ctx context.Context) error
}

// Engine runs the signal and risk loop for one instrument. All trading state is owned by
// the dispatch loop; other goroutines only post events to it or read Snapshot.
type Engine struct {
	Config     *config.Config
	Logger     logging.LoggerInterface
	Broker     interfaces.Broker
	Notifier   interfaces.Notifier
	Detector   strategy.Detector
	Sizer      *position.StakeSizer
	Orders     *order.OrderManager
	Reconciler *order.Reconciler

	OnSignal          func(models.DetectorResult)
	OnSettlement      func(models.TradeRecord)
	OnTargetReached   func(profit, balance float64)
	OnStopLossReached func(loss, balance float64)

	events     chan event
	window     *models.TickWindow
	forwarders sync.WaitGroup

	// loop-owned
	ticksSinceTrade int
	pollInFlight    bool

	mu          sync.RWMutex
	cancel      context.CancelFunc
	done        chan struct{}
	running     bool
	halted      bool
	ended       bool
	sessionID   string
	tickCount   int
	lastPrice   float64
	lastSignal  *models.DetectorResult
	lastTrade   *models.TradeRecord
	tradesTotal int
	reconState  order.State
	pending     *models.PendingContract
}

// New wires an engine for cfg.Symbol with the detector named by cfg.Strategy.
func New(cfg *config.Config, broker interfaces.Broker, ledger interfaces.TradeLedger, notifier interfaces.Notifier, logger logging.LoggerInterface) (*Engine, error) {
	detector, err := strategy.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.WindowSize < detector.MinTicks() {
		return nil, fmt.Errorf("window size %d is below the %d ticks %s needs", cfg.WindowSize, detector.MinTicks(), detector.Name())
	}

	sizer := position.NewStakeSizer(cfg, logger)
	e := &Engine{
		Config:     cfg,
		Logger:     logger,
		Broker:     broker,
		Notifier:   notifier,
		Detector:   detector,
		Sizer:      sizer,
		Orders:     order.NewOrderManager(broker, cfg, logger),
		Reconciler: order.NewReconciler(broker, sizer, ledger, cfg.WatchdogTimeout(), logger),
		events:     make(chan event, 256),
		window:     models.NewTickWindow(cfg.WindowSize),
		sessionID:  uuid.NewString(),
		reconState: order.StateIdle,
	}
	e.Reconciler.SessionID = e.sessionID
	e.Reconciler.OnSettlement = e.afterSettlement
	sizer.OnTargetReached(e.targetReached)
	sizer.OnStopLossReached(e.stopLossReached)
	metrics.SetMoney(sizer.CurrentBalance(), 0, sizer.CalculateNextStake())
	return e, nil
}

// Run subscribes to ticks and dispatches events until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	ended := e.ended
	done := e.done
	e.mu.Unlock()

	defer func() {
		cancel()
		// forwarders share the broker channels with the next run
		e.forwarders.Wait()
		e.teardown()
		close(done)
	}()

	// a stopped engine starts its next run in a fresh session
	if ended {
		e.restartSession()
	}
	if err := e.subscribe(ctx); err != nil {
		return err
	}
	e.forwarders.Add(1)
	go func() {
		defer e.forwarders.Done()
		e.forwardSettlements(ctx)
	}()

	e.Logger.Info("Engine started: symbol=%s strategy=%s policy=%s session=%s",
		e.Config.Symbol, e.Detector.Name(), e.Config.StakePolicy, e.SessionID())

	for {
		select {
		case <-ctx.Done():
			e.Logger.Info("Engine stopping: %v", ctx.Err())
			return nil
		case ev := <-e.events:
			if err := e.dispatch(ctx, ev); err != nil {
				return err
			}
			e.publishState()
		}
	}
}

// Stop cancels Run and waits for its teardown. The session ends with the run; Snapshot keeps
// its final counters until the next Run starts a new one.
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel, done := e.cancel, e.done
	e.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RestartSession resets session counters and threshold triggers and starts a new session id.
// The balance carries over.
func (e *Engine) RestartSession() {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		select {
		case e.events <- event{kind: evRestart}:
			return
		default:
			e.Logger.Warning("Event queue full, session restart dropped")
			return
		}
	}
	e.restartSession()
}

func (e *Engine) subscribe(ctx context.Context) error {
	ticks, err := e.Broker.SubscribeTicks(ctx, e.Config.Symbol, e.window.Cap())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", e.Config.Symbol, err)
	}
	e.forwarders.Add(1)
	go func() {
		defer e.forwarders.Done()
		e.forwardTicks(ctx, ticks)
	}()
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev event) error {
	switch ev.kind {
	case evHistory:
		e.window.Load(ev.tick.Prices)
		e.Logger.Info("Loaded %d historical ticks for %s", e.window.Len(), e.Config.Symbol)
		e.mu.Lock()
		e.lastPrice = e.window.Last()
		e.mu.Unlock()
	case evTick:
		e.handleTick(ctx, ev.tick.Price)
	case evTicksClosed:
		return e.resubscribe(ctx)
	case evSettlement:
		e.Reconciler.Settle(ev.status)
	case evWatchdog:
		e.handleWatchdog(ctx, ev.contractID)
	case evPoll:
		e.handlePoll(ev.poll)
	case evRestart:
		e.restartSession()
	}
	return nil
}

func (e *Engine) handleTick(ctx context.Context, price float64) {
	e.window.Push(price)
	e.ticksSinceTrade++
	e.mu.Lock()
	e.tickCount++
	e.lastPrice = price
	e.mu.Unlock()

	if e.Halted() || e.Reconciler.State() != order.StateIdle {
		return
	}

	res := e.Detector.Detect(e.window.Snapshot())
	if res.Time.IsZero() {
		res.Time = time.Now()
	}
	e.recordSignal(res)

	if !res.Actionable() {
		return
	}
	if res.Confidence < e.Config.MinConfidence {
		e.Logger.Debug("%s %s confidence %.2f below %.2f", res.Strategy, res.Signal, res.Confidence, e.Config.MinConfidence)
		return
	}
	if e.ticksSinceTrade <= e.Config.CooldownTicks {
		e.Logger.Debug("Cooling down: %d/%d ticks since last trade", e.ticksSinceTrade, e.Config.CooldownTicks)
		return
	}
	e.place(ctx, res)
}

func (e *Engine) recordSignal(res models.DetectorResult) {
	metrics.IncSignal(res.Strategy, string(res.Signal))
	if h, ok := res.Params["hurst"].(float64); ok {
		metrics.SetHurst(h)
	}
	e.mu.Lock()
	e.lastSignal = &res
	e.mu.Unlock()
	if res.Actionable() {
		e.Logger.Info("Signal %s %s conf=%.2f: %s", res.Strategy, res.Signal, res.Confidence, res.Rationale)
	}
	if e.OnSignal != nil {
		e.OnSignal(res)
	}
}

func (e *Engine) place(ctx context.Context, res models.DetectorResult) {
	stake := e.Sizer.CalculateNextStake()
	balance := e.Sizer.CurrentBalance()
	if stake <= 0 {
		e.Logger.Warning("Stake is zero, skipping %s", res.Signal)
		metrics.IncOrderError("balance")
		return
	}
	if stake > balance {
		e.Logger.Warning("Stake %.2f exceeds balance %.2f, skipping %s", stake, balance, res.Signal)
		metrics.IncOrderError("balance")
		return
	}

	fire := func(contractID string) {
		e.post(ctx, event{kind: evWatchdog, contractID: contractID})
	}
	reqCtx, cancel := context.WithTimeout(ctx, e.Config.RequestTimeoutDuration())
	defer cancel()
	pending, err := e.Reconciler.Place(reqCtx, e.Orders, res.Signal, stake, res.Strategy, fire)
	if err != nil {
		if errors.Is(err, models.ErrPositionOpen) {
			metrics.IncOrderError("position_open")
			e.Logger.Warning("Placement refused: %v", err)
			return
		}
		metrics.IncOrderError("broker")
		e.Logger.Error("Order failed for %s %s stake=%.2f: %v", e.Config.Symbol, res.Signal, stake, err)
		e.notify(fmt.Sprintf("Order failed: %s %s stake %.2f: %v", e.Config.Symbol, res.Signal, stake, err))
		return
	}

	e.ticksSinceTrade = 0
	metrics.IncOrder(e.Config.BrokerMode, string(pending.Direction))
	e.Logger.Info("Contract %s placed: %s %s stake=%.2f", pending.ContractID, pending.Symbol, pending.Direction, pending.StakeAmount)
}

func (e *Engine) handleWatchdog(ctx context.Context, contractID string) {
	if !e.Reconciler.Watching(contractID) {
		metrics.IncPoll("stale")
		e.Logger.Debug("Watchdog fired for %s, no longer pending", contractID)
		return
	}
	if e.pollInFlight {
		return
	}
	e.pollInFlight = true
	budget := e.Reconciler.AuthBudget()
	e.Logger.Warning("No settlement for %s within %s, polling", contractID, e.Reconciler.Timeout)
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, e.Config.RequestTimeoutDuration()*time.Duration(budget+1))
		defer cancel()
		res := e.Reconciler.Poll(reqCtx, contractID, budget)
		e.post(ctx, event{kind: evPoll, poll: res})
	}()
}

func (e *Engine) handlePoll(res order.PollResult) {
	e.pollInFlight = false
	watching := e.Reconciler.Watching(res.ContractID)
	_, settled, err := e.Reconciler.ApplyPoll(res)
	switch {
	case !watching:
		metrics.IncPoll("stale")
	case errors.Is(err, models.ErrAuthRetriesExhausted):
		metrics.IncPoll("auth_exhausted")
		e.notify(fmt.Sprintf("Authorization retries exhausted polling contract %s; waiting for settlement", res.ContractID))
	case err != nil:
		metrics.IncPoll("error")
	case settled:
		metrics.IncPoll("settled")
	default:
		metrics.IncPoll("open")
	}
}

// afterSettlement runs inside Reconciler.Settle once the sizer and ledger have the record.
func (e *Engine) afterSettlement(rec models.TradeRecord) {
	metrics.ObserveSettlement(rec.IsWin, e.Sizer.CurrentBalance(), e.Sizer.SessionProfit(), e.Sizer.CalculateNextStake())
	e.mu.Lock()
	e.lastTrade = &rec
	e.tradesTotal++
	e.mu.Unlock()
	if e.OnSettlement != nil {
		e.OnSettlement(rec)
	}
}

func (e *Engine) targetReached(profit, balance float64) {
	msg := fmt.Sprintf("Target profit reached on %s: profit %.2f, balance %.2f", e.Config.Symbol, profit, balance)
	if e.Config.StopOnTarget {
		e.setHalted(true)
		msg += "; trading halted"
	}
	e.notify(msg)
	if e.OnTargetReached != nil {
		e.OnTargetReached(profit, balance)
	}
}

func (e *Engine) stopLossReached(loss, balance float64) {
	e.setHalted(true)
	e.notify(fmt.Sprintf("Stop loss reached on %s: loss %.2f, balance %.2f; trading halted", e.Config.Symbol, loss, balance))
	if e.OnStopLossReached != nil {
		e.OnStopLossReached(loss, balance)
	}
}

func (e *Engine) resubscribe(ctx context.Context) error {
	delay := time.Duration(e.Config.ReconnectDelay) * time.Second
	if delay <= 0 {
		delay = time.Second
	}
	e.Logger.Warning("Tick stream for %s closed, resubscribing in %s", e.Config.Symbol, delay)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if rc, ok := e.Broker.(Reconnector); ok {
			if err := rc.Connect(ctx); err != nil {
				e.Logger.Error("Reconnect failed: %v", err)
				continue
			}
		}
		if err := e.subscribe(ctx); err != nil {
			e.Logger.Error("Resubscribe failed: %v", err)
			continue
		}
		if p := e.Reconciler.Pending(); p != nil {
			// Settlement may have been pushed while disconnected.
			e.handleWatchdog(ctx, p.ContractID)
		}
		return nil
	}
}

func (e *Engine) restartSession() {
	e.Sizer.ResetSession()
	id := uuid.NewString()
	e.Reconciler.SessionID = id
	e.ticksSinceTrade = 0
	e.mu.Lock()
	e.halted = false
	e.ended = false
	e.sessionID = id
	e.tradesTotal = 0
	e.lastTrade = nil
	e.mu.Unlock()
	metrics.SetMoney(e.Sizer.CurrentBalance(), 0, e.Sizer.CalculateNextStake())
	e.Logger.Info("Session restarted: %s", id)
}

func (e *Engine) teardown() {
	e.Reconciler.Reset()
	e.window.Clear()
	e.pollInFlight = false
	for drained := false; !drained; {
		select {
		case <-e.events:
		default:
			drained = true
		}
	}
	e.mu.Lock()
	e.running = false
	e.ended = true
	e.cancel = nil
	e.reconState = order.StateIdle
	e.pending = nil
	e.mu.Unlock()
	e.Logger.Info("Engine stopped for %s", e.Config.Symbol)
}

func (e *Engine) publishState() {
	state, pending := e.Reconciler.State(), e.Reconciler.Pending()
	e.mu.Lock()
	e.reconState = state
	e.pending = pending
	e.mu.Unlock()
}

func (e *Engine) notify(text string) {
	if e.Notifier != nil {
		e.Notifier.Notify(text)
	}
}

// SessionID returns the current session id.
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

// Halted reports whether a target or stop-loss has paused trading.
func (e *Engine) Halted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

func (e *Engine) setHalted(v bool) {
	e.mu.Lock()
	e.halted = v
	e.mu.Unlock()
}

// Snapshot returns the latest engine state for the status server.
func (e *Engine) Snapshot() models.EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := models.EngineSnapshot{
		Time:        time.Now(),
		Symbol:      e.Config.Symbol,
		SessionID:   e.sessionID,
		Running:     e.running,
		Strategy:    e.Detector.Name(),
		TickCount:   e.tickCount,
		LastPrice:   e.lastPrice,
		Reconciler:  string(e.reconState),
		Pending:     e.pending,
		LastSignal:  e.lastSignal,
		LastTrade:   e.lastTrade,
		Stake:       e.Sizer.Snapshot(),
		TradesTotal: e.tradesTotal,
	}
	return snap
}
