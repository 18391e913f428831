package engine

import (
	"context"

	"hurst-trader/models"
	"hurst-trader/order"
)

type eventKind int

const (
	evHistory eventKind = iota
	evTick
	evTicksClosed
	evSettlement
	evWatchdog
	evPoll
	evRestart
)

func (k eventKind) String() string {
	switch k {
	case evHistory:
		return "history"
	case evTick:
		return "tick"
	case evTicksClosed:
		return "ticks_closed"
	case evSettlement:
		return "settlement"
	case evWatchdog:
		return "watchdog"
	case evPoll:
		return "poll"
	case evRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// event is the single message type the dispatch loop consumes.
type event struct {
	kind       eventKind
	tick       models.TickEvent
	status     models.ContractStatus
	contractID string
	poll       order.PollResult
}

// post hands ev to the loop unless ctx ends first. Late events after a stop are dropped.
func (e *Engine) post(ctx context.Context, ev event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) forwardTicks(ctx context.Context, ticks <-chan models.TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ticks:
			if !ok {
				e.post(ctx, event{kind: evTicksClosed})
				return
			}
			kind := evTick
			if ev.Kind == models.TickHistory {
				kind = evHistory
			}
			if !e.post(ctx, event{kind: kind, tick: ev}) {
				return
			}
		}
	}
}

func (e *Engine) forwardSettlements(ctx context.Context) {
	ch := e.Broker.Settlements()
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			if !e.post(ctx, event{kind: evSettlement, status: st}) {
				return
			}
		}
	}
}
