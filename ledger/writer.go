package ledger

import (
	"context"
	"sync"

	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
)

var _ interfaces.TradeLedger = (*Writer)(nil)

// WriterStats counts what the writer has done so far.
type WriterStats struct {
	Inserts int64
	Errors  int64
	Dropped int64
}

// Writer drains trades into a Store on its own goroutine so PersistTrade never blocks
// the dispatch loop.
type Writer struct {
	store  Store
	logger logging.LoggerInterface
	input  chan models.TradeRecord

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stats   WriterStats
	stopped bool
}

// NewWriter buffers up to bufferSize trades in front of store.
func NewWriter(store Store, bufferSize int, logger logging.LoggerInterface) *Writer {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Writer{
		store:  store,
		logger: logger,
		input:  make(chan models.TradeRecord, bufferSize),
	}
}

// Start begins consuming trades.
func (w *Writer) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.consumeLoop()
	w.logger.Info("Trade ledger writer started (buffer %d)", cap(w.input))
}

// PersistTrade queues rec. When the buffer is full the trade is dropped and logged.
func (w *Writer) PersistTrade(rec models.TradeRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.stats.Dropped++
		w.logger.Warning("Ledger stopped, dropping trade %s", rec.ContractID)
		return
	}
	select {
	case w.input <- rec:
	default:
		w.stats.Dropped++
		w.logger.Error("Ledger buffer full, dropping trade %s (profit %.2f)", rec.ContractID, rec.Profit)
	}
}

// Stop drains what is queued, then closes the store.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.input)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("Trade ledger writer stopped")
	case <-ctx.Done():
		w.logger.Warning("Trade ledger writer stop timed out")
		if w.cancel != nil {
			w.cancel()
		}
	}
	return w.store.Close()
}

// Stats returns current counters.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()
	for rec := range w.input {
		w.write(rec)
	}
}

func (w *Writer) write(rec models.TradeRecord) {
	err := w.store.Insert(w.ctx, rec)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Errors++
		w.logger.Error("Failed to persist trade %s: %v", rec.ContractID, err)
		return
	}
	w.stats.Inserts++
	w.logger.Debug("Persisted trade %s", rec.ContractID)
}
