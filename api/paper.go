package api

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hurst-trader/config"
	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
)

var _ interfaces.Broker = (*PaperBroker)(nil)

// settled contracts stay pollable for this many ticks before they are dropped
const paperRetainTicks = 100

type paperContract struct {
	params    models.OrderParams
	entry     float64
	remaining int
	status    models.ContractStatus
	idle      int
}

// PaperBroker simulates the broker with a seeded geometric random walk. Contracts settle
// after their duration in ticks: CALL wins when the exit price is above entry, PUT when below.
type PaperBroker struct {
	Config *config.Config
	Logger logging.LoggerInterface

	mu          sync.Mutex
	rng         *rand.Rand
	price       float64
	ticked      bool
	contracts   map[string]*paperContract
	settlements chan models.ContractStatus
}

// NewPaperBroker seeds the walk from PaperSeed, or from the clock when it is 0.
func NewPaperBroker(cfg *config.Config, logger logging.LoggerInterface) *PaperBroker {
	seed := cfg.PaperSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperBroker{
		Config:      cfg,
		Logger:      logger,
		rng:         rand.New(rand.NewSource(seed)),
		price:       cfg.PaperStartPrice,
		contracts:   make(map[string]*paperContract),
		settlements: make(chan models.ContractStatus, 16),
	}
}

func (b *PaperBroker) Authorize(context.Context) error { return nil }

func (b *PaperBroker) Settlements() <-chan models.ContractStatus { return b.settlements }

func (b *PaperBroker) Close() error { return nil }

// SubscribeTicks emits count simulated historical prices, then one tick every PaperTickMs.
func (b *PaperBroker) SubscribeTicks(ctx context.Context, symbol string, count int) (<-chan models.TickEvent, error) {
	ch := make(chan models.TickEvent, 64)
	history := make([]float64, 0, count)
	b.mu.Lock()
	for i := 0; i < count; i++ {
		history = append(history, b.walk())
	}
	b.ticked = count > 0
	b.mu.Unlock()

	interval := time.Duration(b.Config.PaperTickMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(ch)
		select {
		case ch <- models.TickEvent{Kind: models.TickHistory, Symbol: symbol, Prices: history, Time: time.Now()}:
		case <-ctx.Done():
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ev := b.Step(symbol)
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Step advances the walk by one tick and settles contracts whose duration has elapsed.
func (b *PaperBroker) Step(symbol string) models.TickEvent {
	b.mu.Lock()
	price := b.walk()
	b.ticked = true
	var settled []models.ContractStatus
	for id, c := range b.contracts {
		if c.status.Settled() {
			c.idle++
			if c.idle > paperRetainTicks {
				delete(b.contracts, id)
			}
			continue
		}
		c.remaining--
		if c.remaining > 0 {
			continue
		}
		c.status = b.settle(id, c, price)
		settled = append(settled, c.status)
	}
	b.mu.Unlock()

	for _, st := range settled {
		select {
		case b.settlements <- st:
		default:
			b.Logger.Warning("Paper settlement buffer full, %s must be polled", st.ContractID)
		}
	}
	return models.TickEvent{Kind: models.TickPrice, Symbol: symbol, Price: price, Time: time.Now()}
}

// walk must be called with mu held.
func (b *PaperBroker) walk() float64 {
	b.price *= math.Exp(b.Config.PaperVolatility * b.rng.NormFloat64())
	b.price = math.Round(b.price*10000) / 10000
	return b.price
}

// settle must be called with mu held.
func (b *PaperBroker) settle(id string, c *paperContract, exit float64) models.ContractStatus {
	won := (c.params.Direction == models.Call && exit > c.entry) ||
		(c.params.Direction == models.Put && exit < c.entry)
	stake := decimal.NewFromFloat(c.params.StakeAmount)
	st := models.ContractStatus{
		ContractID: id,
		Status:     models.ContractLost,
		Profit:     stake.Neg().InexactFloat64(),
		Stake:      c.params.StakeAmount,
		SettledAt:  time.Now(),
	}
	if won {
		st.Status = models.ContractWon
		st.Profit = stake.Mul(decimal.NewFromFloat(b.Config.ProfitPercent)).Div(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	b.Logger.Debug("Paper contract %s %s: entry=%.4f exit=%.4f profit=%.2f", id, st.Status, c.entry, exit, st.Profit)
	return st
}

// PlaceOrder opens a contract at the latest simulated price.
func (b *PaperBroker) PlaceOrder(_ context.Context, p models.OrderParams) (models.OrderReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ticked {
		return models.OrderReceipt{}, &models.BrokerError{Op: "buy", Code: "MarketIsClosed", Message: "no price yet"}
	}
	if p.StakeAmount <= 0 || p.DurationTicks < 1 {
		return models.OrderReceipt{}, &models.BrokerError{Op: "buy", Code: "InvalidContractProposal", Message: "stake and duration must be positive"}
	}
	id := uuid.NewString()
	b.contracts[id] = &paperContract{
		params:    p,
		entry:     b.price,
		remaining: p.DurationTicks,
		status:    models.ContractStatus{ContractID: id, Status: models.ContractOpen, Stake: p.StakeAmount},
	}
	payout := p.StakeAmount * (1 + b.Config.ProfitPercent/100)
	return models.OrderReceipt{ContractID: id, BuyPrice: p.StakeAmount, Payout: math.Round(payout*100) / 100, PlacedAt: time.Now()}, nil
}

// PollContract reports the stored state of a simulated contract.
func (b *PaperBroker) PollContract(_ context.Context, contractID string) (models.ContractStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[contractID]
	if !ok {
		return models.ContractStatus{}, &models.BrokerError{Op: "poll", Code: "ContractNotFound", Message: contractID}
	}
	return c.status, nil
}
