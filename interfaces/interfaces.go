package interfaces

import (
	"context"

	"hurst-trader/models"
)

// Broker is the transport the engine trades through.
type Broker interface {
	Authorize(ctx context.Context) error
	// SubscribeTicks yields one TickHistory event with count prices, then TickPrice events.
	// The channel closes when ctx is cancelled or the subscription drops.
	SubscribeTicks(ctx context.Context, symbol string, count int) (<-chan models.TickEvent, error)
	PlaceOrder(ctx context.Context, params models.OrderParams) (models.OrderReceipt, error)
	// PollContract may fail with models.ErrAuthRequired or a *models.BrokerError.
	PollContract(ctx context.Context, contractID string) (models.ContractStatus, error)
	// Settlements carries unsolicited settlement pushes.
	Settlements() <-chan models.ContractStatus
	Close() error
}

// TradeLedger persists settled trades. PersistTrade must not block the caller.
type TradeLedger interface {
	PersistTrade(record models.TradeRecord)
}

// Notifier delivers user-visible messages.
type Notifier interface {
	Notify(text string)
}
