package order

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"hurst-trader/config"
	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
)

// OrderManager handles order placement and management
type OrderManager struct {
	Broker interfaces.Broker
	Config *config.Config
	Logger logging.LoggerInterface
}

// NewOrderManager creates a new order manager
func NewOrderManager(broker interfaces.Broker, cfg *config.Config, logger logging.LoggerInterface) *OrderManager {
	return &OrderManager{
		Broker: broker,
		Config: cfg,
		Logger: logger,
	}
}

// FormatStake formats a stake with the two decimals brokers accept.
func (om *OrderManager) FormatStake(stake float64) string {
	return strconv.FormatFloat(stake, 'f', 2, 64)
}

// BuildParams turns a direction and stake into a purchase request for the configured contract.
func (om *OrderManager) BuildParams(direction models.Signal, stake float64) (models.OrderParams, error) {
	if direction != models.Call && direction != models.Put {
		return models.OrderParams{}, fmt.Errorf("invalid direction: %q", direction)
	}
	if stake <= 0 {
		return models.OrderParams{}, fmt.Errorf("invalid stake: %s", om.FormatStake(stake))
	}
	if om.Config.DurationTicks < 1 {
		return models.OrderParams{}, fmt.Errorf("invalid duration: %d ticks", om.Config.DurationTicks)
	}
	return models.OrderParams{
		Symbol:        om.Config.Symbol,
		Direction:     direction,
		StakeAmount:   stake,
		DurationTicks: om.Config.DurationTicks,
		Currency:      om.Config.Currency,
	}, nil
}

// PlaceContract buys one contract. Placement is never retried here; a failure is returned to
// the caller, which may re-signal on a later tick.
func (om *OrderManager) PlaceContract(ctx context.Context, direction models.Signal, stake float64, strategy string) (*models.PendingContract, error) {
	params, err := om.BuildParams(direction, stake)
	if err != nil {
		return nil, err
	}

	om.Logger.Info("Placing %s %s stake=%s duration=%dt", params.Symbol, params.Direction, om.FormatStake(stake), params.DurationTicks)
	receipt, err := om.Broker.PlaceOrder(ctx, params)
	if err != nil {
		om.Logger.Error("Order placement failed: %v", err)
		return nil, fmt.Errorf("place %s order: %w", direction, err)
	}
	if receipt.ContractID == "" {
		return nil, &models.BrokerError{Op: "buy", Message: "empty contract id in receipt"}
	}

	placedAt := receipt.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}
	om.Logger.Info("Contract %s opened: buy=%.2f payout=%.2f", receipt.ContractID, receipt.BuyPrice, receipt.Payout)
	return &models.PendingContract{
		ContractID:  receipt.ContractID,
		Symbol:      params.Symbol,
		Direction:   direction,
		Strategy:    strategy,
		StakeAmount: stake,
		PlacedAt:    placedAt,
	}, nil
}
