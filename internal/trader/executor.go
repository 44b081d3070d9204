package trader

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

// Действия исполнителя
const (
	ActionBuy         = "buy"
	ActionSell        = "sell"
	ActionHold        = "hold"
	ActionMaxPosition = "skip-max-position"
	ActionNoPosition  = "no-position"
	ActionDisabled    = "disabled"
)

// Broker - сторона брокера, нужная исполнителю
type Broker interface {
	PositionQty(symbol string) (decimal.Decimal, bool, error)
	Submit(symbol, side string, qty decimal.Decimal) (string, error)
}

// Executor переводит направление в заявку.
// +1 - покупка OrderQty, пока позиция меньше MaxPositionQty;
// -1 - продажа всей позиции, если она есть; 0 - ничего.
type Executor struct {
	broker      Broker
	enabled     bool
	orderQty    decimal.Decimal
	maxPosition decimal.Decimal
}

// NewExecutor создает исполнителя. При выключенной торговле broker может быть nil.
func NewExecutor(broker Broker, cfg config.TradingConfig) *Executor {
	return &Executor{
		broker:      broker,
		enabled:     cfg.Enabled,
		orderQty:    decimal.NewFromFloat(cfg.OrderQty),
		maxPosition: decimal.NewFromFloat(cfg.MaxPositionQty),
	}
}

// Execute исполняет направление и возвращает выполненное действие
func (e *Executor) Execute(symbol string, direction models.Direction) (string, error) {
	if direction == models.Flat {
		return ActionHold, nil
	}

	if !e.enabled {
		logger.Info("Торговля выключена, заявка не отправлена",
			zap.String("symbol", symbol),
			zap.String("direction", direction.String()))
		return ActionDisabled, nil
	}

	qty, ok, err := e.broker.PositionQty(symbol)
	if err != nil {
		return "", err
	}

	switch direction {
	case models.Up:
		if ok && qty.GreaterThanOrEqual(e.maxPosition) {
			logger.Info("Достигнут максимальный размер позиции",
				zap.String("symbol", symbol),
				zap.String("qty", qty.String()))
			return ActionMaxPosition, nil
		}
		return e.submit(symbol, ActionBuy, e.orderQty)
	case models.Down:
		if !ok {
			return ActionNoPosition, nil
		}
		return e.submit(symbol, ActionSell, qty.Abs())
	default:
		return "", fmt.Errorf("неизвестное направление %d", direction)
	}
}

func (e *Executor) submit(symbol, side string, qty decimal.Decimal) (string, error) {
	id, err := e.broker.Submit(symbol, side, qty)
	if err != nil {
		return "", err
	}

	logger.Info("Заявка отправлена",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("qty", qty.String()),
		zap.String("order_id", id))
	return side, nil
}
