package exchange

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bartrader/internal/config"
)

// AlpacaBroker отправляет рыночные заявки через Trading API Alpaca
type AlpacaBroker struct {
	client *alpaca.Client
}

// NewAlpacaBroker создает брокера. По умолчанию используется paper-счет.
func NewAlpacaBroker(cfg config.AlpacaConfig) *AlpacaBroker {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.TradingURL,
	})

	return &AlpacaBroker{client: client}
}

// PositionQty возвращает размер открытой позиции; ok == false, если позиции нет
func (b *AlpacaBroker) PositionQty(symbol string) (decimal.Decimal, bool, error) {
	position, err := b.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("ошибка получения позиции %s: %w", symbol, err)
	}

	if position.Qty.IsZero() {
		return decimal.Zero, false, nil
	}
	return position.Qty, true, nil
}

// Submit отправляет дневную рыночную заявку и возвращает ее идентификатор
func (b *AlpacaBroker) Submit(symbol, side string, qty decimal.Decimal) (string, error) {
	order, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        alpaca.Side(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return "", fmt.Errorf("ошибка отправки заявки %s %s %s: %w", side, qty, symbol, err)
	}

	return order.ID, nil
}
