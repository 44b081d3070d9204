package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/models"
)

// AlpacaSource получает бары через SDK Alpaca Market Data
type AlpacaSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// NewAlpacaSource создает источник исторических баров
func NewAlpacaSource(cfg config.AlpacaConfig) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
	})

	return &AlpacaSource{
		client: client,
		feed:   marketdata.Feed(cfg.Feed),
	}
}

// Bars получает бары за окно запроса и оставляет последние req.Limit
func (s *AlpacaSource) Bars(ctx context.Context, req market.BarRequest) (models.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err := s.client.GetBars(req.Symbol, marketdata.GetBarsRequest{
		TimeFrame: ParseTimeFrame(req.TimeFrame),
		Start:     req.Start,
		End:       req.End,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баров: %w", err)
	}

	if req.Limit > 0 && len(bars) > req.Limit {
		bars = bars[len(bars)-req.Limit:]
	}

	raw := make([]models.RawBar, len(bars))
	for i, b := range bars {
		raw[i] = fromMarketData(b)
	}

	return models.Payload{req.Symbol: raw}, nil
}

// LatestBar получает последний бар символа
func (s *AlpacaSource) LatestBar(ctx context.Context, symbol string) (models.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return models.RawBar{}, err
	}

	bar, err := s.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{Feed: s.feed})
	if err != nil {
		return models.RawBar{}, fmt.Errorf("ошибка получения последнего бара: %w", err)
	}
	if bar == nil {
		return models.RawBar{}, &market.EmptyDataError{Symbol: symbol}
	}

	return fromMarketData(*bar), nil
}

func fromMarketData(b marketdata.Bar) models.RawBar {
	return models.RawBar{
		T: b.Timestamp.UTC().Format(time.RFC3339Nano),
		O: b.Open,
		H: b.High,
		L: b.Low,
		C: b.Close,
		V: float64(b.Volume),
	}
}

// ParseTimeFrame переводит строку вида 1Min/5Min/15Min/1Hour/1Day во
// временной интервал SDK. Неизвестное значение - одна минута.
func ParseTimeFrame(s string) marketdata.TimeFrame {
	switch strings.ToLower(s) {
	case "5min":
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case "15min":
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case "1hour", "1h":
		return marketdata.OneHour
	case "1day", "1d":
		return marketdata.OneDay
	default:
		return marketdata.OneMin
	}
}

// TimeFrameName возвращает каноническое имя интервала
func TimeFrameName(s string) string {
	tf := ParseTimeFrame(s)
	switch {
	case tf == marketdata.OneHour:
		return "1Hour"
	case tf == marketdata.OneDay:
		return "1Day"
	default:
		return fmt.Sprintf("%dMin", tf.N)
	}
}
