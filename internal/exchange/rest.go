package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/models"
)

const (
	barsPath       = "/v2/stocks/bars"
	latestBarPath  = "/v2/stocks/{symbol}/bars/latest"
	maxPageLimit   = 10000
	requestTimeout = 30 * time.Second
)

// RestSource получает бары напрямую из REST API Alpaca в исходном формате
// провайдера (поля t, o, h, l, c, v), отсортированные по убыванию времени
type RestSource struct {
	client *resty.Client
	feed   string
}

type barsResponse struct {
	Bars          models.Payload `json:"bars"`
	NextPageToken *string        `json:"next_page_token"`
}

type latestBarResponse struct {
	Symbol string         `json:"symbol"`
	Bar    *models.RawBar `json:"bar"`
}

// NewRestSource создает REST-источник баров
func NewRestSource(cfg config.AlpacaConfig) *RestSource {
	client := resty.New().
		SetBaseURL(cfg.DataURL).
		SetTimeout(requestTimeout).
		SetHeader("APCA-API-KEY-ID", cfg.APIKey).
		SetHeader("APCA-API-SECRET-KEY", cfg.APISecret).
		SetHeader("Accept", "application/json")

	return &RestSource{client: client, feed: cfg.Feed}
}

// Bars запрашивает страницы баров, пока не наберется req.Limit или
// не закончатся страницы
func (s *RestSource) Bars(ctx context.Context, req market.BarRequest) (models.Payload, error) {
	var (
		bars  []models.RawBar
		token string
	)

	for {
		pageLimit := maxPageLimit
		if req.Limit > 0 && req.Limit-len(bars) < pageLimit {
			pageLimit = req.Limit - len(bars)
		}

		params := map[string]string{
			"symbols":   req.Symbol,
			"timeframe": TimeFrameName(req.TimeFrame),
			"start":     req.Start.UTC().Format(time.RFC3339),
			"end":       req.End.UTC().Format(time.RFC3339),
			"limit":     strconv.Itoa(pageLimit),
			"feed":      s.feed,
			"sort":      "desc",
		}
		if token != "" {
			params["page_token"] = token
		}

		var page barsResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&page).
			Get(barsPath)
		if err != nil {
			return nil, fmt.Errorf("ошибка запроса баров: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("ошибка запроса баров: статус %d: %s", resp.StatusCode(), resp.String())
		}

		bars = append(bars, page.Bars[req.Symbol]...)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		if req.Limit > 0 && len(bars) >= req.Limit {
			break
		}
		token = *page.NextPageToken
	}

	if req.Limit > 0 && len(bars) > req.Limit {
		bars = bars[:req.Limit]
	}

	return models.Payload{req.Symbol: bars}, nil
}

// LatestBar получает последний бар символа
func (s *RestSource) LatestBar(ctx context.Context, symbol string) (models.RawBar, error) {
	var out latestBarResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParam("feed", s.feed).
		SetResult(&out).
		Get(latestBarPath)
	if err != nil {
		return models.RawBar{}, fmt.Errorf("ошибка запроса последнего бара: %w", err)
	}
	if resp.IsError() {
		return models.RawBar{}, fmt.Errorf("ошибка запроса последнего бара: статус %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Bar == nil {
		return models.RawBar{}, &market.EmptyDataError{Symbol: symbol}
	}

	return *out.Bar, nil
}
