package exchange

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/jpillora/backoff"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

// barClient - часть клиента потока Alpaca, используемая BarStream
type barClient interface {
	Connect(ctx context.Context) error
	Terminated() <-chan error
	SubscribeToBars(handler func(stream.Bar), symbols ...string) error
	UnsubscribeFromBars(symbols ...string) error
}

type clientFactory func(handler func(stream.Bar), symbols []string) barClient

// BarStream держит подключение к потоку баров Alpaca и переподключается
// с экспоненциальной задержкой. После переподключения подписки
// восстанавливаются.
type BarStream struct {
	newClient clientFactory
	handler   func(models.StreamBar)
	backoff   *backoff.Backoff

	mu        sync.Mutex
	client    barClient
	connected bool
	symbols   map[string]bool
}

// NewBarStream создает поток баров; handler вызывается для каждого бара
func NewBarStream(cfg config.AlpacaConfig, handler func(models.StreamBar)) *BarStream {
	feed := marketdata.Feed(cfg.Feed)
	factory := func(h func(stream.Bar), symbols []string) barClient {
		return stream.NewStocksClient(feed,
			stream.WithCredentials(cfg.APIKey, cfg.APISecret),
			stream.WithBars(h, symbols...),
		)
	}
	return newBarStream(factory, handler)
}

func newBarStream(factory clientFactory, handler func(models.StreamBar)) *BarStream {
	return &BarStream{
		newClient: factory,
		handler:   handler,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    time.Minute,
			Factor: 2,
			Jitter: true,
		},
		symbols: make(map[string]bool),
	}
}

// Run поддерживает подключение до отмены контекста
func (s *BarStream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := s.backoff.Duration()
		logger.Warn("Поток баров отключен, переподключение",
			zap.Error(err),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session выполняет одно подключение и ждет его завершения
func (s *BarStream) session(ctx context.Context) error {
	snapshot := s.Symbols()
	client := s.newClient(s.onBar, snapshot)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.client = client
	s.connected = true
	// подписки, добавленные во время подключения
	pending := missing(s.symbolList(), snapshot)
	s.mu.Unlock()
	if len(pending) > 0 {
		if err := client.SubscribeToBars(s.onBar, pending...); err != nil {
			logger.Warn("Ошибка восстановления подписок", zap.Error(err))
		}
	}

	s.backoff.Reset()
	logger.Info("Поток баров подключен", zap.Strings("symbols", s.Symbols()))

	defer func() {
		s.mu.Lock()
		s.client = nil
		s.connected = false
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		if err == nil {
			err = errors.New("поток завершен")
		}
		return err
	}
}

func (s *BarStream) onBar(b stream.Bar) {
	if s.handler == nil {
		return
	}
	s.handler(models.StreamBar{
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    float64(b.Volume),
	})
}

// Subscribe добавляет символ. Без подключения подписка будет выполнена
// при следующем подключении.
func (s *BarStream) Subscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.symbols[symbol] {
		return nil
	}
	s.symbols[symbol] = true

	if s.client != nil {
		return s.client.SubscribeToBars(s.onBar, symbol)
	}
	return nil
}

// Unsubscribe удаляет символ
func (s *BarStream) Unsubscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.symbols[symbol] {
		return nil
	}
	delete(s.symbols, symbol)

	if s.client != nil {
		return s.client.UnsubscribeFromBars(symbol)
	}
	return nil
}

// Connected сообщает, есть ли активное подключение
func (s *BarStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Symbols возвращает отсортированный список подписок
func (s *BarStream) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbolList()
}

func (s *BarStream) symbolList() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// missing возвращает элементы all, отсутствующие в have
func missing(all, have []string) []string {
	seen := make(map[string]bool, len(have))
	for _, s := range have {
		seen[s] = true
	}
	var out []string
	for _, s := range all {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out
}
