package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BarFeed - источник живых баров, на который подписывается Hub
type BarFeed interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
	Connected() bool
	Symbols() []string
}

// Subscriber - одно WebSocket-подключение клиента
type Subscriber struct {
	ID     uuid.UUID
	symbol string
	conn   *websocket.Conn
	mu     sync.Mutex
}

// Send пишет сообщение в подключение; запись сериализуется
func (s *Subscriber) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub раздает живые бары подписчикам по символам.
// Доставка без гарантий: подписчик, запись в которого не удалась, удаляется.
type Hub struct {
	feed BarFeed

	mu      sync.RWMutex
	clients map[string]map[uuid.UUID]*Subscriber
}

// NewHub создает раздатчик баров
func NewHub(feed BarFeed) *Hub {
	return &Hub{
		feed:    feed,
		clients: make(map[string]map[uuid.UUID]*Subscriber),
	}
}

// Add регистрирует подключение; первый клиент символа подписывает поток
func (h *Hub) Add(symbol string, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{ID: uuid.New(), symbol: symbol, conn: conn}

	h.mu.Lock()
	group, ok := h.clients[symbol]
	if !ok {
		group = make(map[uuid.UUID]*Subscriber)
		h.clients[symbol] = group
	}
	group[sub.ID] = sub
	h.mu.Unlock()

	if !ok {
		if err := h.feed.Subscribe(symbol); err != nil {
			logger.Warn("Ошибка подписки на поток", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	logger.Debug("Клиент подключен", zap.String("symbol", symbol), zap.String("id", sub.ID.String()))
	return sub
}

// Remove удаляет подписчика и закрывает подключение. Уход последнего
// клиента символа отписывает поток.
func (h *Hub) Remove(sub *Subscriber) {
	h.mu.Lock()
	group := h.clients[sub.symbol]
	if _, ok := group[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(group, sub.ID)
	last := len(group) == 0
	if last {
		delete(h.clients, sub.symbol)
	}
	h.mu.Unlock()

	_ = sub.conn.Close()

	if last {
		if err := h.feed.Unsubscribe(sub.symbol); err != nil {
			logger.Warn("Ошибка отписки от потока", zap.String("symbol", sub.symbol), zap.Error(err))
		}
	}
	logger.Debug("Клиент отключен", zap.String("symbol", sub.symbol), zap.String("id", sub.ID.String()))
}

// Broadcast отправляет бар всем подписчикам его символа
func (h *Hub) Broadcast(bar models.StreamBar) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.clients[bar.Symbol]))
	for _, sub := range h.clients[bar.Symbol] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := barMessage{
		Type:      "bar",
		Symbol:    bar.Symbol,
		Timestamp: bar.Timestamp.UTC().Format(time.RFC3339),
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
	}
	for _, sub := range targets {
		if err := sub.Send(msg); err != nil {
			logger.Debug("Ошибка отправки клиенту", zap.String("id", sub.ID.String()), zap.Error(err))
			h.Remove(sub)
		}
	}
}

// Connections возвращает число активных подключений
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, group := range h.clients {
		n += len(group)
	}
	return n
}

// Close закрывает все подключения
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	for symbol, group := range h.clients {
		for _, sub := range group {
			err = multierr.Append(err, sub.conn.Close())
		}
		delete(h.clients, symbol)
	}
	return err
}

type barMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}
