package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/internal/pipeline"
	"github.com/skalibog/bartrader/internal/storage"
	"github.com/skalibog/bartrader/pkg/logger"
	"go.uber.org/zap"
)

const defaultPredictionsLimit = 20

// Server - HTTP и WebSocket интерфейс для графика на фронтенде
type Server struct {
	config    config.ServerConfig
	lookback  int
	pipeline  *pipeline.Pipeline
	source    market.Source
	storage   storage.Storage
	hub       *Hub
	anyOrigin bool
	origins   map[string]bool
	upgrader  websocket.Upgrader
	router    *gin.Engine
	now       func() time.Time
}

// New создает сервер. Исторические данные отдаются без фильтра основной сессии.
func New(cfg config.ServerConfig, lookbackDays int, p *pipeline.Pipeline, source market.Source, store storage.Storage, hub *Hub) *Server {
	s := &Server{
		config:   cfg,
		lookback: lookbackDays,
		pipeline: p.WithRegularHoursOnly(false),
		source:   source,
		storage:  store,
		hub:      hub,
		origins:  make(map[string]bool),
		now:      time.Now,
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			s.anyOrigin = true
		}
		s.origins[origin] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.allowedOrigin(r.Header.Get("Origin"))
		},
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), s.cors())
	router.GET("/", s.root)
	router.GET("/ws/candles/:symbol", s.candles)

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.GET("/symbols/:symbol/historical", s.historical)
	api.GET("/symbols/:symbol/latest", s.latest)
	api.GET("/symbols/:symbol/predictions", s.predictions)

	s.router = router
	return s
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Alpaca Trading Backend API", "status": "running"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"alpaca_connected":   s.hub.feed.Connected(),
		"active_connections": s.hub.Connections(),
		"subscribed_symbols": s.hub.feed.Symbols(),
	})
}

func (s *Server) historical(c *gin.Context) {
	symbol := symbolParam(c)
	timeframe := c.DefaultQuery("timeframe", "1Min")
	limit, ok := intQuery(c, "limit", s.config.HistoryLimit)
	if !ok {
		return
	}

	table, err := s.history(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"data":      table.Rows,
	})
}

func (s *Server) latest(c *gin.Context) {
	symbol := symbolParam(c)
	bar, err := s.source.LatestBar(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timestamp": bar.T,
		"open":      bar.O,
		"high":      bar.H,
		"low":       bar.L,
		"close":     bar.C,
		"volume":    bar.V,
	})
}

func (s *Server) predictions(c *gin.Context) {
	symbol := symbolParam(c)
	limit, ok := intQuery(c, "limit", defaultPredictionsLimit)
	if !ok {
		return
	}

	predictions, err := s.storage.GetPredictions(c.Request.Context(), symbol, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "data": predictions})
}

// candles отдает снимок истории и затем живые бары символа
func (s *Server) candles(c *gin.Context) {
	symbol := symbolParam(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Ошибка установки WebSocket", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	sub := s.hub.Add(symbol, conn)
	defer s.hub.Remove(sub)

	table, err := s.history(c.Request.Context(), symbol, "1Min", s.config.HistoryLimit)
	if err != nil {
		logger.Warn("Ошибка загрузки истории для WebSocket", zap.String("symbol", symbol), zap.Error(err))
		err = sub.Send(gin.H{"type": "error", "symbol": symbol, "message": err.Error()})
	} else {
		err = sub.Send(gin.H{"type": "historical", "symbol": symbol, "data": table.Rows})
	}
	if err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := simplejson.NewJson(data)
		if err != nil {
			logger.Debug("Некорректное сообщение клиента", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if msg.Get("action").MustString() == "ping" {
			if err := sub.Send(gin.H{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

// history загружает таблицу за окно lookback и оставляет последние limit строк
func (s *Server) history(ctx context.Context, symbol, timeframe string, limit int) (market.Table, error) {
	start, end := market.LookbackWindow(s.now(), s.lookback)
	table, err := s.pipeline.Pull(ctx, market.BarRequest{
		Symbol:    symbol,
		TimeFrame: timeframe,
		Start:     start,
		End:       end,
		Limit:     limit,
	})
	if err != nil {
		return market.Table{}, err
	}

	if len(table.Rows) > limit {
		table.Rows = table.Rows[len(table.Rows)-limit:]
	}
	return table, nil
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(c.Param("symbol"))
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный параметр " + name})
		return 0, false
	}
	return n, true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, market.ErrEmptyData) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
