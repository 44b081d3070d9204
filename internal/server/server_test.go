package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/internal/pipeline"
	"github.com/skalibog/bartrader/internal/storage"
	"github.com/skalibog/bartrader/pkg/models"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	mu      sync.Mutex
	payload models.Payload
	got     market.BarRequest
}

func (f *fakeSource) Bars(_ context.Context, req market.BarRequest) (models.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	return models.Payload{req.Symbol: f.payload[req.Symbol]}, nil
}

func (f *fakeSource) LatestBar(_ context.Context, symbol string) (models.RawBar, error) {
	bars := f.payload[symbol]
	if len(bars) == 0 {
		return models.RawBar{}, &market.EmptyDataError{Symbol: symbol}
	}
	return bars[0], nil
}

func (f *fakeSource) request() market.BarRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type fakeFeed struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	connected    bool
}

func (f *fakeFeed) Subscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbol)
	return nil
}

func (f *fakeFeed) Unsubscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbol)
	return nil
}

func (f *fakeFeed) Connected() bool { return f.connected }

func (f *fakeFeed) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.subscribed...)
}

func (f *fakeFeed) unsubscribedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.unsubscribed...)
}

// barsDesc отдает n баров по убыванию времени, начиная с премаркета
func barsDesc(n int) []models.RawBar {
	first := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	bars := make([]models.RawBar, n)
	for i := 0; i < n; i++ {
		ts := first.Add(time.Duration(i) * time.Minute)
		bars[n-1-i] = models.RawBar{T: ts.Format(time.RFC3339), O: 100, H: 101, L: 99, C: 100 + float64(i%3), V: 500}
	}
	return bars
}

type fixture struct {
	source  *fakeSource
	feed    *fakeFeed
	hub     *Hub
	store   *storage.Memory
	server  *Server
	httpSrv *httptest.Server
}

func newFixture(t *testing.T, origins ...string) *fixture {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	f := &fixture{
		source: &fakeSource{payload: models.Payload{"TSLA": barsDesc(60)}},
		feed:   &fakeFeed{connected: true},
		store:  storage.NewMemory(),
	}
	p, err := pipeline.New(f.source, config.AnalysisConfig{
		Timezone:         "America/New_York",
		RegularHoursOnly: true,
		Technical:        config.TechnicalConfig{ATRPeriod: 20, RSIPeriod: 14, MAShort: 40, MAMid: 80, MALong: 160},
	})
	require.NoError(t, err)

	f.hub = NewHub(f.feed)
	f.server = New(config.ServerConfig{Addr: ":0", CORSOrigins: origins, HistoryLimit: 100}, 3, p, f.source, f.store, f.hub)
	f.server.now = func() time.Time { return time.Date(2024, 3, 6, 20, 0, 0, 0, time.UTC) }
	f.httpSrv = httptest.NewServer(f.server.Handler())
	t.Cleanup(f.httpSrv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(f.httpSrv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, f.get(t, "/", &body))
	require.Equal(t, "running", body["status"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.feed.Subscribe("AAPL"))

	var body struct {
		Status    string   `json:"status"`
		Connected bool     `json:"alpaca_connected"`
		Active    int      `json:"active_connections"`
		Symbols   []string `json:"subscribed_symbols"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/health", &body))
	require.Equal(t, "healthy", body.Status)
	require.True(t, body.Connected)
	require.Zero(t, body.Active)
	require.Equal(t, []string{"AAPL"}, body.Symbols)
}

type historicalBody struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Data      []models.Row `json:"data"`
}

func TestHistorical(t *testing.T) {
	f := newFixture(t)

	var body historicalBody
	require.Equal(t, http.StatusOK, f.get(t, "/api/symbols/tsla/historical?timeframe=5Min&limit=50", &body))

	req := f.source.request()
	require.Equal(t, "TSLA", req.Symbol)
	require.Equal(t, "5Min", req.TimeFrame)
	require.Equal(t, 50, req.Limit)
	start, end := market.LookbackWindow(f.server.now(), 3)
	require.True(t, start.Equal(req.Start))
	require.True(t, end.Equal(req.End))

	require.Equal(t, "TSLA", body.Symbol)
	require.Equal(t, "5Min", body.Timeframe)
	// история не фильтруется по сессии и обрезается до limit
	require.Len(t, body.Data, 50)
	require.Equal(t, models.SessionPreMarket, body.Data[0].Session)
	require.Equal(t, models.SessionRegular, body.Data[len(body.Data)-1].Session)
	for i := 1; i < len(body.Data); i++ {
		require.True(t, body.Data[i-1].Timestamp.Before(body.Data[i].Timestamp))
	}
	require.True(t, body.Data[len(body.Data)-1].RSI.Valid)
	require.False(t, body.Data[len(body.Data)-1].MALong.Valid)
}

func TestHistoricalDefaultsAndErrors(t *testing.T) {
	f := newFixture(t)

	var body historicalBody
	require.Equal(t, http.StatusOK, f.get(t, "/api/symbols/TSLA/historical", &body))
	require.Equal(t, "1Min", body.Timeframe)
	require.Equal(t, 100, f.source.request().Limit)
	require.Len(t, body.Data, 60)

	require.Equal(t, http.StatusBadRequest, f.get(t, "/api/symbols/TSLA/historical?limit=abc", nil))
	require.Equal(t, http.StatusBadRequest, f.get(t, "/api/symbols/TSLA/historical?limit=0", nil))

	var errBody map[string]string
	require.Equal(t, http.StatusNotFound, f.get(t, "/api/symbols/NONE/historical", &errBody))
	require.Contains(t, errBody["error"], "NONE")
}

func TestLatest(t *testing.T) {
	f := newFixture(t)

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, f.get(t, "/api/symbols/TSLA/latest", &body))
	require.Equal(t, "TSLA", body["symbol"])
	require.Equal(t, f.source.payload["TSLA"][0].T, body["timestamp"])
	require.Equal(t, 500.0, body["volume"])

	require.Equal(t, http.StatusNotFound, f.get(t, "/api/symbols/NONE/latest", nil))
}

func TestPredictions(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.SavePrediction(context.Background(), models.Prediction{
			Symbol: "TSLA", Timestamp: base.Add(time.Duration(i) * time.Minute), Action: "hold",
		}))
	}

	var body struct {
		Data []models.Prediction `json:"data"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/symbols/TSLA/predictions?limit=2", &body))
	require.Len(t, body.Data, 2)
	require.True(t, body.Data[0].Timestamp.Equal(base.Add(2*time.Minute)))
}

func TestCORS(t *testing.T) {
	f := newFixture(t, "http://localhost:3000")

	req, err := http.NewRequest(http.MethodOptions, f.httpSrv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, f.httpSrv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func wsURL(f *fixture, path string) string {
	return "ws" + strings.TrimPrefix(f.httpSrv.URL, "http") + path
}

func TestCandlesWebSocket(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f, "/ws/candles/tsla"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var historical struct {
		Type   string       `json:"type"`
		Symbol string       `json:"symbol"`
		Data   []models.Row `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&historical))
	require.Equal(t, "historical", historical.Type)
	require.Equal(t, "TSLA", historical.Symbol)
	require.Len(t, historical.Data, 60)

	require.Equal(t, []string{"TSLA"}, f.feed.Symbols())
	require.Equal(t, 1, f.hub.Connections())

	f.hub.Broadcast(models.StreamBar{Symbol: "AAPL", Close: 1})
	f.hub.Broadcast(models.StreamBar{
		Symbol:    "TSLA",
		Timestamp: time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC),
		Open:      10, High: 11, Low: 9, Close: 10.5, Volume: 42,
	})

	var bar map[string]interface{}
	require.NoError(t, conn.ReadJSON(&bar))
	require.Equal(t, "bar", bar["type"])
	require.Equal(t, "TSLA", bar["symbol"])
	require.Equal(t, "2024-03-06T15:00:00Z", bar["timestamp"])
	require.Equal(t, 10.5, bar["close"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return len(f.feed.unsubscribedSymbols()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"TSLA"}, f.feed.unsubscribedSymbols())
	require.Zero(t, f.hub.Connections())
}

// serverConns поднимает WebSocket-сервер и отдает серверные концы подключений
func serverConns(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func TestHubDropsFailedSubscriber(t *testing.T) {
	srv, conns := serverConns(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	feed := &fakeFeed{}
	hub := NewHub(feed)

	var subs []*Subscriber
	var clients []*websocket.Conn
	for i := 0; i < 2; i++ {
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer client.Close()
		clients = append(clients, client)
		subs = append(subs, hub.Add("TSLA", <-conns))
	}
	require.NotEqual(t, subs[0].ID, subs[1].ID)
	require.Equal(t, []string{"TSLA"}, feed.Symbols())
	require.Equal(t, 2, hub.Connections())

	// запись в закрытое подключение завершается ошибкой
	require.NoError(t, subs[0].conn.Close())
	hub.Broadcast(models.StreamBar{Symbol: "TSLA", Close: 1})

	require.Equal(t, 1, hub.Connections())
	require.Empty(t, feed.unsubscribedSymbols())

	require.NoError(t, clients[1].SetReadDeadline(time.Now().Add(5*time.Second)))
	var bar map[string]interface{}
	require.NoError(t, clients[1].ReadJSON(&bar))
	require.Equal(t, "bar", bar["type"])

	hub.Remove(subs[1])
	hub.Remove(subs[1])
	require.Zero(t, hub.Connections())
	require.Equal(t, []string{"TSLA"}, feed.unsubscribedSymbols())
}

func TestHubClose(t *testing.T) {
	srv, conns := serverConns(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hub := NewHub(&fakeFeed{})

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()
	hub.Add("TSLA", <-conns)

	require.NoError(t, hub.Close())
	require.Zero(t, hub.Connections())
}
