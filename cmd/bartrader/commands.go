package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/exchange"
	"github.com/skalibog/bartrader/internal/export"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/internal/pipeline"
	"github.com/skalibog/bartrader/internal/server"
	"github.com/skalibog/bartrader/internal/storage"
	"github.com/skalibog/bartrader/internal/trader"
	"github.com/skalibog/bartrader/internal/ui"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newSource(cfg config.AlpacaConfig) market.Source {
	if cfg.Source == "rest" {
		return exchange.NewRestSource(cfg)
	}
	return exchange.NewAlpacaSource(cfg)
}

// openStorage подключает InfluxDB, если хранилище включено, иначе fallback
func openStorage(ctx context.Context, cfg config.StorageConfig, fallback storage.Storage) (storage.Storage, error) {
	if !cfg.Enabled {
		return fallback, nil
	}
	store, err := storage.NewInfluxDBStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	return store, nil
}

func barRequest(cfg config.TradingConfig) market.BarRequest {
	start, end := market.LookbackWindow(time.Now(), cfg.LookbackDays)
	return market.BarRequest{
		Symbol:    cfg.Symbol,
		TimeFrame: cfg.TimeFrame,
		Start:     start,
		End:       end,
		Limit:     cfg.Limit,
	}
}

func runTrader(ctx context.Context, cfg *config.Config) error {
	p, err := pipeline.New(newSource(cfg.Alpaca), cfg.Analysis)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage, storage.NewMemory())
	if err != nil {
		return err
	}
	defer store.Close()

	var broker trader.Broker
	if cfg.Trading.Enabled {
		broker = exchange.NewAlpacaBroker(cfg.Alpaca)
	}

	logger.Info("Запуск торгового цикла",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("model", cfg.Model.Type),
		zap.Bool("trading", cfg.Trading.Enabled),
		zap.Int("interval_seconds", cfg.Trading.IntervalSeconds))

	runner := trader.NewRunner(p, pipeline.NewDecider(cfg.Model), trader.NewExecutor(broker, cfg.Trading), store, cfg.Trading)
	return runner.Run(ctx)
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	gin.SetMode(gin.ReleaseMode)

	source := newSource(cfg.Alpaca)
	p, err := pipeline.New(source, cfg.Analysis)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage, storage.Discard{})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	var hub *server.Hub
	stream := exchange.NewBarStream(cfg.Alpaca, func(b models.StreamBar) { hub.Broadcast(b) })
	hub = server.NewHub(stream)

	srv := server.New(cfg.Server, cfg.Trading.LookbackDays, p, source, store, hub)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stream.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP сервер запущен", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(httpServer.Shutdown(shutdownCtx), hub.Close())
	})

	return g.Wait()
}

func train(ctx context.Context, cfg *config.Config) error {
	p, err := pipeline.New(newSource(cfg.Alpaca), cfg.Analysis)
	if err != nil {
		return err
	}

	table, err := p.Pull(ctx, barRequest(cfg.Trading))
	if err != nil {
		return err
	}

	decision, err := pipeline.NewDecider(cfg.Model).Decide(table)
	if err != nil {
		return err
	}

	fmt.Println(ui.RenderDecision(cfg.Trading.Symbol, decision))
	return nil
}

func exportDataset(ctx context.Context, cfg *config.Config, format, dir string) error {
	saver, err := export.NewSaver(format)
	if err != nil {
		return err
	}

	p, err := pipeline.New(newSource(cfg.Alpaca), cfg.Analysis)
	if err != nil {
		return err
	}

	table, err := p.Pull(ctx, barRequest(cfg.Trading))
	if err != nil {
		return err
	}

	ds := features.PrepareTrainingSet(table)
	if ds.Len() == 0 {
		return fmt.Errorf("%w: нет строк для выгрузки %s", features.ErrNoFeatures, cfg.Trading.Symbol)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}
	path := export.FileName(dir, cfg.Trading.Symbol, saver)
	if err := saver.Save(export.Records(ds), path); err != nil {
		return fmt.Errorf("ошибка сохранения %s: %w", path, err)
	}

	logger.Info("Обучающий набор выгружен",
		zap.String("path", path),
		zap.Int("rows", ds.Len()))
	return nil
}
