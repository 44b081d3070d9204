package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/internal/pipeline"
	"github.com/skalibog/bartrader/internal/storage"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

// Runner выполняет торговые циклы строго последовательно
type Runner struct {
	pipeline *pipeline.Pipeline
	decider  *pipeline.Decider
	executor *Executor
	storage  storage.Storage
	config   config.TradingConfig
	now      func() time.Time
}

// NewRunner создает цикл торговли
func NewRunner(p *pipeline.Pipeline, d *pipeline.Decider, e *Executor, store storage.Storage, cfg config.TradingConfig) *Runner {
	return &Runner{
		pipeline: p,
		decider:  d,
		executor: e,
		storage:  store,
		config:   cfg,
		now:      time.Now,
	}
}

// Run повторяет цикл до отмены контекста. Время выполнения цикла
// вычитается из интервала; затянувшийся цикл сразу запускает следующий.
func (r *Runner) Run(ctx context.Context) error {
	interval := time.Duration(r.config.IntervalSeconds) * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		started := r.now()
		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Ошибка торгового цикла", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(nextDelay(interval, r.now().Sub(started))):
		}
	}
}

// Cycle выполняет одну итерацию: загрузка, решение, исполнение, сохранение
func (r *Runner) Cycle(ctx context.Context) (models.Prediction, error) {
	symbol := r.config.Symbol
	start, end := market.LookbackWindow(r.now(), r.config.LookbackDays)

	table, err := r.pipeline.Pull(ctx, market.BarRequest{
		Symbol:    symbol,
		TimeFrame: r.config.TimeFrame,
		Start:     start,
		End:       end,
		Limit:     r.config.Limit,
	})
	if err != nil {
		return models.Prediction{}, err
	}

	decision, err := r.decider.Decide(table)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("ошибка принятия решения %s: %w", symbol, err)
	}

	action, execErr := r.executor.Execute(symbol, decision.Direction)
	if execErr != nil {
		action = "error"
	}

	prediction := models.Prediction{
		Symbol:    symbol,
		Timestamp: decision.Row.Timestamp,
		Direction: decision.Direction,
		Action:    action,
		Model:     decision.Model,
		Accuracy:  decision.Report.Accuracy,
		TrainRows: decision.Report.TrainRows,
		TestRows:  decision.Report.TestRows,
		Close:     decision.Row.Close,
	}

	if err := r.storage.SaveBars(ctx, symbol, table.Rows); err != nil {
		logger.Warn("Ошибка сохранения баров", zap.String("symbol", symbol), zap.Error(err))
	}
	if err := r.storage.SavePrediction(ctx, prediction); err != nil {
		logger.Warn("Ошибка сохранения предсказания", zap.String("symbol", symbol), zap.Error(err))
	}

	logger.Info("Торговый цикл завершен",
		zap.String("symbol", symbol),
		zap.Time("bar", prediction.Timestamp),
		zap.String("direction", prediction.Direction.String()),
		zap.String("action", prediction.Action),
		zap.String("model", prediction.Model),
		zap.Float64("accuracy", prediction.Accuracy))

	if execErr != nil {
		return prediction, fmt.Errorf("ошибка исполнения %s: %w", symbol, execErr)
	}
	return prediction, nil
}

func nextDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}
