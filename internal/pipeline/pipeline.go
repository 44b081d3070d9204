package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bartrader/internal/analysis/labels"
	"github.com/skalibog/bartrader/internal/analysis/technical"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

// Pipeline превращает ответ провайдера в размеченную таблицу с индикаторами
type Pipeline struct {
	source      market.Source
	location    *time.Location
	regularOnly bool
	analyzer    *technical.Analyzer
}

// New создает конвейер подготовки данных
func New(source market.Source, cfg config.AnalysisConfig) (*Pipeline, error) {
	loc, err := market.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		source:      source,
		location:    loc,
		regularOnly: cfg.RegularHoursOnly,
		analyzer:    technical.NewAnalyzer(cfg.Technical),
	}, nil
}

// WithRegularHoursOnly возвращает копию конвейера с другим режимом фильтра
func (p *Pipeline) WithRegularHoursOnly(on bool) *Pipeline {
	cp := *p
	cp.regularOnly = on
	return &cp
}

// Pull запрашивает бары у провайдера и прогоняет их через конвейер
func (p *Pipeline) Pull(ctx context.Context, req market.BarRequest) (market.Table, error) {
	payload, err := p.source.Bars(ctx, req)
	if err != nil {
		return market.Table{}, fmt.Errorf("ошибка получения баров %s [%s, %s): %w",
			req.Symbol, req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339), err)
	}

	table, err := p.Process(payload)
	if err != nil {
		return market.Table{}, fmt.Errorf("ошибка обработки баров %s [%s, %s): %w",
			req.Symbol, req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339), err)
	}

	logger.Debug("Бары обработаны",
		zap.String("symbol", table.Symbol),
		zap.Int("rows", table.Len()),
		zap.Int("received", len(payload[req.Symbol])))

	return table, nil
}

// Process выполняет чистую часть конвейера: построение таблицы, фильтр
// основной сессии, индикаторы и разметку
func (p *Pipeline) Process(payload models.Payload) (market.Table, error) {
	table, err := market.Build(payload, p.location)
	if err != nil {
		return market.Table{}, err
	}

	if p.regularOnly {
		table = market.FilterRegular(table)
	}

	table = p.analyzer.Compute(table)
	return labels.Label(table), nil
}
