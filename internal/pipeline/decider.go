package pipeline

import (
	"fmt"

	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/internal/analysis/strategy"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/internal/ml"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

// Decision - итог анализа одной таблицы
type Decision struct {
	Direction   models.Direction
	Row         models.Row
	Model       string
	Report      ml.Report
	Importances []ml.FeatureImportance
}

// Decider выбирает направление по таблице: обучает классификатор на
// размеченной истории или применяет правило RSI-MA
type Decider struct {
	config config.ModelConfig
	rule   *strategy.RSIMACrossover
}

// NewDecider создает модуль принятия решений
func NewDecider(cfg config.ModelConfig) *Decider {
	return &Decider{
		config: cfg,
		rule:   strategy.NewRSIMACrossover(),
	}
}

// Decide строит решение для последней полной строки таблицы
func (d *Decider) Decide(t market.Table) (Decision, error) {
	if d.config.Type == "rsi_ma" {
		signal, row := d.rule.Decide(t)
		return Decision{
			Direction: signal.Direction(),
			Row:       row,
			Model:     "rsi_ma",
		}, nil
	}

	clf, err := ml.New(d.config)
	if err != nil {
		return Decision{}, err
	}

	ds := features.PrepareTrainingSet(t)
	train, test, err := features.Split(ds, d.config.TestSize, d.config.Seed, d.config.Stratify)
	if err != nil {
		return Decision{}, err
	}
	if train.Len() == 0 {
		return Decision{}, fmt.Errorf("%w: %d размеченных строк", ml.ErrEmptyTrainingSet, ds.Len())
	}

	report, err := ml.Evaluate(clf, train, test)
	if err != nil {
		return Decision{}, err
	}

	logger.Debug("Модель обучена",
		zap.String("model", report.Model),
		zap.Int("train", report.TrainRows),
		zap.Int("test", report.TestRows),
		zap.Float64("accuracy", report.Accuracy))

	direction, row, err := features.PredictOne(clf, t)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Direction: direction,
		Row:       row,
		Model:     clf.Name(),
		Report:    report,
	}
	if forest, ok := clf.(*ml.RandomForest); ok {
		decision.Importances = forest.Importances()
	}
	return decision, nil
}
