package ml

import (
	"errors"
	"fmt"
	"sort"

	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/pkg/models"
)

var (
	// ErrNotFitted возвращается при вызове Predict до Fit
	ErrNotFitted = errors.New("модель не обучена")
	// ErrEmptyTrainingSet возвращается при обучении на пустой выборке
	ErrEmptyTrainingSet = errors.New("пустая обучающая выборка")
)

// Classifier - обучаемый классификатор направления
type Classifier interface {
	features.Predictor
	Fit(ds features.Dataset) error
	Name() string
}

// New создает классификатор по конфигурации модели
func New(cfg config.ModelConfig) (Classifier, error) {
	switch cfg.Type {
	case "knn":
		return NewKNN(cfg.Neighbors), nil
	case "random_forest":
		return NewRandomForest(ForestParams{
			Trees:    cfg.Trees,
			MaxDepth: cfg.MaxDepth,
			Seed:     cfg.Seed,
		}), nil
	default:
		return nil, fmt.Errorf("неизвестный тип модели: %s", cfg.Type)
	}
}

// classesOf возвращает отсортированный список различных меток
func classesOf(y []models.Direction) []models.Direction {
	seen := map[models.Direction]bool{}
	var classes []models.Direction
	for _, c := range y {
		if !seen[c] {
			seen[c] = true
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// argmax возвращает индекс максимума; при равенстве - меньший индекс
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
