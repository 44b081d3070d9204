package features

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/models"
)

// Size - длина вектора признаков
const Size = 10

// Names - имена признаков в порядке следования в Vector
var Names = [Size]string{
	"close", "high", "low", "open", "volume",
	"atr", "rsi", "ma_short", "ma_mid", "ma_long",
}

// ErrNoFeatures возвращается, когда в таблице нет ни одной строки
// с полностью рассчитанными признаками
var ErrNoFeatures = errors.New("нет строки с рассчитанными признаками")

// Vector - вектор признаков одной строки
type Vector [Size]float64

// Dataset - обучающая выборка: признаки, метки и время строк
type Dataset struct {
	X     []Vector
	Y     []models.Direction
	Times []time.Time
}

// Len возвращает количество примеров
func (d Dataset) Len() int {
	return len(d.X)
}

// Predictor - внешний классификатор, обученный на Vector
type Predictor interface {
	Predict(x []Vector) ([]models.Direction, error)
}

// VectorOf собирает вектор признаков строки.
// ok == false, если хотя бы один индикатор еще не рассчитан.
func VectorOf(row models.Row) (Vector, bool) {
	if !row.ATR.Valid || !row.RSI.Valid || !row.MAShort.Valid || !row.MAMid.Valid || !row.MALong.Valid {
		return Vector{}, false
	}
	return Vector{
		row.Close, row.High, row.Low, row.Open, row.Volume,
		row.ATR.Float64, row.RSI.Float64,
		row.MAShort.Float64, row.MAMid.Float64, row.MALong.Float64,
	}, true
}

// PrepareTrainingSet отбирает строки для обучения: все признаки и метка
// определены, метка не равна нулю. Порядок строк сохраняется.
func PrepareTrainingSet(t market.Table) Dataset {
	var ds Dataset
	for _, row := range t.Rows {
		if !row.Direction.Valid || row.Direction.Int64 == 0 {
			continue
		}
		vec, ok := VectorOf(row)
		if !ok {
			continue
		}
		ds.X = append(ds.X, vec)
		ds.Y = append(ds.Y, models.Direction(row.Direction.Int64))
		ds.Times = append(ds.Times, row.Timestamp)
	}
	return ds
}

// Split делит выборку на обучающую и тестовую. Перемешивание детерминировано
// seed; размер теста округляется вверх. При stratify доля теста выдерживается
// отдельно для каждого класса.
func Split(ds Dataset, testSize float64, seed int64, stratify bool) (train, test Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return Dataset{}, Dataset{}, fmt.Errorf("test_size должен быть в (0, 1), получено %v", testSize)
	}

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int

	if !stratify {
		perm := rng.Perm(ds.Len())
		nTest := testCount(ds.Len(), testSize)
		testIdx, trainIdx = perm[:nTest], perm[nTest:]
	} else {
		byClass := map[models.Direction][]int{}
		for i, y := range ds.Y {
			byClass[y] = append(byClass[y], i)
		}
		classes := make([]models.Direction, 0, len(byClass))
		for c := range byClass {
			classes = append(classes, c)
		}
		sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

		for _, c := range classes {
			idx := byClass[c]
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
			nTest := testCount(len(idx), testSize)
			testIdx = append(testIdx, idx[:nTest]...)
			trainIdx = append(trainIdx, idx[nTest:]...)
		}
	}

	return ds.subset(trainIdx), ds.subset(testIdx), nil
}

// testCount - размер тестовой части, округленный вверх
func testCount(n int, testSize float64) int {
	return int(math.Ceil(testSize*float64(n) - 1e-9))
}

func (d Dataset) subset(idx []int) Dataset {
	out := Dataset{
		X: make([]Vector, len(idx)),
		Y: make([]models.Direction, len(idx)),
	}
	if d.Times != nil {
		out.Times = make([]time.Time, len(idx))
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
		if d.Times != nil {
			out.Times[i] = d.Times[j]
		}
	}
	return out
}

// Latest возвращает самую свежую строку с рассчитанными признаками.
// Метка у нее может отсутствовать.
func Latest(t market.Table) (models.Row, Vector, bool) {
	for i := len(t.Rows) - 1; i >= 0; i-- {
		if vec, ok := VectorOf(t.Rows[i]); ok {
			return t.Rows[i], vec, true
		}
	}
	return models.Row{}, Vector{}, false
}

// PredictOne предсказывает направление для последней полной строки таблицы
func PredictOne(p Predictor, t market.Table) (models.Direction, models.Row, error) {
	row, vec, ok := Latest(t.SortAscending())
	if !ok {
		return models.Flat, models.Row{}, ErrNoFeatures
	}

	pred, err := p.Predict([]Vector{vec})
	if err != nil {
		return models.Flat, row, err
	}
	if len(pred) != 1 {
		return models.Flat, row, fmt.Errorf("классификатор вернул %d предсказаний вместо одного", len(pred))
	}
	return pred[0], row, nil
}

// Slice возвращает вектор в виде среза
func (v Vector) Slice() []float64 {
	return v[:]
}
