package ml

import (
	"fmt"
	"sort"

	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// KNN - классификатор k ближайших соседей с евклидовой метрикой
type KNN struct {
	k       int
	x       [][]float64
	y       []models.Direction
	classes []models.Direction
}

// NewKNN создает классификатор с k соседями
func NewKNN(k int) *KNN {
	if k < 1 {
		k = 1
	}
	return &KNN{k: k}
}

func (m *KNN) Name() string {
	return fmt.Sprintf("knn(k=%d)", m.k)
}

// Fit запоминает обучающую выборку
func (m *KNN) Fit(ds features.Dataset) error {
	if ds.Len() == 0 {
		return ErrEmptyTrainingSet
	}

	m.x = make([][]float64, ds.Len())
	for i, v := range ds.X {
		m.x[i] = v.Slice()
	}
	m.y = append([]models.Direction(nil), ds.Y...)
	m.classes = classesOf(m.y)
	return nil
}

// Predict голосует большинством среди k ближайших соседей.
// При равенстве голосов выигрывает меньшая метка.
func (m *KNN) Predict(x []features.Vector) ([]models.Direction, error) {
	if len(m.x) == 0 {
		return nil, ErrNotFitted
	}

	k := m.k
	if k > len(m.x) {
		k = len(m.x)
	}

	type neighbour struct {
		dist float64
		idx  int
	}

	out := make([]models.Direction, len(x))
	neighbours := make([]neighbour, len(m.x))
	for i, v := range x {
		q := v.Slice()
		for j, p := range m.x {
			neighbours[j] = neighbour{dist: floats.Distance(q, p, 2), idx: j}
		}
		sort.SliceStable(neighbours, func(a, b int) bool {
			return neighbours[a].dist < neighbours[b].dist
		})

		votes := make([]float64, len(m.classes))
		for _, n := range neighbours[:k] {
			votes[m.classIndex(m.y[n.idx])]++
		}
		out[i] = m.classes[argmax(votes)]
	}
	return out, nil
}

func (m *KNN) classIndex(c models.Direction) int {
	for i, cl := range m.classes {
		if cl == c {
			return i
		}
	}
	return -1
}
