package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ForestParams параметры случайного леса
type ForestParams struct {
	Trees    int
	MaxDepth int // 0 - без ограничения
	// MaxFeatures - число признаков, рассматриваемых в узле; 0 - sqrt(числа признаков)
	MaxFeatures int
	Seed        int64
}

// RandomForest - случайный лес деревьев решений (CART, критерий Джини)
type RandomForest struct {
	params      ForestParams
	classes     []models.Direction
	trees       []*node
	importances []float64
}

// node - узел дерева. Лист хранит доли классов.
type node struct {
	feature     int
	threshold   float64
	left, right *node
	proba       []float64
}

func (n *node) leaf() bool {
	return n.left == nil
}

// NewRandomForest создает случайный лес
func NewRandomForest(p ForestParams) *RandomForest {
	if p.Trees < 1 {
		p.Trees = 100
	}
	if p.MaxFeatures < 1 || p.MaxFeatures > features.Size {
		p.MaxFeatures = int(math.Sqrt(features.Size))
	}
	return &RandomForest{params: p}
}

func (f *RandomForest) Name() string {
	return fmt.Sprintf("random_forest(trees=%d)", f.params.Trees)
}

// Fit строит деревья на бутстрэп-выборках. Деревья строятся параллельно,
// каждое со своим зерном, поэтому результат зависит только от Seed.
func (f *RandomForest) Fit(ds features.Dataset) error {
	if ds.Len() == 0 {
		return ErrEmptyTrainingSet
	}

	f.classes = classesOf(ds.Y)
	labels := make([]int, ds.Len())
	for i, y := range ds.Y {
		for c, cl := range f.classes {
			if cl == y {
				labels[i] = c
			}
		}
	}

	master := rand.New(rand.NewSource(f.params.Seed))
	seeds := make([]int64, f.params.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*node, f.params.Trees)
	treeImportances := make([][]float64, f.params.Trees)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for t := range trees {
		t := t
		g.Go(func() error {
			b := &treeBuilder{
				x:           ds.X,
				y:           labels,
				nClasses:    len(f.classes),
				maxDepth:    f.params.MaxDepth,
				maxFeatures: f.params.MaxFeatures,
				rng:         rand.New(rand.NewSource(seeds[t])),
				importances: make([]float64, features.Size),
			}
			sample := make([]int, ds.Len())
			for i := range sample {
				sample[i] = b.rng.Intn(ds.Len())
			}
			trees[t] = b.build(sample, 0)
			treeImportances[t] = normalize(b.importances)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.importances = make([]float64, features.Size)
	for _, imp := range treeImportances {
		for i, v := range imp {
			f.importances[i] += v
		}
	}
	f.importances = normalize(f.importances)
	return nil
}

// Predict усредняет доли классов по деревьям и выбирает наибольшую
func (f *RandomForest) Predict(x []features.Vector) ([]models.Direction, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}

	out := make([]models.Direction, len(x))
	for i, v := range x {
		proba := make([]float64, len(f.classes))
		for _, tree := range f.trees {
			leaf := tree
			for !leaf.leaf() {
				if v[leaf.feature] <= leaf.threshold {
					leaf = leaf.left
				} else {
					leaf = leaf.right
				}
			}
			for c, p := range leaf.proba {
				proba[c] += p
			}
		}
		out[i] = f.classes[argmax(proba)]
	}
	return out, nil
}

// FeatureImportance - важность признака по уменьшению неоднородности
type FeatureImportance struct {
	Feature    string
	Importance float64
}

// Importances возвращает важности признаков по убыванию
func (f *RandomForest) Importances() []FeatureImportance {
	out := make([]FeatureImportance, 0, len(f.importances))
	for i, v := range f.importances {
		out = append(out, FeatureImportance{Feature: features.Names[i], Importance: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}

type treeBuilder struct {
	x           []features.Vector
	y           []int
	nClasses    int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	importances []float64
}

func (b *treeBuilder) counts(sample []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, i := range sample {
		counts[b.y[i]]++
	}
	return counts
}

func (b *treeBuilder) makeLeaf(counts []float64, n int) *node {
	proba := make([]float64, len(counts))
	for c, v := range counts {
		proba[c] = v / float64(n)
	}
	return &node{proba: proba}
}

func (b *treeBuilder) build(sample []int, depth int) *node {
	counts := b.counts(sample)
	impurity := gini(counts, float64(len(sample)))

	if impurity == 0 || len(sample) < 2 || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return b.makeLeaf(counts, len(sample))
	}

	split, ok := b.bestSplit(sample, impurity)
	if !ok {
		return b.makeLeaf(counts, len(sample))
	}

	var left, right []int
	for _, i := range sample {
		if b.x[i][split.feature] <= split.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importances[split.feature] += split.decrease

	return &node{
		feature:   split.feature,
		threshold: split.threshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

type split struct {
	feature   int
	threshold float64
	decrease  float64
}

// bestSplit перебирает случайное подмножество признаков. Если ни один из них
// не делит выборку, просматриваются остальные признаки.
func (b *treeBuilder) bestSplit(sample []int, impurity float64) (split, bool) {
	order := b.rng.Perm(features.Size)
	n := float64(len(sample))

	best := split{decrease: -1}
	sorted := make([]int, len(sample))

	for visited, feature := range order {
		if visited >= b.maxFeatures && best.decrease >= 0 {
			break
		}

		copy(sorted, sample)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][feature] < b.x[sorted[j]][feature]
		})

		left := make([]float64, b.nClasses)
		right := b.counts(sorted)
		for i := 0; i < len(sorted)-1; i++ {
			c := b.y[sorted[i]]
			left[c]++
			right[c]--

			cur, next := b.x[sorted[i]][feature], b.x[sorted[i+1]][feature]
			if cur == next {
				continue
			}

			nl := float64(i + 1)
			nr := n - nl
			decrease := n*impurity - nl*gini(left, nl) - nr*gini(right, nr)
			if decrease > best.decrease {
				best = split{feature: feature, threshold: (cur + next) / 2, decrease: decrease}
			}
		}
	}

	return best, best.decrease >= 0
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
