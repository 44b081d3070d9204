package ml

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/pkg/models"
)

// Accuracy - доля совпавших предсказаний
func Accuracy(yTrue, yPred []models.Direction) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// ClassMetrics - метрики одного класса
type ClassMetrics struct {
	Label     models.Direction `json:"label"`
	Precision float64          `json:"precision"`
	Recall    float64          `json:"recall"`
	F1        float64          `json:"f1"`
	Support   int              `json:"support"`
}

// Report - отчет о качестве классификации на тестовой выборке
type Report struct {
	Model       string         `json:"model"`
	Accuracy    float64        `json:"accuracy"`
	Classes     []ClassMetrics `json:"classes"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	TrainRows   int            `json:"train_rows"`
	TestRows    int            `json:"test_rows"`
}

// NewReport считает accuracy, precision, recall и F1 по классам.
// Деление на ноль дает 0.
func NewReport(yTrue, yPred []models.Direction) Report {
	classes := classesOf(append(append([]models.Direction(nil), yTrue...), yPred...))
	r := Report{Accuracy: Accuracy(yTrue, yPred)}

	total := 0
	for _, c := range classes {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yTrue[i] == c && yPred[i] == c:
				tp++
			case yTrue[i] != c && yPred[i] == c:
				fp++
			case yTrue[i] == c && yPred[i] != c:
				fn++
			}
		}

		m := ClassMetrics{
			Label:     c,
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   tp + fn,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
		total += m.Support
	}

	for _, m := range r.Classes {
		n := float64(len(r.Classes))
		r.MacroAvg.Precision += m.Precision / n
		r.MacroAvg.Recall += m.Recall / n
		r.MacroAvg.F1 += m.F1 / n
		if total > 0 {
			w := float64(m.Support) / float64(total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total

	return r
}

// Evaluate обучает классификатор на train и оценивает его на test
func Evaluate(c Classifier, train, test features.Dataset) (Report, error) {
	if err := c.Fit(train); err != nil {
		return Report{}, err
	}

	var report Report
	if test.Len() > 0 {
		pred, err := c.Predict(test.X)
		if err != nil {
			return Report{}, err
		}
		report = NewReport(test.Y, pred)
	}

	report.Model = c.Name()
	report.TrainRows = train.Len()
	report.TestRows = test.Len()
	return report, nil
}

// String форматирует отчет таблицей
func (r Report) String() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(w, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, m := range r.Classes {
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%d\t\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintln(w, "\t\t\t\t\t")
	fmt.Fprintf(w, "accuracy\t\t\t%.2f\t%d\t\n", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(w, "macro avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(w, "weighted avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	w.Flush()

	return buf.String()
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
