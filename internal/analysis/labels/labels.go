package labels

import (
	"github.com/guregu/null/v6"
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/models"
)

// Label размечает строки направлением следующего бара:
// Direction[i] = sign(open[i+1] - close[i]).
// Таблица сортируется по времени. Последняя строка остается в таблице
// без метки, исключать ее должен потребитель.
func Label(t market.Table) market.Table {
	out := t.SortAscending()

	for i := range out.Rows {
		if i == len(out.Rows)-1 {
			out.Rows[i].Direction = null.Int{}
			continue
		}
		delta := out.Rows[i+1].Open - out.Rows[i].Close
		out.Rows[i].Direction = null.IntFrom(int64(Sign(delta)))
	}

	return out
}

// Sign возвращает направление изменения цены
func Sign(delta float64) models.Direction {
	switch {
	case delta > 0:
		return models.Up
	case delta < 0:
		return models.Down
	default:
		return models.Flat
	}
}
