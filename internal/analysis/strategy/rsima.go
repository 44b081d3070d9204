package strategy

import (
	"github.com/skalibog/bartrader/internal/market"
	"github.com/skalibog/bartrader/pkg/models"
)

// Signal - решение правила
type Signal string

const (
	Buy  Signal = "Buy"
	Sell Signal = "Sell"
	Hold Signal = "Hold"
)

// Direction переводит сигнал в направление для исполнителя
func (s Signal) Direction() models.Direction {
	switch s {
	case Buy:
		return models.Up
	case Sell:
		return models.Down
	default:
		return models.Flat
	}
}

// RSIMACrossover реализует правило пересечения уровней RSI с фильтром по
// скользящим средним
type RSIMACrossover struct {
	Oversold   float64
	Overbought float64
}

// NewRSIMACrossover создает правило с уровнями 30/70
func NewRSIMACrossover() *RSIMACrossover {
	return &RSIMACrossover{Oversold: 30, Overbought: 70}
}

// Decide оценивает две последние строки таблицы с индикаторами.
// Покупка: RSI выходит вверх из зоны перепроданности, цена выше обеих
// коротких средних. Продажа: RSI выходит вниз из зоны перекупленности,
// цена ниже хотя бы одной из них. В остальных случаях, включая
// нерассчитанные индикаторы, - Hold.
func (r *RSIMACrossover) Decide(t market.Table) (Signal, models.Row) {
	sorted := t.SortAscending()
	n := len(sorted.Rows)
	if n < 2 {
		if n == 1 {
			return Hold, sorted.Rows[0]
		}
		return Hold, models.Row{}
	}

	prev, curr := sorted.Rows[n-2], sorted.Rows[n-1]
	if !prev.RSI.Valid || !curr.RSI.Valid || !curr.MAShort.Valid || !curr.MAMid.Valid {
		return Hold, curr
	}

	rsiPrev, rsiCurr := prev.RSI.Float64, curr.RSI.Float64
	maShort, maMid := curr.MAShort.Float64, curr.MAMid.Float64

	switch {
	case rsiPrev < r.Oversold && rsiCurr >= r.Oversold && curr.Close > maShort && curr.Close > maMid:
		return Buy, curr
	case rsiPrev > r.Overbought && rsiCurr <= r.Overbought && (curr.Close < maShort || curr.Close < maMid):
		return Sell, curr
	default:
		return Hold, curr
	}
}
