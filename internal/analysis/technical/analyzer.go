package technical

import (
	"math"

	"github.com/guregu/null/v6"
	"github.com/markcheno/go-talib"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/internal/market"
)

// Analyzer рассчитывает технические индикаторы для таблицы баров
type Analyzer struct {
	config config.TechnicalConfig
}

// NewAnalyzer создает новый анализатор технических индикаторов
func NewAnalyzer(cfg config.TechnicalConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Compute возвращает копию таблицы, отсортированную по времени, с колонками
// ATR, RSI и тремя скользящими средними. Каждое значение зависит только от
// текущей и предыдущих строк. Пока окно индикатора не заполнено, значение
// отсутствует (null), а не равно нулю.
func (a *Analyzer) Compute(t market.Table) market.Table {
	// Вход не обязан быть отсортирован: провайдер отдает бары по убыванию
	out := t.SortAscending()
	n := len(out.Rows)
	if n == 0 {
		return out
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, row := range out.Rows {
		closes[i] = row.Close
		highs[i] = row.High
		lows[i] = row.Low
	}

	atr := a.calculateATR(highs, lows, closes)
	rsi := a.calculateRSI(closes)
	maShort := sma(closes, a.config.MAShort)
	maMid := sma(closes, a.config.MAMid)
	maLong := sma(closes, a.config.MALong)

	for i := range out.Rows {
		out.Rows[i].ATR = toNull(atr[i])
		out.Rows[i].RSI = toNull(rsi[i])
		out.Rows[i].MAShort = toNull(maShort[i])
		out.Rows[i].MAMid = toNull(maMid[i])
		out.Rows[i].MALong = toNull(maLong[i])
	}

	return out
}

// calculateATR рассчитывает ATR со сглаживанием Уайлдера.
// Истинный диапазон первого бара равен high-low, поэтому первое значение
// появляется на индексе period-1.
func (a *Analyzer) calculateATR(highs, lows, closes []float64) []float64 {
	tr := talib.TRange(highs, lows, closes)
	tr[0] = highs[0] - lows[0]
	return wilder(tr, a.config.ATRPeriod)
}

// calculateRSI рассчитывает RSI со сглаживанием Уайлдера.
// Изменение цены на первом баре считается нулевым.
func (a *Analyzer) calculateRSI(closes []float64) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := wilder(gains, a.config.RSIPeriod)
	avgLoss := wilder(losses, a.config.RSIPeriod)

	rsi := make([]float64, n)
	for i := range rsi {
		switch {
		case math.IsNaN(avgGain[i]):
			rsi[i] = math.NaN()
		case avgLoss[i] == 0 && avgGain[i] == 0:
			rsi[i] = 50
		case avgLoss[i] == 0:
			rsi[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			rsi[i] = 100 - 100/(1+rs)
		}
	}
	return rsi
}

// sma - простая скользящая средняя; до заполнения окна NaN
func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || len(values) < period {
		return out
	}

	avg := talib.Sma(values, period)
	copy(out[period-1:], avg[period-1:])
	return out
}

// wilder сглаживает ряд по Уайлдеру: затравка - среднее первых period
// значений, далее avg = (prev*(period-1) + x) / period.
func wilder(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || len(values) < period {
		return out
	}

	out[period-1] = talib.Sma(values[:period], period)[period-1]
	for i := period; i < len(values); i++ {
		out[i] = (out[i-1]*float64(period-1) + values[i]) / float64(period)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func toNull(v float64) null.Float {
	if math.IsNaN(v) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
