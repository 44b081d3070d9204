package export

import (
	"github.com/skalibog/bartrader/internal/analysis/features"
)

// Record - строка обучающего набора для выгрузки (CSV/Parquet/JSON).
// Время хранится в миллисекундах Unix.
type Record struct {
	Timestamp int64   `json:"t" parquet:"t"`
	Close     float64 `json:"close" parquet:"close"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Open      float64 `json:"open" parquet:"open"`
	Volume    float64 `json:"volume" parquet:"volume"`
	ATR       float64 `json:"atr" parquet:"atr"`
	RSI       float64 `json:"rsi" parquet:"rsi"`
	MAShort   float64 `json:"ma_short" parquet:"ma_short"`
	MAMid     float64 `json:"ma_mid" parquet:"ma_mid"`
	MALong    float64 `json:"ma_long" parquet:"ma_long"`
	Direction int64   `json:"direction" parquet:"direction"`
}

// Records переводит обучающий набор в строки выгрузки
func Records(ds features.Dataset) []Record {
	out := make([]Record, 0, ds.Len())
	for i, x := range ds.X {
		out = append(out, Record{
			Timestamp: ds.Times[i].UnixMilli(),
			Close:     x[0],
			High:      x[1],
			Low:       x[2],
			Open:      x[3],
			Volume:    x[4],
			ATR:       x[5],
			RSI:       x[6],
			MAShort:   x[7],
			MAMid:     x[8],
			MALong:    x[9],
			Direction: int64(ds.Y[i]),
		})
	}
	return out
}

func (r Record) features() []float64 {
	return []float64{r.Close, r.High, r.Low, r.Open, r.Volume, r.ATR, r.RSI, r.MAShort, r.MAMid, r.MALong}
}
