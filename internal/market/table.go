package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/skalibog/bartrader/pkg/models"
)

// Table - упорядоченная последовательность баров одного символа
type Table struct {
	Symbol string       `json:"symbol"`
	Rows   []models.Row `json:"rows"`
}

// Len возвращает количество строк
func (t Table) Len() int {
	return len(t.Rows)
}

// Build превращает ответ провайдера в таблицу баров.
// Ответ должен содержать ровно один символ. Время переводится в loc,
// каждой строке присваивается сессия. Порядок строк совпадает с порядком
// во входных данных.
func Build(payload models.Payload, loc *time.Location) (Table, error) {
	if loc == nil {
		loc = Eastern
	}

	switch len(payload) {
	case 0:
		return Table{}, &EmptyDataError{}
	case 1:
	default:
		return Table{}, fmt.Errorf("ожидался один символ, получено %d", len(payload))
	}

	var (
		symbol string
		raw    []models.RawBar
	)
	for s, bars := range payload {
		symbol, raw = s, bars
	}

	if len(raw) == 0 {
		return Table{}, &EmptyDataError{Symbol: symbol}
	}

	rows := make([]models.Row, len(raw))
	for i, bar := range raw {
		ts, err := time.Parse(time.RFC3339Nano, bar.T)
		if err != nil {
			return Table{}, fmt.Errorf("ошибка разбора времени бара %s[%d] %q: %w", symbol, i, bar.T, err)
		}
		ts = ts.In(loc)

		rows[i] = models.Row{
			Timestamp: ts,
			Close:     bar.C,
			High:      bar.H,
			Low:       bar.L,
			Open:      bar.O,
			Volume:    bar.V,
			Session:   Classify(ts),
		}
	}

	return Table{Symbol: symbol, Rows: rows}, nil
}

// SortAscending возвращает копию таблицы, отсортированную по времени
func (t Table) SortAscending() Table {
	rows := make([]models.Row, len(t.Rows))
	copy(rows, t.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return Table{Symbol: t.Symbol, Rows: rows}
}

// IsAscending сообщает, упорядочены ли строки по возрастанию времени
func (t Table) IsAscending() bool {
	for i := 1; i < len(t.Rows); i++ {
		if t.Rows[i].Timestamp.Before(t.Rows[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// FilterRegular оставляет только строки основной сессии
func FilterRegular(t Table) Table {
	rows := make([]models.Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		if row.Session == models.SessionRegular {
			rows = append(rows, row)
		}
	}
	return Table{Symbol: t.Symbol, Rows: rows}
}

// Last возвращает последнюю строку таблицы
func (t Table) Last() (models.Row, bool) {
	if len(t.Rows) == 0 {
		return models.Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}
