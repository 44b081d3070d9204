package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/skalibog/bartrader/pkg/models"
)

// Storage - хранилище баров и результатов торговых циклов
type Storage interface {
	SaveBars(ctx context.Context, symbol string, rows []models.Row) error
	SavePrediction(ctx context.Context, p models.Prediction) error
	GetPredictions(ctx context.Context, symbol string, limit int) ([]models.Prediction, error)
	Close() error
}

// Discard - хранилище, которое ничего не сохраняет
type Discard struct{}

func (Discard) SaveBars(context.Context, string, []models.Row) error    { return nil }
func (Discard) SavePrediction(context.Context, models.Prediction) error { return nil }
func (Discard) Close() error                                            { return nil }

func (Discard) GetPredictions(context.Context, string, int) ([]models.Prediction, error) {
	return nil, nil
}

// Memory хранит данные в памяти процесса
type Memory struct {
	mu          sync.RWMutex
	bars        map[string]map[int64]models.Row
	predictions map[string][]models.Prediction
}

// NewMemory создает хранилище в памяти
func NewMemory() *Memory {
	return &Memory{
		bars:        make(map[string]map[int64]models.Row),
		predictions: make(map[string][]models.Prediction),
	}
}

// SaveBars сохраняет строки; строка с тем же временем перезаписывается
func (m *Memory) SaveBars(_ context.Context, symbol string, rows []models.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series, ok := m.bars[symbol]
	if !ok {
		series = make(map[int64]models.Row)
		m.bars[symbol] = series
	}
	for _, row := range rows {
		series[row.Timestamp.UnixNano()] = row
	}
	return nil
}

// Bars возвращает сохраненные строки символа по возрастанию времени
func (m *Memory) Bars(symbol string) []models.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]models.Row, 0, len(m.bars[symbol]))
	for _, row := range m.bars[symbol] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows
}

func (m *Memory) SavePrediction(_ context.Context, p models.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[p.Symbol] = append(m.predictions[p.Symbol], p)
	return nil
}

// GetPredictions возвращает последние limit результатов, новые первыми
func (m *Memory) GetPredictions(_ context.Context, symbol string, limit int) ([]models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.predictions[symbol]
	out := make([]models.Prediction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
