package market

import (
	"context"
	"time"

	"github.com/skalibog/bartrader/pkg/models"
)

// BarRequest описывает запрос исторических баров
type BarRequest struct {
	Symbol    string
	TimeFrame string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Source - адаптер провайдера рыночных данных.
// Реализации отдают бары в формате провайдера (поля t, o, h, l, c, v).
type Source interface {
	Bars(ctx context.Context, req BarRequest) (models.Payload, error)
	LatestBar(ctx context.Context, symbol string) (models.RawBar, error)
}
