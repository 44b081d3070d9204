package market

import (
	"time"

	"github.com/skalibog/bartrader/pkg/models"
)

// Границы сессий в минутах от полуночи по местному времени биржи
const (
	preMarketOpen = 4 * 60
	regularOpen   = 9*60 + 30
	regularClose  = 16 * 60
	afterHoursEnd = 20 * 60
)

// Classify определяет торговую сессию по времени суток t.
// Интервалы полуоткрытые, календарь (выходные, праздники) не учитывается:
// суббота 10:00 относится к основной сессии.
func Classify(t time.Time) models.Session {
	minute := t.Hour()*60 + t.Minute()

	switch {
	case minute >= preMarketOpen && minute < regularOpen:
		return models.SessionPreMarket
	case minute >= regularOpen && minute < regularClose:
		return models.SessionRegular
	case minute >= regularClose && minute < afterHoursEnd:
		return models.SessionAfterHours
	default:
		return models.SessionClosed
	}
}
