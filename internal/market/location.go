package market

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Eastern - часовой пояс бирж NYSE/NASDAQ
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("часовой пояс %s недоступен: %v", name, err))
	}
	return loc
}

// LoadLocation загружает часовой пояс по имени из конфигурации
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return Eastern, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("неизвестный часовой пояс %q: %w", name, err)
	}
	return loc, nil
}

// LookbackWindow возвращает окно запроса баров: от полуночи по восточному
// времени days дней назад до полуночи следующего дня.
func LookbackWindow(now time.Time, days int) (start, end time.Time) {
	et := now.In(Eastern)
	midnight := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, Eastern)
	return midnight.AddDate(0, 0, -days), midnight.AddDate(0, 0, 1)
}
