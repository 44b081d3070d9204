package market

import (
	"errors"
	"fmt"
)

// ErrEmptyData возвращается, когда провайдер не отдал ни одного бара
var ErrEmptyData = errors.New("нет данных")

// EmptyDataError уточняет ErrEmptyData символом запроса
type EmptyDataError struct {
	Symbol string
}

func (e *EmptyDataError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: пустой ответ провайдера", ErrEmptyData)
	}
	return fmt.Sprintf("%s: нет баров для %s", ErrEmptyData, e.Symbol)
}

func (e *EmptyDataError) Unwrap() error {
	return ErrEmptyData
}
