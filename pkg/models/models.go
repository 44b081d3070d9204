package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// RawBar представляет бар в том виде, в каком его отдает провайдер данных
type RawBar struct {
	T string  `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// Payload - сырые бары, сгруппированные по символу
type Payload map[string][]RawBar

// Session - фаза торгового дня
type Session string

const (
	SessionPreMarket  Session = "pre-market"
	SessionRegular    Session = "regular"
	SessionAfterHours Session = "after-hours"
	SessionClosed     Session = "closed"
)

// Direction - направление следующего бара относительно текущего закрытия
type Direction int

const (
	Down Direction = -1
	Flat Direction = 0
	Up   Direction = 1
)

// String возвращает текстовое представление направления
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "flat"
	}
}

// Row представляет строку таблицы баров.
// Индикаторы и метка отсутствуют (Valid == false), пока их нельзя посчитать.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Open      float64   `json:"open"`
	Volume    float64   `json:"volume"`
	Session   Session   `json:"session"`

	ATR     null.Float `json:"atr"`
	RSI     null.Float `json:"rsi"`
	MAShort null.Float `json:"ma_short"`
	MAMid   null.Float `json:"ma_mid"`
	MALong  null.Float `json:"ma_long"`

	Direction null.Int `json:"direction"`
}

// StreamBar представляет бар, пришедший из потока в реальном времени
type StreamBar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Prediction представляет результат одного цикла торговли
type Prediction struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Action    string    `json:"action"`
	Model     string    `json:"model"`
	Accuracy  float64   `json:"accuracy"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	Close     float64   `json:"close"`
}
