package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedInput возвращается для некорректных свечей
var ErrMalformedInput = errors.New("некорректные входные данные")

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Ticker представляет последнее состояние символа из потока тикеров
type Ticker struct {
	Symbol      string
	LastPrice   float64
	ChangePct   float64 // изменение за 24 часа, в процентах
	Volume      float64 // базовый объем за 24 часа
	QuoteVolume float64 // объем в котируемой валюте за 24 часа
	Time        time.Time
}

// AlertType тип алерта
type AlertType string

const (
	AlertPump AlertType = "PUMP"
	AlertDump AlertType = "DUMP"
)

// Alert представляет алерт о резком движении цены
type Alert struct {
	ID        string
	Symbol    string
	Type      AlertType
	Price     float64
	ChangePct float64
	Volume    float64
	Message   string
	Timestamp time.Time
}

// ValidateCandles проверяет, что свечи упорядочены по времени без дублей
// и не содержат NaN или неположительных цен.
func ValidateCandles(candles []Candle) error {
	for i, c := range candles {
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: свеча %d (%s) содержит цену %v", ErrMalformedInput, i, c.OpenTime.Format(time.RFC3339), v)
			}
		}
		if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
			return fmt.Errorf("%w: свеча %d содержит объем %v", ErrMalformedInput, i, c.Volume)
		}
		if c.High < c.Low {
			return fmt.Errorf("%w: свеча %d: high %v < low %v", ErrMalformedInput, i, c.High, c.Low)
		}
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: время свечей не возрастает на позиции %d", ErrMalformedInput, i)
		}
	}
	return nil
}
