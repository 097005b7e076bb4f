package strategy

import (
	"math"
	"time"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

// Range закрытый диапазон значений индикатора
type Range struct {
	Min float64
	Max float64
}

// Contains проверяет попадание значения в диапазон
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Conditions условия стратегии. Nil означает, что условие не задано.
type Conditions struct {
	RSIRange            *Range
	ADXMin              *float64
	VolumeMultiplierMin *float64
	PriceChangeMinPct   *float64
	VolatilityMax       *float64
}

// Strategy именованный набор условий и шаблон сигнала
type Strategy struct {
	Name             string
	Conditions       Conditions
	TPSLRatio        float64
	BaseConfidence   float64
	ExpectedDuration time.Duration
}

// Market рыночные данные, с которыми сравниваются условия
type Market struct {
	Snapshot       models.IndicatorSnapshot
	PriceChangePct float64
	Volume24h      float64
}

// MatchRatio доля выполненных условий и их общее число
func (s Strategy) MatchRatio(m Market) (float64, int) {
	var matched, total int
	check := func(ok bool) {
		total++
		if ok {
			matched++
		}
	}

	c := s.Conditions
	snap := m.Snapshot
	if c.RSIRange != nil {
		check(c.RSIRange.Contains(snap.RSI))
	}
	if c.ADXMin != nil {
		check(snap.ADX >= *c.ADXMin)
	}
	if c.VolumeMultiplierMin != nil {
		check(snap.VolumeRatio >= *c.VolumeMultiplierMin)
	}
	if c.PriceChangeMinPct != nil {
		check(math.Abs(m.PriceChangePct) >= *c.PriceChangeMinPct)
	}
	if c.VolatilityMax != nil {
		check(snap.Volatility <= *c.VolatilityMax)
	}

	if total == 0 {
		return 0, 0
	}
	return float64(matched) / float64(total), total
}

// Matches стратегия без условий никогда не выбирается
func (s Strategy) Matches(m Market, threshold float64) bool {
	ratio, total := s.MatchRatio(m)
	return total > 0 && ratio >= threshold
}

// Select возвращает первую подходящую стратегию в порядке приоритета
func Select(strategies []Strategy, m Market, threshold float64) (Strategy, bool) {
	for _, s := range strategies {
		if s.Matches(m, threshold) {
			return s, true
		}
	}
	return Strategy{}, false
}

func ptr(v float64) *float64 { return &v }

// DefaultStrategies стандартный набор стратегий, от более специфичной к общей
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "BREAKOUT",
			Conditions: Conditions{
				RSIRange:            &Range{Min: 60, Max: 80},
				ADXMin:              ptr(25),
				VolumeMultiplierMin: ptr(1.5),
				PriceChangeMinPct:   ptr(3),
			},
			TPSLRatio:        2.5,
			BaseConfidence:   75,
			ExpectedDuration: 60 * time.Minute,
		},
		{
			Name: "REVERSAL",
			Conditions: Conditions{
				RSIRange:      &Range{Min: 70, Max: 100},
				ADXMin:        ptr(30),
				VolatilityMax: ptr(0.05),
			},
			TPSLRatio:        3.0,
			BaseConfidence:   80,
			ExpectedDuration: 240 * time.Minute,
		},
		{
			Name: "TREND",
			Conditions: Conditions{
				RSIRange:          &Range{Min: 45, Max: 70},
				ADXMin:            ptr(20),
				PriceChangeMinPct: ptr(1),
			},
			TPSLRatio:        2.0,
			BaseConfidence:   70,
			ExpectedDuration: 480 * time.Minute,
		},
		{
			Name: "MOMENTUM",
			Conditions: Conditions{
				RSIRange:            &Range{Min: 55, Max: 75},
				VolumeMultiplierMin: ptr(2.0),
				PriceChangeMinPct:   ptr(2),
			},
			TPSLRatio:        2.2,
			BaseConfidence:   72,
			ExpectedDuration: 120 * time.Minute,
		},
	}
}

// FromConfig собирает стратегии из конфигурации. Пустой список дает стандартный набор.
func FromConfig(list []config.StrategyConfig) []Strategy {
	if len(list) == 0 {
		return DefaultStrategies()
	}

	out := make([]Strategy, 0, len(list))
	for _, sc := range list {
		s := Strategy{
			Name:           sc.Name,
			TPSLRatio:      sc.TakeProfitToStopLoss,
			BaseConfidence: sc.BaseConfidence,
			Conditions: Conditions{
				ADXMin:              sc.ADXMin,
				VolumeMultiplierMin: sc.VolumeMultiplierMin,
				PriceChangeMinPct:   sc.PriceChangeMinPct,
				VolatilityMax:       sc.VolatilityMax,
			},
			ExpectedDuration: time.Duration(sc.ExpectedDurationMinutes) * time.Minute,
		}
		if sc.RSIMin != nil || sc.RSIMax != nil {
			r := Range{Min: 0, Max: 100}
			if sc.RSIMin != nil {
				r.Min = *sc.RSIMin
			}
			if sc.RSIMax != nil {
				r.Max = *sc.RSIMax
			}
			s.Conditions.RSIRange = &r
		}
		if s.ExpectedDuration == 0 {
			s.ExpectedDuration = 120 * time.Minute
		}
		out = append(out, s)
	}
	return out
}
