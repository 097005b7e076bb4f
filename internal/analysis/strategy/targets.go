package strategy

import (
	"math"

	"github.com/skalibog/signalflow/pkg/models"
)

// Множители расстояния до целей относительно (entry - stop) * ratio
var targetSteps = [3]float64{0.5, 1.0, 1.5}

// Targets рассчитывает стоп-лосс и три цели.
// Стоп ставится на riskPct процентов против позиции, либо на ближайший
// уровень поддержки (LONG) или сопротивления (SHORT), если он ближе.
func Targets(entry float64, dir models.Direction, ratio, riskPct float64, levels []models.SRLevel) models.Targets {
	risk := riskPct / 100
	var stop float64
	if dir == models.Long {
		stop = entry * (1 - risk)
		for _, l := range levels {
			if l.Kind == models.Support && l.Price < entry && l.Price > stop {
				stop = l.Price
			}
		}
	} else {
		stop = entry * (1 + risk)
		for _, l := range levels {
			if l.Kind == models.Resistance && l.Price > entry && l.Price < stop {
				stop = l.Price
			}
		}
	}

	profit := math.Abs(entry-stop) * ratio
	sign := 1.0
	if dir == models.Short {
		sign = -1
	}

	return models.Targets{
		TP1:      entry + sign*profit*targetSteps[0],
		TP2:      entry + sign*profit*targetSteps[1],
		TP3:      entry + sign*profit*targetSteps[2],
		StopLoss: stop,
	}
}

// RiskReward отношение расстояния до TP2 к расстоянию до стопа
func RiskReward(entry float64, t models.Targets) float64 {
	risk := math.Abs(entry - t.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(entry-t.TP2) / risk
}
