package tracker

import (
	"time"

	"github.com/skalibog/signalflow/pkg/models"
)

// WeightTotal сумма весов модели после нормализации
const WeightTotal = 5.0

var (
	successFactors = models.Weights{RSI: 1.05, ADX: 1.03, Volume: 1.07, Volatility: 1.02, Momentum: 1.04}
	failureFactors = models.Weights{RSI: 0.95, ADX: 0.97, Volume: 0.93, Volatility: 0.98, Momentum: 0.96}
)

// NewModel модель с нейтральными весами и успешностью 0.5
func NewModel(strategy string, at time.Time) models.LearningModel {
	return models.LearningModel{
		Strategy:       strategy,
		Weights:        models.Weights{RSI: 1, ADX: 1, Volume: 1, Volatility: 1, Momentum: 1},
		SuccessRateEMA: 0.5,
		LastUpdate:     at,
	}
}

// Learn учитывает исход сигнала: EMA успешности с коэффициентом alpha,
// умножение весов на фиксированные множители и нормализацию суммы весов.
func Learn(m models.LearningModel, profit bool, alpha float64, at time.Time) models.LearningModel {
	outcome := 0.0
	factors := failureFactors
	if profit {
		outcome = 1
		factors = successFactors
	}

	m.SuccessRateEMA = m.SuccessRateEMA*(1-alpha) + outcome*alpha
	m.AdaptationCount++

	w := m.Weights
	w.RSI *= factors.RSI
	w.ADX *= factors.ADX
	w.Volume *= factors.Volume
	w.Volatility *= factors.Volatility
	w.Momentum *= factors.Momentum
	m.Weights = normalize(w)

	m.LastUpdate = at
	return m
}

func normalize(w models.Weights) models.Weights {
	sum := w.Sum()
	if sum <= 0 {
		return models.Weights{RSI: 1, ADX: 1, Volume: 1, Volatility: 1, Momentum: 1}
	}
	k := WeightTotal / sum
	return models.Weights{
		RSI:        w.RSI * k,
		ADX:        w.ADX * k,
		Volume:     w.Volume * k,
		Volatility: w.Volatility * k,
		Momentum:   w.Momentum * k,
	}
}
