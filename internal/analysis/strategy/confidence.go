package strategy

import "github.com/skalibog/signalflow/pkg/models"

// NeutralModel модель обучения до первого обновления
func NeutralModel(name string) models.LearningModel {
	return models.LearningModel{
		Strategy:       name,
		Weights:        models.Weights{RSI: 1, ADX: 1, Volume: 1, Volatility: 1, Momentum: 1},
		SuccessRateEMA: 0.5,
	}
}

// Confidence рассчитывает уверенность сигнала.
// Базовое значение масштабируется успешностью стратегии, бонусы и штрафы
// умножаются на веса модели. Нейтральная модель дает исходные значения.
func Confidence(base float64, market Market, model models.LearningModel) float64 {
	w := model.Weights
	c := base * (0.9 + 0.2*model.SuccessRateEMA)

	// Объем за 24 часа
	if market.Volume24h > 100_000_000 {
		c += 5 * w.Volume
	}
	if market.Volume24h > 200_000_000 {
		c += 5 * w.Volume
	}

	// Волатильность
	vol := market.Snapshot.Volatility
	if vol > 0.10 {
		c -= 10 * w.Volatility
	}
	if vol > 0.15 {
		c -= 10 * w.Volatility
	}

	// Сила тренда
	adx := market.Snapshot.ADX
	if adx > 30 {
		c += 5 * w.ADX
	}
	if adx > 40 {
		c += 5 * w.ADX
	}

	return min(max(c, 0), 100)
}
