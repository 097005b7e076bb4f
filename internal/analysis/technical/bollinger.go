package technical

import "github.com/skalibog/signalflow/pkg/models"

// BollingerLookback число начальных значений полос, равных NaN
func BollingerLookback(period int) int { return period - 1 }

// Bollinger рассчитывает SMA +- k стандартных отклонений по скользящему окну
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower []float64) {
	n := len(closes)
	upper, middle, lower = nanSeries(n), nanSeries(n), nanSeries(n)
	if period < 1 || n < period {
		return upper, middle, lower
	}

	for i := period - 1; i < n; i++ {
		mean, std := meanStd(closes[i-period+1 : i+1])
		middle[i] = mean
		upper[i] = mean + k*std
		lower[i] = mean - k*std
	}
	return upper, middle, lower
}

// BollingerAt собирает значения полос и положение цены на индексе i.
// percentB не ограничивается диапазоном [0, 1].
func BollingerAt(upper, middle, lower []float64, close float64, i int) models.BollingerBands {
	b := models.BollingerBands{
		Upper:  upper[i],
		Middle: middle[i],
		Lower:  lower[i],
	}

	width := b.Upper - b.Lower
	if width == 0 {
		b.PercentB = 0.5
		b.Position = models.BandMiddle
		return b
	}

	b.PercentB = (close - b.Lower) / width
	if b.Middle != 0 {
		b.Bandwidth = width / b.Middle * 100
	}

	switch {
	case close >= b.Upper:
		b.Position = models.BandUpper
	case close <= b.Lower:
		b.Position = models.BandLower
	default:
		b.Position = models.BandMiddle
	}
	return b
}
