package technical

import "github.com/markcheno/go-talib"

// ATRLookback число начальных значений ATR, равных NaN
func ATRLookback(period int) int { return period }

// ATR рассчитывает средний истинный диапазон (сглаживание Уайлдера)
func ATR(high, low, close []float64, period int) []float64 {
	n := minLen(high, low, close)
	if period < 1 || n <= period {
		return nanSeries(n)
	}
	atr := talib.Atr(high[:n], low[:n], close[:n], period)
	return maskWarmup(atr, ATRLookback(period))
}
