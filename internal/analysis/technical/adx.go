package technical

import "math"

// ADXLookback число начальных значений ADX, равных NaN
func ADXLookback(period int) int { return period }

// ADX рассчитывает индекс среднего направленного движения.
// TR, +DM и -DM сглаживаются по Уайлдеру так же, как в RSI.
// DX = |+DI - -DI| / (+DI + -DI) * 100, либо 0, если оба DI нулевые.
// ADX начинается с первого DX и далее сглаживается с тем же периодом.
func ADX(high, low, close []float64, period int) []float64 {
	n := minLen(high, low, close)
	out := nanSeries(n)
	if period < 1 || n <= period {
		return out
	}

	var tr, plusDM, minusDM float64
	for i := 1; i <= period; i++ {
		t, p, m := directionalMove(high, low, close, i)
		tr += t
		plusDM += p
		minusDM += m
	}
	tr /= float64(period)
	plusDM /= float64(period)
	minusDM /= float64(period)

	adx := dx(tr, plusDM, minusDM)
	out[period] = adx

	for i := period + 1; i < n; i++ {
		t, p, m := directionalMove(high, low, close, i)
		tr = wilder(tr, t, period)
		plusDM = wilder(plusDM, p, period)
		minusDM = wilder(minusDM, m, period)

		adx = wilder(adx, dx(tr, plusDM, minusDM), period)
		out[i] = adx
	}
	return out
}

// directionalMove TR, +DM и -DM для свечи i
func directionalMove(high, low, close []float64, i int) (tr, plusDM, minusDM float64) {
	tr = trueRange(high, low, close, i)
	up := high[i] - high[i-1]
	down := low[i-1] - low[i]
	if up > down && up > 0 {
		plusDM = up
	}
	if down > up && down > 0 {
		minusDM = down
	}
	return tr, plusDM, minusDM
}

func dx(tr, plusDM, minusDM float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return math.Abs(plusDI-minusDI) / sum * 100
}
