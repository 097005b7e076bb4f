package technical

import "math"

// Функции индикаторов возвращают срез той же длины, что и вход.
// Значения до окончания периода разогрева равны NaN.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskWarmup заменяет первые lookback значений на NaN.
// talib заполняет их нулями, а ноль неотличим от настоящего значения.
func maskWarmup(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

// Last возвращает последнее значение ряда или NaN для пустого ряда
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// trueRange истинный диапазон свечи i (i >= 1)
func trueRange(high, low, close []float64, i int) float64 {
	hl := high[i] - low[i]
	hc := math.Abs(high[i] - close[i-1])
	lc := math.Abs(low[i] - close[i-1])
	return math.Max(hl, math.Max(hc, lc))
}

// wilder одна итерация сглаживания Уайлдера
func wilder(prev, value float64, period int) float64 {
	return (prev*float64(period-1) + value) / float64(period)
}

// meanStd среднее и стандартное отклонение генеральной совокупности
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func minLen(series ...[]float64) int {
	if len(series) == 0 {
		return 0
	}
	n := len(series[0])
	for _, s := range series[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}
