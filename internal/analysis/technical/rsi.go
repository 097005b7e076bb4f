package technical

// RSILookback число начальных значений RSI, равных NaN
func RSILookback(period int) int { return period }

// RSI рассчитывает индекс относительной силы по Уайлдеру.
// Первые period средних прироста и падения берутся как арифметическое среднее,
// далее avg = (avg*(period-1) + value) / period.
// При нулевом среднем падении RSI равен 100.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period < 1 || n <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := change(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		gain, loss := change(closes[i] - closes[i-1])
		avgGain = wilder(avgGain, gain, period)
		avgLoss = wilder(avgLoss, loss, period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func change(diff float64) (gain, loss float64) {
	if diff > 0 {
		return diff, 0
	}
	return 0, -diff
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
