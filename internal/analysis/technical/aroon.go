package technical

// AroonLookback число начальных значений осциллятора Aroon, равных NaN
func AroonLookback(period int) int { return period }

// AroonOscillator рассчитывает Aroon Up - Aroon Down по окну из period+1 свечей.
// При равенстве экстремумов берется самая ранняя свеча окна.
func AroonOscillator(high, low []float64, period int) []float64 {
	n := minLen(high, low)
	out := nanSeries(n)
	if period < 1 || n <= period {
		return out
	}

	p := float64(period)
	for i := period; i < n; i++ {
		hiIdx, loIdx := i-period, i-period
		for j := i - period + 1; j <= i; j++ {
			if high[j] > high[hiIdx] {
				hiIdx = j
			}
			if low[j] < low[loIdx] {
				loIdx = j
			}
		}
		up := 100 * (p - float64(i-hiIdx)) / p
		down := 100 * (p - float64(i-loIdx)) / p
		out[i] = up - down
	}
	return out
}
