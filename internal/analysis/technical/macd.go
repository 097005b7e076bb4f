package technical

import "github.com/markcheno/go-talib"

// MACDLookback индексы первых валидных значений линии MACD и сигнальной линии
func MACDLookback(slow, signal int) (line, signalLine int) {
	return slow - 1, slow + signal - 2
}

// MACD рассчитывает EMA(fast) - EMA(slow), сигнальную линию EMA(signal)
// от MACD и гистограмму MACD - signal.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	n := len(closes)
	macd, signalLine, hist = nanSeries(n), nanSeries(n), nanSeries(n)
	if fast < 1 || slow <= fast || signal < 1 {
		return macd, signalLine, hist
	}

	lineStart, signalStart := MACDLookback(slow, signal)
	if n <= lineStart {
		return macd, signalLine, hist
	}

	fastEMA := talib.Ema(closes, fast)
	slowEMA := talib.Ema(closes, slow)
	for i := lineStart; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	if n <= signalStart {
		return macd, signalLine, hist
	}

	// Сигнальная линия считается только по валидной части MACD
	sig := talib.Ema(macd[lineStart:], signal)
	for i := signalStart; i < n; i++ {
		signalLine[i] = sig[i-lineStart]
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}
