package technical

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

// ErrInsufficientHistory возвращается, если свечей меньше, чем нужно индикаторам
var ErrInsufficientHistory = errors.New("недостаточно истории")

const (
	statsWindow    = 20   // окно для объема и волатильности
	trendFast      = 10   // короткая SMA тренда
	trendSlow      = 20   // длинная SMA тренда
	trendThreshold = 0.01 // порог расхождения SMA для тренда
)

// Analyzer рассчитывает снимок технических индикаторов
type Analyzer struct {
	config config.TechnicalConfig
}

// NewAnalyzer создает новый анализатор технических индикаторов
func NewAnalyzer(cfg config.TechnicalConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// MinHistory минимальное число свечей, при котором все индикаторы определены
func (a *Analyzer) MinHistory() int {
	c := a.config
	_, signalStart := MACDLookback(c.MACDSlow, c.MACDSignal)
	lookbacks := []int{
		RSILookback(c.RSIPeriod),
		ADXLookback(c.ADXPeriod),
		AroonLookback(c.AroonPeriod),
		ATRLookback(c.ATRPeriod),
		BollingerLookback(c.BBPeriod),
		signalStart,
		trendSlow - 1,
		statsWindow,
	}
	longest := 0
	for _, l := range lookbacks {
		longest = max(longest, l)
	}
	return longest + 1
}

// Snapshot рассчитывает индикаторы на последней свече.
// Функция чистая: одинаковый вход дает одинаковый результат.
func (a *Analyzer) Snapshot(candles []models.Candle) (models.IndicatorSnapshot, error) {
	if need := a.MinHistory(); len(candles) < need {
		return models.IndicatorSnapshot{}, fmt.Errorf("%w: %d свечей, требуется %d", ErrInsufficientHistory, len(candles), need)
	}

	// Подготавливаем данные для анализа
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))

	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	c := a.config
	last := len(candles) - 1
	lastClose := closes[last]

	macd, signal, hist := MACD(closes, c.MACDFast, c.MACDSlow, c.MACDSignal)
	upper, middle, lower := Bollinger(closes, c.BBPeriod, c.BBDeviation)

	snap := models.IndicatorSnapshot{
		RSI:               Last(RSI(closes, c.RSIPeriod)),
		ADX:               Last(ADX(highs, lows, closes, c.ADXPeriod)),
		AroonOscillator:   Last(AroonOscillator(highs, lows, c.AroonPeriod)),
		MACD:              Last(macd),
		MACDSignal:        Last(signal),
		MACDHistogram:     Last(hist),
		Bollinger:         BollingerAt(upper, middle, lower, lastClose, last),
		ATR:               Last(ATR(highs, lows, closes, c.ATRPeriod)),
		VolumeRatio:       VolumeRatio(volumes, statsWindow),
		Volatility:        Volatility(closes, statsWindow),
		Trend:             a.trend(closes),
		SupportResistance: SupportResistance(candles, c.LevelWindow, c.LevelTolerance),
		Close:             lastClose,
	}

	for name, v := range map[string]float64{
		"rsi": snap.RSI, "adx": snap.ADX, "aroon": snap.AroonOscillator,
		"macd": snap.MACD, "macd_signal": snap.MACDSignal, "atr": snap.ATR,
		"bb_middle": snap.Bollinger.Middle,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.IndicatorSnapshot{}, fmt.Errorf("%w: индикатор %s не определен", ErrInsufficientHistory, name)
		}
	}
	return snap, nil
}

// trend сравнивает SMA(10) и SMA(20) на последней свече
func (a *Analyzer) trend(closes []float64) models.Trend {
	if len(closes) < trendSlow {
		return models.TrendSideways
	}
	fast := Last(talib.Sma(closes, trendFast))
	slow := Last(talib.Sma(closes, trendSlow))

	switch {
	case fast > slow*(1+trendThreshold):
		return models.TrendUp
	case fast < slow*(1-trendThreshold):
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

// VolumeRatio отношение последнего объема к среднему за window свечей,
// включая последнюю. При нулевом среднем возвращает 1.
func VolumeRatio(volumes []float64, window int) float64 {
	if len(volumes) == 0 {
		return 1
	}
	tail := volumes
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	mean, _ := meanStd(tail)
	if mean == 0 {
		return 1
	}
	return volumes[len(volumes)-1] / mean
}

// Volatility стандартное отклонение доходностей по последним window закрытиям
func Volatility(closes []float64, window int) float64 {
	tail := closes
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	if len(tail) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] == 0 {
			continue
		}
		returns = append(returns, (tail[i]-tail[i-1])/tail[i-1])
	}
	_, std := meanStd(returns)
	return std
}
