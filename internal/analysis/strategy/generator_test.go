package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// recoveringSeries плавное снижение 110 -> 104, затем восстановление пилой
// с всплеском объема на последней свече.
func recoveringSeries() []models.Candle {
	closes := make([]float64, 0, 60)
	for i := 0; i < 20; i++ {
		closes = append(closes, 110-6*float64(i)/19)
	}
	for i := 0; i < 40; i++ {
		c := 104 + 0.2*float64(i)
		if i%2 == 1 {
			c++
		}
		closes = append(closes, c)
	}
	candles := build(closes)
	candles[len(candles)-1].Volume = 3000
	return candles
}

func mirror(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, len(candles))
	for i, c := range candles {
		c.Close = 220 - c.Close
		c.Open = c.Close
		c.High = c.Close + 0.5
		c.Low = c.Close - 0.5
		out[i] = c
	}
	return out
}

func build(closes []float64) []models.Candle {
	start := testNow.Add(-time.Duration(len(closes)) * 15 * time.Minute)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol:   "SOLUSDT",
			Interval: "15m",
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func volumeStrategy() Strategy {
	return Strategy{
		Name:             "VOLUME",
		Conditions:       Conditions{VolumeMultiplierMin: ptr(1.5)},
		TPSLRatio:        2,
		BaseConfidence:   75,
		ExpectedDuration: time.Hour,
	}
}

func newTestGenerator(opts ...Option) *Generator {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewGenerator(config.Default().Analysis, DefaultStrategies(), opts...)
}

func input(candles []models.Candle) Input {
	return Input{Symbol: "SOLUSDT", Interval: "15m", Candles: candles}
}

func TestEvaluateLongOnRecovery(t *testing.T) {
	sig, reason := newTestGenerator().Evaluate(input(recoveringSeries()), []Strategy{volumeStrategy()})
	require.Equal(t, ReasonNone, reason)
	require.NotNil(t, sig)

	assert.Equal(t, models.Long, sig.Direction)
	assert.Equal(t, "VOLUME", sig.StrategyName)
	assert.Equal(t, models.StatusActive, sig.Status)
	assert.Equal(t, testNow, sig.CreatedAt)
	assert.NotEmpty(t, sig.ID)

	tg := sig.Targets
	assert.Less(t, tg.StopLoss, sig.EntryPrice)
	assert.Less(t, sig.EntryPrice, tg.TP1)
	assert.Less(t, tg.TP1, tg.TP2)
	assert.Less(t, tg.TP2, tg.TP3)

	assert.InDelta(t, 112.8, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 112.8*0.98, tg.StopLoss, 1e-9)
	assert.InDelta(t, 2, sig.RiskReward, 1e-9)
	assert.InDelta(t, 75, sig.Confidence, 1e-9)
	assert.InDelta(t, 3000/1100.0, sig.IndicatorsSnapshot.VolumeRatio, 1e-9)
	assert.Equal(t, models.Bullish, sig.MarketSentiment)
}

func TestEvaluateShortOnMirror(t *testing.T) {
	sig, reason := newTestGenerator().Evaluate(input(mirror(recoveringSeries())), []Strategy{volumeStrategy()})
	require.Equal(t, ReasonNone, reason)

	assert.Equal(t, models.Short, sig.Direction)
	tg := sig.Targets
	assert.Greater(t, tg.StopLoss, sig.EntryPrice)
	assert.Greater(t, sig.EntryPrice, tg.TP1)
	assert.Greater(t, tg.TP1, tg.TP2)
	assert.Greater(t, tg.TP2, tg.TP3)
}

func TestEvaluateDefaultStrategies(t *testing.T) {
	g := newTestGenerator()

	// без тикера: изменение 2.5% по свечам, подходит только TREND
	sig, reason := g.Evaluate(input(recoveringSeries()), nil)
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, "TREND", sig.StrategyName)
	assert.InDelta(t, 70, sig.Confidence, 1e-9)
	assert.InDelta(t, (112.8-110)/110*100, sig.PriceChange24h, 1e-9)
	assert.Equal(t, 480*time.Minute, sig.ExpectedDuration)

	// тикер с изменением 3.5% и объемом 150M выводит BREAKOUT вперед
	in := input(recoveringSeries())
	in.Ticker = &models.Ticker{Symbol: "SOLUSDT", LastPrice: 112.8, ChangePct: 3.5, QuoteVolume: 150e6}
	sig, reason = g.Evaluate(in, nil)
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, "BREAKOUT", sig.StrategyName)
	assert.InDelta(t, 80, sig.Confidence, 1e-9)
	assert.InDelta(t, 2.5, sig.RiskReward, 1e-9)
	assert.Equal(t, 150e6, sig.Volume24h)
}

func TestEvaluateFlatSeriesHasNoMatch(t *testing.T) {
	candles := build(constantCloses(100, 100))
	for i := range candles {
		candles[i].High, candles[i].Low = 100, 100
	}

	sig, reason := newTestGenerator().Evaluate(input(candles), nil)
	assert.Nil(t, sig)
	assert.Equal(t, ReasonNoStrategyMatch, reason)
}

func TestEvaluateRejections(t *testing.T) {
	g := newTestGenerator()

	_, reason := g.Evaluate(input(recoveringSeries()[:40]), nil)
	assert.Equal(t, ReasonInsufficientHistory, reason)

	broken := recoveringSeries()
	broken[30].Close = math.NaN()
	_, reason = g.Evaluate(input(broken), nil)
	assert.Equal(t, ReasonMalformedInput, reason)

	unordered := recoveringSeries()
	unordered[10].OpenTime = unordered[9].OpenTime
	_, reason = g.Evaluate(input(unordered), nil)
	assert.Equal(t, ReasonMalformedInput, reason)

	_, reason = g.Evaluate(input(recoveringSeries()), []Strategy{})
	assert.Equal(t, ReasonNoStrategyMatch, reason)

	_, reason = g.Evaluate(input(recoveringSeries()), []Strategy{{Name: "EMPTY", TPSLRatio: 2, BaseConfidence: 90}})
	assert.Equal(t, ReasonNoStrategyMatch, reason)

	lowRR := volumeStrategy()
	lowRR.TPSLRatio = 1.2
	_, reason = g.Evaluate(input(recoveringSeries()), []Strategy{lowRR})
	assert.Equal(t, ReasonInsufficientRiskReward, reason)

	weak := volumeStrategy()
	weak.BaseConfidence = 60
	_, reason = g.Evaluate(input(recoveringSeries()), []Strategy{weak})
	assert.Equal(t, ReasonLowConfidence, reason)
}

type fixedModels map[string]models.LearningModel

func (f fixedModels) Model(name string) (models.LearningModel, bool) {
	m, ok := f[name]
	return m, ok
}

func TestEvaluateBiasedByModel(t *testing.T) {
	poor := NeutralModel("VOLUME")
	poor.SuccessRateEMA = 0.2

	g := newTestGenerator(WithModels(fixedModels{"VOLUME": poor}))
	// 75 * (0.9 + 0.04) = 70.5
	sig, reason := g.Evaluate(input(recoveringSeries()), []Strategy{volumeStrategy()})
	require.Equal(t, ReasonNone, reason)
	assert.InDelta(t, 70.5, sig.Confidence, 1e-9)

	poor.SuccessRateEMA = 0
	g = newTestGenerator(WithModels(fixedModels{"VOLUME": poor}))
	// 75 * 0.9 = 67.5, еще проходит порог
	sig, _ = g.Evaluate(input(recoveringSeries()), []Strategy{volumeStrategy()})
	require.NotNil(t, sig)
	assert.InDelta(t, 67.5, sig.Confidence, 1e-9)
}

func constantCloses(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
