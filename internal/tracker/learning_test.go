package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLearnSuccessAndFailure(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewModel("TREND", at)

	m = Learn(m, true, 0.1, at.Add(time.Hour))
	assert.InDelta(t, 0.55, m.SuccessRateEMA, 1e-12)
	assert.Equal(t, 1, m.AdaptationCount)
	assert.Equal(t, at.Add(time.Hour), m.LastUpdate)

	// после нормализации отношения весов сохраняют множители
	assert.InDelta(t, 1.07/1.05, m.Weights.Volume/m.Weights.RSI, 1e-12)
	assert.InDelta(t, 5*1.05/5.21, m.Weights.RSI, 1e-12)

	m = Learn(m, false, 0.1, at.Add(2*time.Hour))
	assert.InDelta(t, 0.495, m.SuccessRateEMA, 1e-12)
	assert.InDelta(t, (1.07*0.93)/(1.05*0.95), m.Weights.Volume/m.Weights.RSI, 1e-12)
}

func TestWeightsAlwaysSumToTotal(t *testing.T) {
	m := NewModel("BREAKOUT", time.Time{})
	pattern := []bool{true, true, false, true, false, false, false, true}
	for i := 0; i < 200; i++ {
		m = Learn(m, pattern[i%len(pattern)], 0.1, time.Time{})
		assert.InDelta(t, WeightTotal, m.Weights.Sum(), 1e-9)
		assert.GreaterOrEqual(t, m.SuccessRateEMA, 0.0)
		assert.LessOrEqual(t, m.SuccessRateEMA, 1.0)
	}
	assert.Equal(t, 200, m.AdaptationCount)
}

func TestSharpeAndDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio(nil))
	assert.Equal(t, 0.0, SharpeRatio([]float64{2, 2, 2}))
	// mean 1, std 1
	assert.InDelta(t, 1, SharpeRatio([]float64{0, 2}), 1e-12)

	assert.Equal(t, 0.0, MaxDrawdown(nil))
	// накопленный: 3, 1, 2, -2, 0 -> пик 3, дно -2
	assert.InDelta(t, 5, MaxDrawdown([]float64{3, -2, 1, -4, 2}), 1e-12)
	// пик начинается с нуля
	assert.InDelta(t, 3, MaxDrawdown([]float64{-1, -2}), 1e-12)
}
