package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

func TestConvertKline(t *testing.T) {
	k := rawKline{
		OpenTime:  1_700_000_000_000,
		CloseTime: 1_700_000_899_999,
		Open:      "36500.10000000",
		High:      "36620.55000000",
		Low:       "36480.00000000",
		Close:     "36601.01000000",
		Volume:    "1234.56700000",
	}

	c, err := convertKline("BTCUSDT", "15m", k)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, "15m", c.Interval)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).UTC(), c.OpenTime)
	assert.Equal(t, 36500.1, c.Open)
	assert.Equal(t, 36620.55, c.High)
	assert.Equal(t, 36480.0, c.Low)
	assert.Equal(t, 36601.01, c.Close)
	assert.Equal(t, 1234.567, c.Volume)
	assert.NoError(t, models.ValidateCandles([]models.Candle{c}))
}

func TestConvertKlineRejectsGarbage(t *testing.T) {
	_, err := convertKline("BTCUSDT", "15m", rawKline{Open: "1", High: "x", Low: "1", Close: "1", Volume: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestConvertTicker(t *testing.T) {
	tk, err := convertTicker(rawTicker{
		Symbol:      "ethusdt",
		LastPrice:   "2045.12",
		ChangePct:   "-3.418",
		Volume:      "512345.5",
		QuoteVolume: "1048576000.25",
		Time:        1_700_000_000_123,
	})
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", tk.Symbol)
	assert.Equal(t, 2045.12, tk.LastPrice)
	assert.Equal(t, -3.418, tk.ChangePct)
	assert.Equal(t, 1048576000.25, tk.QuoteVolume)
	assert.Equal(t, int64(1_700_000_000_123), tk.Time.UnixMilli())
}

func TestConvertTickerRejectsEmptyPrice(t *testing.T) {
	_, err := convertTicker(rawTicker{Symbol: "BTCUSDT", LastPrice: "", ChangePct: "0", Volume: "0", QuoteVolume: "0"})
	require.Error(t, err)
}

func TestNewBinanceClientMarket(t *testing.T) {
	c, err := NewBinanceClient(config.BinanceConfig{Market: "futures"})
	require.NoError(t, err)
	assert.Equal(t, "futures", c.Market())

	_, err = NewBinanceClient(config.BinanceConfig{Market: "margin"})
	require.Error(t, err)
}
