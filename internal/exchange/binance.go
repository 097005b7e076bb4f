package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

// ErrDataSource ошибка получения данных с биржи
var ErrDataSource = errors.New("ошибка источника данных")

// BinanceClient клиент для взаимодействия с Binance
type BinanceClient struct {
	futures *futures.Client
	spot    *binance.Client
	market  string
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	if cfg.Market != "spot" && cfg.Market != "futures" {
		return nil, fmt.Errorf("неизвестный рынок %q", cfg.Market)
	}

	// Переключение на testnet задается до создания клиентов
	if cfg.Testnet {
		binance.UseTestnet = true
		futures.UseTestnet = true
	}

	return &BinanceClient{
		futures: futures.NewClient(cfg.APIKey, cfg.APISecret),
		spot:    binance.NewClient(cfg.APIKey, cfg.APISecret),
		market:  cfg.Market,
	}, nil
}

// Market рынок клиента: spot или futures
func (c *BinanceClient) Market() string {
	return c.market
}

// rawKline строковые поля свечи в ответе Binance
type rawKline struct {
	OpenTime, CloseTime            int64
	Open, High, Low, Close, Volume string
}

// GetKlines получает исторические свечи в порядке возрастания времени
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var raw []rawKline

	if c.market == "futures" {
		klines, err := c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: получение свечей %s: %v", ErrDataSource, symbol, err)
		}
		raw = make([]rawKline, len(klines))
		for i, k := range klines {
			raw[i] = rawKline{k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume}
		}
	} else {
		klines, err := c.spot.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: получение свечей %s: %v", ErrDataSource, symbol, err)
		}
		raw = make([]rawKline, len(klines))
		for i, k := range klines {
			raw[i] = rawKline{k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume}
		}
	}

	candles := make([]models.Candle, len(raw))
	for i, k := range raw {
		candle, err := convertKline(symbol, interval, k)
		if err != nil {
			return nil, fmt.Errorf("%w: свеча %s #%d: %v", models.ErrMalformedInput, symbol, i, err)
		}
		candles[i] = candle
	}
	return candles, nil
}

func convertKline(symbol, interval string, k rawKline) (models.Candle, error) {
	values, err := parseDecimals(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return models.Candle{}, err
	}
	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
	}, nil
}

// parseDecimals разбирает строковые цены Binance через decimal без потери точности
func parseDecimals(values ...string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, s := range values {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("значение %q: %w", s, err)
		}
		out[i] = d.InexactFloat64()
	}
	return out, nil
}
