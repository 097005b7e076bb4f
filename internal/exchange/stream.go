package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

// rawTicker строковые поля тикера из потока всех рынков
type rawTicker struct {
	Symbol, LastPrice, ChangePct, Volume, QuoteVolume string
	Time                                              int64
}

// StreamTickers читает поток тикеров всех символов и пишет их в out.
// При разрыве соединения переподключается с экспоненциальной задержкой.
// Если out заполнен, тикер отбрасывается: тиковый цикл не должен отставать.
func (c *BinanceClient) StreamTickers(ctx context.Context, out chan<- models.Ticker) error {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 1.8,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connected := time.Now()
		err := c.serveTickers(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// долгая сессия сбрасывает задержку
		if time.Since(connected) > time.Minute {
			b.Reset()
		}

		delay := b.Duration()
		logger.Warn("Поток тикеров отключен, переподключение",
			zap.String("market", c.market),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *BinanceClient) serveTickers(ctx context.Context, out chan<- models.Ticker) error {
	errC := make(chan error, 1)
	errHandler := func(err error) {
		select {
		case errC <- err:
		default:
		}
	}
	emit := func(raws []rawTicker) {
		for _, r := range raws {
			t, err := convertTicker(r)
			if err != nil {
				logger.Debug("Пропущен некорректный тикер", zap.String("symbol", r.Symbol), zap.Error(err))
				continue
			}
			select {
			case out <- t:
			default:
			}
		}
	}

	var doneC, stopC chan struct{}
	var err error
	if c.market == "futures" {
		doneC, stopC, err = futures.WsAllMarketTickerServe(func(event futures.WsAllMarketTickerEvent) {
			raws := make([]rawTicker, 0, len(event))
			for _, e := range event {
				raws = append(raws, rawTicker{e.Symbol, e.ClosePrice, e.PriceChangePercent, e.BaseVolume, e.QuoteVolume, e.Time})
			}
			emit(raws)
		}, errHandler)
	} else {
		doneC, stopC, err = binance.WsAllMarketsStatServe(func(event binance.WsAllMarketsStatEvent) {
			raws := make([]rawTicker, 0, len(event))
			for _, e := range event {
				raws = append(raws, rawTicker{e.Symbol, e.LastPrice, e.PriceChangePercent, e.BaseVolume, e.QuoteVolume, e.Time})
			}
			emit(raws)
		}, errHandler)
	}
	if err != nil {
		return fmt.Errorf("%w: подключение к потоку тикеров: %v", ErrDataSource, err)
	}

	logger.Info("Подключен поток тикеров", zap.String("market", c.market))

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		select {
		case err := <-errC:
			return err
		default:
			return errors.New("поток тикеров закрыт")
		}
	}
}

func convertTicker(r rawTicker) (models.Ticker, error) {
	values, err := parseDecimals(r.LastPrice, r.ChangePct, r.Volume, r.QuoteVolume)
	if err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{
		Symbol:      strings.ToUpper(r.Symbol),
		LastPrice:   values[0],
		ChangePct:   values[1],
		Volume:      values[2],
		QuoteVolume: values[3],
		Time:        time.UnixMilli(r.Time).UTC(),
	}, nil
}
