package aggregator

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

// Размер буфера тиков между потоком и обработчиком
const tickBuffer = 4096

// Run запускает массовый проход по расписанию, обработку тиков
// и периодическую проверку таймаутов. Возвращается при отмене ctx.
func (a *Analyzer) Run(ctx context.Context, stream TickerStream) error {
	g, ctx := errgroup.WithContext(ctx)
	ticks := make(chan models.Ticker, tickBuffer)

	g.Go(func() error {
		err := stream.StreamTickers(ctx, ticks)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case t := <-ticks:
				a.HandleTick(ctx, t)
			}
		}
	})
	g.Go(func() error {
		return a.every(ctx, a.config.AnalysisInterval(), true, a.bulkPass)
	})
	g.Go(func() error {
		sweep := time.Duration(a.config.Tracking.SweepSeconds) * time.Second
		return a.every(ctx, sweep, false, func(ctx context.Context) {
			a.Sweep(ctx, a.now())
		})
	})

	return g.Wait()
}

// every вызывает fn с периодом d до отмены ctx
func (a *Analyzer) every(ctx context.Context, d time.Duration, immediate bool, fn func(context.Context)) error {
	if immediate {
		fn(ctx)
	}
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (a *Analyzer) bulkPass(ctx context.Context) {
	if _, err := a.GenerateSignals(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("Ошибка массового прохода", zap.Error(err))
		}
		return
	}
	a.logSummary()
}

// HandleTick обновляет кэш тикеров, сопровождение сигналов и алерты
func (a *Analyzer) HandleTick(ctx context.Context, t models.Ticker) {
	// NaN не проходит сравнение > 0
	if t.Symbol == "" || !(t.LastPrice > 0) || math.IsInf(t.LastPrice, 1) {
		return
	}
	if t.Time.IsZero() {
		t.Time = a.now()
	}
	a.metrics.TicksTotal.Inc()

	a.mu.Lock()
	a.tickers[t.Symbol] = t
	a.mu.Unlock()

	a.publish(ctx, a.tracker.UpdatePrice(t.Symbol, t.LastPrice, t.Time))

	if a.alerts == nil {
		return
	}
	if alert, ok := a.alerts.Check(t); ok {
		a.metrics.AlertsTotal.WithLabelValues(string(alert.Type)).Inc()
		if err := a.sink.OnAlert(ctx, alert); err != nil {
			logger.Warn("Ошибка экспорта алерта", zap.String("symbol", alert.Symbol), zap.Error(err))
		}
	}
}

// Sweep закрывает сигналы с истекшим временем по последней известной цене
func (a *Analyzer) Sweep(ctx context.Context, at time.Time) {
	a.publish(ctx, a.tracker.CheckTimeouts(at))
}

func (a *Analyzer) publish(ctx context.Context, updates []models.Signal) {
	if len(updates) == 0 {
		return
	}
	for _, sig := range updates {
		if sig.Status != models.StatusActive {
			a.metrics.SignalsClosed.WithLabelValues(sig.StrategyName, string(sig.Status)).Inc()
		}
		if err := a.sink.OnSignalUpdated(ctx, sig); err != nil {
			logger.Warn("Ошибка экспорта обновления", zap.String("id", sig.ID), zap.Error(err))
		}
	}
	a.metrics.ActiveSignals.Set(float64(len(a.tracker.ActiveSignals())))
}

// logSummary пишет сводку трекера после каждого прохода
func (a *Analyzer) logSummary() {
	d := a.tracker.Dashboard()
	logger.Info("Сводка сопровождения",
		zap.Int("active", d.ActiveCount),
		zap.Int("completed", d.CompletedCount),
		zap.Float64("total_pnl", d.TotalPnL),
		zap.Float64("avg_pnl", d.AvgPnL),
		zap.Float64("win_rate", d.WinRate))

	for _, s := range a.tracker.StrategyStats() {
		logger.Debug("Статистика стратегии",
			zap.String("strategy", s.Strategy),
			zap.Int("signals", s.TotalSignals),
			zap.Float64("win_rate", s.WinRate),
			zap.Float64("sharpe", s.SharpeRatio),
			zap.Float64("max_drawdown", s.MaxDrawdown))
	}
	for _, m := range a.tracker.Models() {
		logger.Debug("Модель стратегии",
			zap.String("strategy", m.Strategy),
			zap.Float64("success_ema", m.SuccessRateEMA),
			zap.Int("adaptations", m.AdaptationCount))
	}
}
