package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

// Sink принимает события сигналов и алертов для экспорта
type Sink interface {
	OnSignalCreated(ctx context.Context, signal models.Signal) error
	OnSignalUpdated(ctx context.Context, signal models.Signal) error
	OnAlert(ctx context.Context, alert models.Alert) error
}

// Multi рассылает события во все вложенные приемники
type Multi []Sink

// OnSignalCreated передает новый сигнал всем приемникам
func (m Multi) OnSignalCreated(ctx context.Context, signal models.Signal) error {
	var errs []error
	for _, s := range m {
		if err := s.OnSignalCreated(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnSignalUpdated передает изменение сигнала всем приемникам
func (m Multi) OnSignalUpdated(ctx context.Context, signal models.Signal) error {
	var errs []error
	for _, s := range m {
		if err := s.OnSignalUpdated(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnAlert передает алерт всем приемникам
func (m Multi) OnAlert(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.OnAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink пишет события в структурированный лог
type LogSink struct {
	log *zap.Logger
}

// NewLogSink создает приемник поверх логгера; nil означает глобальный логгер
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = logger.GetLogger()
	}
	return &LogSink{log: l}
}

// OnSignalCreated логирует новый сигнал
func (s *LogSink) OnSignalCreated(_ context.Context, sig models.Signal) error {
	s.log.Info("Новый сигнал",
		zap.String("id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("direction", string(sig.Direction)),
		zap.String("strategy", sig.StrategyName),
		zap.Float64("confidence", sig.Confidence),
		zap.Float64("entry", sig.EntryPrice),
		zap.Float64("tp1", sig.Targets.TP1),
		zap.Float64("tp2", sig.Targets.TP2),
		zap.Float64("tp3", sig.Targets.TP3),
		zap.Float64("stop_loss", sig.Targets.StopLoss),
		zap.Float64("risk_reward", sig.RiskReward))
	return nil
}

// OnSignalUpdated логирует изменение статуса или достигнутые цели
func (s *LogSink) OnSignalUpdated(_ context.Context, sig models.Signal) error {
	hits := make([]string, len(sig.HitTargets))
	for i, t := range sig.HitTargets {
		hits[i] = string(t)
	}
	s.log.Info("Обновление сигнала",
		zap.String("id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("status", string(sig.Status)),
		zap.Float64("price", sig.CurrentPrice),
		zap.Float64("pnl_pct", sig.RealizedPnLPct),
		zap.Strings("hit_targets", hits))
	return nil
}

// OnAlert логирует алерт
func (s *LogSink) OnAlert(_ context.Context, a models.Alert) error {
	s.log.Warn("Алерт",
		zap.String("symbol", a.Symbol),
		zap.String("type", string(a.Type)),
		zap.Float64("change_pct", a.ChangePct),
		zap.Float64("price", a.Price),
		zap.String("message", a.Message))
	return nil
}
