package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

const (
	// Размер очереди точек между обработчиками событий и записью в InfluxDB
	influxQueueSize = 1024
	influxBatchSize = 100
	// Период сброса пакета, мс
	influxFlushInterval = 1000
)

// pointWriter часть api.WriteAPI, которую использует приемник
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxDBSink экспортирует сигналы и алерты в InfluxDB.
// События ставятся в очередь и пишутся отдельной горутиной,
// поэтому вызывающий код не ждет сети. При переполнении очереди точка отбрасывается.
type InfluxDBSink struct {
	client influxdb2.Client
	writer pointWriter

	mu      sync.RWMutex
	closed  bool
	queue   chan *write.Point
	stopped chan struct{}
	dropped atomic.Int64

	errorsDone chan struct{}
}

// NewInfluxDBSink создает приемник InfluxDB и проверяет соединение
func NewInfluxDBSink(ctx context.Context, cfg config.StorageConfig) (*InfluxDBSink, error) {
	opts := influxdb2.DefaultOptions().
		SetBatchSize(influxBatchSize).
		SetFlushInterval(influxFlushInterval)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)
	s := newInfluxDBSink(writeAPI, influxQueueSize)
	s.client = client
	s.errorsDone = make(chan struct{})
	go s.drainErrors(writeAPI.Errors())
	return s, nil
}

func newInfluxDBSink(w pointWriter, queueSize int) *InfluxDBSink {
	s := &InfluxDBSink{
		writer:  w,
		queue:   make(chan *write.Point, queueSize),
		stopped: make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump передает точки из очереди в WriteAPI
func (s *InfluxDBSink) pump() {
	defer close(s.stopped)
	for p := range s.queue {
		s.writer.WritePoint(p)
	}
}

// drainErrors логирует асинхронные ошибки записи
func (s *InfluxDBSink) drainErrors(errs <-chan error) {
	defer close(s.errorsDone)
	for err := range errs {
		logger.Warn("Ошибка записи в InfluxDB", zap.Error(err))
	}
}

// enqueue ставит точку в очередь без блокировки
func (s *InfluxDBSink) enqueue(p *write.Point) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- p:
	default:
		n := s.dropped.Add(1)
		logger.Warn("Очередь InfluxDB переполнена, точка отброшена",
			zap.String("measurement", p.Name()),
			zap.Int64("dropped", n))
	}
}

// Dropped число точек, отброшенных из-за переполнения очереди
func (s *InfluxDBSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close дописывает очередь, сбрасывает буфер и закрывает соединение
func (s *InfluxDBSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.stopped
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	if s.errorsDone != nil {
		<-s.errorsDone
	}
}

// OnSignalCreated сохраняет новый сигнал
func (s *InfluxDBSink) OnSignalCreated(_ context.Context, sig models.Signal) error {
	s.enqueue(signalPoint(sig))
	return nil
}

// OnSignalUpdated сохраняет состояние сопровождения сигнала
func (s *InfluxDBSink) OnSignalUpdated(_ context.Context, sig models.Signal) error {
	s.enqueue(signalUpdatePoint(sig, time.Now()))
	return nil
}

// OnAlert сохраняет алерт
func (s *InfluxDBSink) OnAlert(_ context.Context, a models.Alert) error {
	s.enqueue(alertPoint(a))
	return nil
}

func signalPoint(sig models.Signal) *write.Point {
	snap := sig.IndicatorsSnapshot
	return influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":    sig.Symbol,
			"direction": string(sig.Direction),
			"strategy":  sig.StrategyName,
			"timeframe": sig.Timeframe,
		},
		map[string]interface{}{
			"id":          sig.ID,
			"confidence":  sig.Confidence,
			"entry":       sig.EntryPrice,
			"tp1":         sig.Targets.TP1,
			"tp2":         sig.Targets.TP2,
			"tp3":         sig.Targets.TP3,
			"stop_loss":   sig.Targets.StopLoss,
			"risk_reward": sig.RiskReward,
			"rsi":         snap.RSI,
			"adx":         snap.ADX,
			"aroon":       snap.AroonOscillator,
			"macd":        snap.MACD,
			"volume_24h":  sig.Volume24h,
			"change_24h":  sig.PriceChange24h,
			"sentiment":   string(sig.MarketSentiment),
		},
		sig.CreatedAt,
	)
}

func signalUpdatePoint(sig models.Signal, now time.Time) *write.Point {
	hits := make([]string, len(sig.HitTargets))
	for i, t := range sig.HitTargets {
		hits[i] = string(t)
	}
	at := sig.ClosedAt
	if at.IsZero() {
		at = now
	}
	return influxdb2.NewPoint(
		"signal_updates",
		map[string]string{
			"symbol":   sig.Symbol,
			"strategy": sig.StrategyName,
			"status":   string(sig.Status),
		},
		map[string]interface{}{
			"id":          sig.ID,
			"price":       sig.CurrentPrice,
			"pnl_pct":     sig.RealizedPnLPct,
			"hit_targets": strings.Join(hits, ","),
		},
		at,
	)
}

func alertPoint(a models.Alert) *write.Point {
	return influxdb2.NewPoint(
		"alerts",
		map[string]string{
			"symbol": a.Symbol,
			"type":   string(a.Type),
		},
		map[string]interface{}{
			"id":         a.ID,
			"price":      a.Price,
			"change_pct": a.ChangePct,
			"volume":     a.Volume,
			"message":    a.Message,
		},
		a.Timestamp,
	)
}
