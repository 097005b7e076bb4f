package aggregator

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/signalflow/internal/analysis/strategy"
	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/internal/metrics"
	"github.com/skalibog/signalflow/internal/tracker"
	"github.com/skalibog/signalflow/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	candles map[string][]models.Candle
	calls   map[string]int
}

func (f *fakeSource) GetKlines(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	c, ok := f.candles[symbol]
	if !ok {
		return nil, errors.New("нет данных")
	}
	return c, nil
}

type fakeSink struct {
	mu      sync.Mutex
	created []models.Signal
	updated []models.Signal
	alerts  []models.Alert
}

func (s *fakeSink) OnSignalCreated(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, sig)
	return nil
}

func (s *fakeSink) OnSignalUpdated(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, sig)
	return nil
}

func (s *fakeSink) OnAlert(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

// recoveringSeries снижение 110 -> 104 и восстановление пилой до 112.8
// со всплеском объема на последней свече.
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

	start := testNow.Add(-time.Duration(len(closes)) * 15 * time.Minute)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	out[len(out)-1].Volume = 3000
	return out
}

type fixture struct {
	analyzer *Analyzer
	source   *fakeSource
	sink     *fakeSink
	tracker  *tracker.Tracker
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Trading.Symbols = symbols
	cfg.Alerts.Enabled = true

	volume := 1.5
	strategies := []strategy.Strategy{{
		Name:             "VOLUME",
		Conditions:       strategy.Conditions{VolumeMultiplierMin: &volume},
		TPSLRatio:        2,
		BaseConfidence:   75,
		ExpectedDuration: time.Hour,
	}}

	tr := tracker.New(cfg.Tracking, []string{"VOLUME"})
	tr.SetClock(func() time.Time { return testNow })
	gen := strategy.NewGenerator(cfg.Analysis, strategies,
		strategy.WithModels(tr),
		strategy.WithClock(func() time.Time { return testNow }))

	src := &fakeSource{candles: make(map[string][]models.Candle), calls: make(map[string]int)}
	sink := &fakeSink{}
	m := metrics.New(nil)

	a := NewAnalyzer(cfg, src, gen, tr, sink, m)
	a.SetClock(func() time.Time { return testNow })
	return &fixture{analyzer: a, source: src, sink: sink, tracker: tr, metrics: m}
}

func TestGenerateSignalsRanksAndCaps(t *testing.T) {
	f := newFixture(t, "SOLUSDT", "AVAXUSDT", "DOTUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()
	f.source.candles["AVAXUSDT"] = recoveringSeries()
	// DOTUSDT без данных: ошибка загрузки не должна прерывать проход
	f.analyzer.config.Analysis.MaxSignalsPerPass = 1

	// объем из тикера добавляет +5 к уверенности AVAXUSDT
	f.analyzer.HandleTick(context.Background(), models.Ticker{
		Symbol: "AVAXUSDT", LastPrice: 112.8, ChangePct: 1, QuoteVolume: 150_000_000, Time: testNow,
	})

	emitted, err := f.analyzer.GenerateSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, emitted, 1)

	sig := emitted[0]
	assert.Equal(t, "AVAXUSDT", sig.Symbol)
	assert.Equal(t, models.Long, sig.Direction)
	assert.InDelta(t, 80, sig.Confidence, 1e-9)
	assert.InDelta(t, 150_000_000, sig.Volume24h, 1e-6)

	assert.True(t, f.tracker.HasActive("AVAXUSDT"))
	assert.False(t, f.tracker.HasActive("SOLUSDT"))
	require.Len(t, f.sink.created, 1)
	assert.Equal(t, sig.ID, f.sink.created[0].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignalsEmitted.WithLabelValues("VOLUME", "LONG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FetchErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveSignals))
}

func TestGenerateSignalsSkipsTrackedSymbols(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()
	ctx := context.Background()

	first, err := f.analyzer.GenerateSignals(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.InDelta(t, 75, first[0].Confidence, 1e-9)
	assert.InDelta(t, 112.8, first[0].EntryPrice, 1e-9)

	second, err := f.analyzer.GenerateSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, f.source.calls["SOLUSDT"])
}

func TestGenerateSignalsCountsRejections(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()[:20]

	emitted, err := f.analyzer.GenerateSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, emitted)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignalsRejected.WithLabelValues(string(strategy.ReasonInsufficientHistory))))
}

func TestGenerateSignalsCancelled(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.analyzer.GenerateSignals(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleTickClosesSignal(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()
	ctx := context.Background()

	emitted, err := f.analyzer.GenerateSignals(ctx)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	entry := emitted[0].EntryPrice

	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "SOLUSDT", LastPrice: entry * 1.025, ChangePct: 1, Time: testNow.Add(time.Minute)})
	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "SOLUSDT", LastPrice: entry * 1.07, ChangePct: 1, Time: testNow.Add(2 * time.Minute)})

	require.Len(t, f.sink.updated, 2)
	assert.Equal(t, []models.Target{models.TP1}, f.sink.updated[0].HitTargets)
	assert.Equal(t, models.StatusCompleted, f.sink.updated[1].Status)
	assert.False(t, f.tracker.HasActive("SOLUSDT"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignalsClosed.WithLabelValues("VOLUME", "COMPLETED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TicksTotal))

	m, ok := f.tracker.Model("VOLUME")
	require.True(t, ok)
	assert.Equal(t, 1, m.AdaptationCount)
}

func TestHandleTickAlerts(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	ctx := context.Background()

	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "PEPEUSDT", LastPrice: 0.00001, ChangePct: 12, Time: testNow})
	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "PEPEUSDT", LastPrice: 0.00001, ChangePct: 13, Time: testNow.Add(time.Minute)})
	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "BTCUSDT", LastPrice: 60000, ChangePct: 0.4, Time: testNow})
	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "", LastPrice: 1})

	require.Len(t, f.sink.alerts, 1)
	assert.Equal(t, models.AlertPump, f.sink.alerts[0].Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlertsTotal.WithLabelValues("PUMP")))

	tk, ok := f.analyzer.Ticker("PEPEUSDT")
	require.True(t, ok)
	assert.Equal(t, 13.0, tk.ChangePct)
}

func TestHandleTickSkipsNonFinitePrice(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()
	ctx := context.Background()

	_, err := f.analyzer.GenerateSignals(ctx)
	require.NoError(t, err)

	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "SOLUSDT", LastPrice: math.NaN(), ChangePct: 1, Time: testNow})
	f.analyzer.HandleTick(ctx, models.Ticker{Symbol: "SOLUSDT", LastPrice: math.Inf(1), ChangePct: 1, Time: testNow})

	_, cached := f.analyzer.Ticker("SOLUSDT")
	assert.False(t, cached)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.TicksTotal))
	assert.True(t, f.tracker.HasActive("SOLUSDT"))
}

func TestSweepExpiresSilentSymbols(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()
	ctx := context.Background()

	_, err := f.analyzer.GenerateSignals(ctx)
	require.NoError(t, err)

	f.analyzer.Sweep(ctx, testNow.Add(time.Hour))
	assert.Empty(t, f.sink.updated)

	f.analyzer.Sweep(ctx, testNow.Add(4*time.Hour))
	require.Len(t, f.sink.updated, 1)
	assert.Equal(t, models.StatusExpired, f.sink.updated[0].Status)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSignals))
}

func TestUniverse(t *testing.T) {
	f := newFixture(t, "BTCUSDT", "ETHUSDT", "BTCUSDT")
	a := f.analyzer
	a.config.Trading.Universe = config.UniverseConfig{Enabled: true, MinQuoteVolume: 50_000_000, MaxSymbols: 4}

	ctx := context.Background()
	for _, tk := range []models.Ticker{
		{Symbol: "SOLUSDT", LastPrice: 150, ChangePct: 2, QuoteVolume: 300_000_000},
		{Symbol: "DOGEUSDT", LastPrice: 0.1, ChangePct: -1, QuoteVolume: 200_000_000},
		{Symbol: "XRPUSDT", LastPrice: 0.5, ChangePct: 1, QuoteVolume: 100_000_000},
		{Symbol: "ADAUSDT", LastPrice: 0.4, ChangePct: 1, QuoteVolume: 10_000_000},
		{Symbol: "ETHUPUSDT", LastPrice: 5, ChangePct: 4, QuoteVolume: 900_000_000},
		{Symbol: "TRXUSDT", LastPrice: 0.1, ChangePct: 0, QuoteVolume: 800_000_000},
		{Symbol: "ETHUSDT", LastPrice: 3000, ChangePct: 1, QuoteVolume: 5_000_000_000},
	} {
		a.HandleTick(ctx, tk)
	}

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT"}, a.Universe())

	a.config.Trading.Universe.Enabled = false
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, a.Universe())
}

func TestIsLeveraged(t *testing.T) {
	cases := map[string]bool{
		"BTCUPUSDT":   true,
		"ETHDOWNUSDT": true,
		"XRPBULLUSDT": true,
		"EOSBEARUSDT": true,
		"BTC3LUSDT":   true,
		"ETH3SUSDT":   true,
		"BTCUSDT":     false,
		"JUPUSDT":     false,
		"SUPERUSDT":   false,
	}
	for symbol, want := range cases {
		assert.Equal(t, want, IsLeveraged(symbol), symbol)
	}
}

func TestAnalyzeReport(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()

	r, err := f.analyzer.Analyze(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, 60, r.Candles)
	assert.Equal(t, []string{"VOLUME"}, r.Strategies)
	require.NotNil(t, r.Snapshot)
	require.NotNil(t, r.Signal)
	assert.Equal(t, strategy.ReasonNone, r.Reason)
	assert.False(t, f.tracker.HasActive("SOLUSDT"))

	_, err = f.analyzer.Analyze(context.Background(), "DOTUSDT")
	require.Error(t, err)
}

type closedStream struct{}

func (closedStream) StreamTickers(ctx context.Context, _ chan<- models.Ticker) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, "SOLUSDT")
	f.source.candles["SOLUSDT"] = recoveringSeries()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.analyzer.Run(ctx, closedStream{}) }()

	require.Eventually(t, func() bool { return f.tracker.HasActive("SOLUSDT") }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены")
	}
}

// stalledSource блокирует загрузку свечей до отмены контекста
type stalledSource struct {
	entered  chan struct{}
	returned atomic.Bool
}

func (s *stalledSource) GetKlines(ctx context.Context, _, _ string, _ int) ([]models.Candle, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	s.returned.Store(true)
	return nil, ctx.Err()
}

// tickAfter отправляет тики после того, как массовый проход начал загрузку
type tickAfter struct {
	wait  <-chan struct{}
	ticks []models.Ticker
}

func (s tickAfter) StreamTickers(ctx context.Context, out chan<- models.Ticker) error {
	select {
	case <-s.wait:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, t := range s.ticks {
		out <- t
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSlowBulkPassDoesNotStallTicks(t *testing.T) {
	f := newFixture(t, "AVAXUSDT")
	src := &stalledSource{entered: make(chan struct{}, 1)}
	f.analyzer.source = src

	tracked := models.Signal{
		ID: "tracked", Symbol: "SOLUSDT", Direction: models.Long, EntryPrice: 100,
		StrategyName: "VOLUME", CreatedAt: testNow, Status: models.StatusActive,
	}
	require.NoError(t, f.tracker.Start(tracked))

	stream := tickAfter{
		wait:  src.entered,
		ticks: []models.Ticker{{Symbol: "SOLUSDT", LastPrice: 106.5, ChangePct: 1, Time: testNow.Add(time.Minute)}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.analyzer.Run(ctx, stream) }()

	require.Eventually(t, func() bool { return !f.tracker.HasActive("SOLUSDT") }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, src.returned.Load(), "массовый проход должен быть еще заблокирован")

	closed := f.tracker.ClosedRecords()
	require.Len(t, closed, 1)
	assert.Equal(t, tracker.ClosedTakeProfit, closed[0].CloseReason)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены")
	}
	assert.True(t, src.returned.Load())
}
