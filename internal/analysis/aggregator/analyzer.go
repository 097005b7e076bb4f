package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/signalflow/internal/analysis/alerts"
	"github.com/skalibog/signalflow/internal/analysis/strategy"
	"github.com/skalibog/signalflow/internal/analysis/technical"
	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/internal/metrics"
	"github.com/skalibog/signalflow/internal/storage"
	"github.com/skalibog/signalflow/internal/tracker"
	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

// CandleSource источник исторических свечей
type CandleSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// TickerStream источник потока тикеров
type TickerStream interface {
	StreamTickers(ctx context.Context, out chan<- models.Ticker) error
}

// Суффиксы базового актива токенов с плечом
var leveragedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR", "3L", "3S"}

var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH", "BNB"}

// Analyzer объединяет генератор, трекер и приемники событий
type Analyzer struct {
	config    *config.Config
	source    CandleSource
	generator *strategy.Generator
	technical *technical.Analyzer
	tracker   *tracker.Tracker
	sink      storage.Sink
	metrics   *metrics.Metrics
	alerts    *alerts.Detector

	mu      sync.RWMutex
	tickers map[string]models.Ticker

	now func() time.Time
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(
	cfg *config.Config,
	source CandleSource,
	gen *strategy.Generator,
	tr *tracker.Tracker,
	sink storage.Sink,
	m *metrics.Metrics,
) *Analyzer {
	if sink == nil {
		sink = storage.Multi{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	a := &Analyzer{
		config:    cfg,
		source:    source,
		generator: gen,
		technical: technical.NewAnalyzer(cfg.Analysis.Technical),
		tracker:   tr,
		sink:      sink,
		metrics:   m,
		tickers:   make(map[string]models.Ticker),
		now:       time.Now,
	}
	if cfg.Alerts.Enabled {
		a.alerts = alerts.NewDetector(cfg.Alerts)
	}
	return a
}

// SetClock подменяет источник времени
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

// Ticker последний тикер символа из потока
func (a *Analyzer) Ticker(symbol string) (models.Ticker, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tickers[symbol]
	return t, ok
}

// Universe список символов для массового прохода: настроенные символы,
// дополненные ликвидными символами из потока тикеров.
func (a *Analyzer) Universe() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(a.config.Trading.Symbols))
	for _, s := range a.config.Trading.Symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	u := a.config.Trading.Universe
	if !u.Enabled {
		return out
	}

	a.mu.RLock()
	candidates := make([]models.Ticker, 0, len(a.tickers))
	for _, t := range a.tickers {
		if seen[t.Symbol] || t.QuoteVolume < u.MinQuoteVolume || t.ChangePct == 0 || IsLeveraged(t.Symbol) {
			continue
		}
		candidates = append(candidates, t)
	}
	a.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].QuoteVolume != candidates[j].QuoteVolume {
			return candidates[i].QuoteVolume > candidates[j].QuoteVolume
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
	for _, t := range candidates {
		if len(out) >= u.MaxSymbols {
			break
		}
		out = append(out, t.Symbol)
	}
	return out
}

// IsLeveraged определяет токены с плечом (BTCUPUSDT, ETH3LUSDT и т.п.)
func IsLeveraged(symbol string) bool {
	base := symbol
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			base = strings.TrimSuffix(symbol, q)
			break
		}
	}
	for _, suf := range leveragedSuffixes {
		// короткие базовые активы вроде JUP не считаются токенами с плечом
		if strings.HasSuffix(base, suf) && len(base)-len(suf) >= 3 {
			return true
		}
	}
	return false
}

// GenerateSignals оценивает все символы, ранжирует сигналы по уверенности
// и ставит лучшие на сопровождение. Ошибки отдельных символов не прерывают проход.
func (a *Analyzer) GenerateSignals(ctx context.Context) ([]models.Signal, error) {
	symbols := a.Universe()

	var (
		mu         sync.Mutex
		candidates []*models.Signal
	)

	g := new(errgroup.Group)
	g.SetLimit(max(a.config.Analysis.Concurrency, 1))

	for _, symbol := range symbols {
		if a.tracker.HasActive(symbol) {
			logger.Debug("Символ уже сопровождается", zap.String("symbol", symbol))
			continue
		}
		if ctx.Err() != nil {
			break
		}
		symbol := symbol
		g.Go(func() error {
			sig, err := a.evaluateSymbol(ctx, symbol)
			if err != nil {
				// Логируем ошибку, но продолжаем для других символов
				a.metrics.FetchErrors.Inc()
				logger.Warn("Ошибка анализа символа", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			if sig != nil {
				mu.Lock()
				candidates = append(candidates, sig)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
	if limit := a.config.Analysis.MaxSignalsPerPass; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	emitted := make([]models.Signal, 0, len(candidates))
	for _, sig := range candidates {
		if err := a.tracker.Start(*sig); err != nil {
			logger.Warn("Не удалось начать сопровождение", zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		a.metrics.SignalsEmitted.WithLabelValues(sig.StrategyName, string(sig.Direction)).Inc()
		if err := a.sink.OnSignalCreated(ctx, *sig); err != nil {
			logger.Warn("Ошибка экспорта сигнала", zap.String("id", sig.ID), zap.Error(err))
		}
		emitted = append(emitted, *sig)
	}

	a.metrics.ActiveSignals.Set(float64(len(a.tracker.ActiveSignals())))
	logger.Info("Массовый проход завершен",
		zap.Int("symbols", len(symbols)),
		zap.Int("candidates", len(candidates)),
		zap.Int("emitted", len(emitted)))
	return emitted, nil
}

// evaluateSymbol загружает свечи и оценивает символ.
// nil без ошибки означает штатный отказ генератора.
func (a *Analyzer) evaluateSymbol(ctx context.Context, symbol string) (*models.Signal, error) {
	in, err := a.input(ctx, symbol)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sig, reason := a.generator.Evaluate(in, nil)
	a.metrics.ObserveEvaluate(start)

	if reason != strategy.ReasonNone {
		a.metrics.SignalsRejected.WithLabelValues(string(reason)).Inc()
		logger.Debug("Сигнал не создан", zap.String("symbol", symbol), zap.String("reason", string(reason)))
		return nil, nil
	}
	return sig, nil
}

func (a *Analyzer) input(ctx context.Context, symbol string) (strategy.Input, error) {
	fctx, cancel := context.WithTimeout(ctx, a.config.FetchTimeout())
	defer cancel()

	interval := a.config.Trading.Interval
	candles, err := a.source.GetKlines(fctx, symbol, interval, a.config.Trading.CandleLimit)
	if err != nil {
		return strategy.Input{}, fmt.Errorf("загрузка свечей: %w", err)
	}

	in := strategy.Input{Symbol: symbol, Interval: interval, Candles: candles}
	if t, ok := a.Ticker(symbol); ok {
		in.Ticker = &t
	}
	return in, nil
}

// Report результат разового анализа символа
type Report struct {
	Symbol     string                    `json:"symbol"`
	Interval   string                    `json:"interval"`
	Candles    int                       `json:"candles"`
	Strategies []string                  `json:"strategies"`
	Snapshot   *models.IndicatorSnapshot `json:"snapshot,omitempty"`
	Signal     *models.Signal            `json:"signal,omitempty"`
	Reason     strategy.Reason           `json:"reason,omitempty"`
}

// Analyze разово оценивает символ без постановки на сопровождение
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (Report, error) {
	in, err := a.input(ctx, symbol)
	if err != nil {
		return Report{}, err
	}

	r := Report{Symbol: symbol, Interval: in.Interval, Candles: len(in.Candles)}
	for _, st := range a.generator.Strategies() {
		r.Strategies = append(r.Strategies, st.Name)
	}
	if snap, err := a.technical.Snapshot(in.Candles); err == nil {
		r.Snapshot = &snap
	}
	r.Signal, r.Reason = a.generator.Evaluate(in, nil)
	return r, nil
}
