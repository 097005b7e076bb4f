package strategy

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/signalflow/internal/analysis/technical"
	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

// Reason причина, по которой сигнал не был создан. Это штатные исходы, а не ошибки.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonInsufficientHistory    Reason = "insufficient_history"
	ReasonMalformedInput         Reason = "malformed_input"
	ReasonNoStrategyMatch        Reason = "no_strategy_match"
	ReasonHold                   Reason = "hold"
	ReasonInsufficientRiskReward Reason = "insufficient_risk_reward"
	ReasonLowConfidence          Reason = "low_confidence"
)

// ModelReader отдает копию модели обучения стратегии
type ModelReader interface {
	Model(strategy string) (models.LearningModel, bool)
}

// Input данные для оценки одного символа
type Input struct {
	Symbol   string
	Interval string
	Candles  []models.Candle
	Ticker   *models.Ticker // может быть nil
}

// Generator сопоставляет индикаторы со стратегиями и создает сигналы
type Generator struct {
	config     config.AnalysisConfig
	analyzer   *technical.Analyzer
	strategies []Strategy
	models     ModelReader
	now        func() time.Time
}

// Option настройка генератора
type Option func(*Generator)

// WithModels включает корректировку уверенности по моделям обучения
func WithModels(r ModelReader) Option {
	return func(g *Generator) { g.models = r }
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator создает генератор сигналов
func NewGenerator(cfg config.AnalysisConfig, strategies []Strategy, opts ...Option) *Generator {
	g := &Generator{
		config:     cfg,
		analyzer:   technical.NewAnalyzer(cfg.Technical),
		strategies: strategies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Strategies стратегии генератора в порядке приоритета
func (g *Generator) Strategies() []Strategy {
	return g.strategies
}

// MinCandles минимальное число свечей для оценки
func (g *Generator) MinCandles() int {
	return max(g.config.MinCandles, g.analyzer.MinHistory())
}

// Evaluate оценивает символ. strategies == nil означает стратегии генератора.
// Возвращает сигнал со статусом ACTIVE либо причину отказа.
func (g *Generator) Evaluate(in Input, strategies []Strategy) (*models.Signal, Reason) {
	if strategies == nil {
		strategies = g.strategies
	}

	if len(in.Candles) < g.MinCandles() {
		return nil, ReasonInsufficientHistory
	}
	if err := models.ValidateCandles(in.Candles); err != nil {
		return nil, ReasonMalformedInput
	}

	snap, err := g.analyzer.Snapshot(in.Candles)
	if err != nil {
		if errors.Is(err, technical.ErrInsufficientHistory) {
			return nil, ReasonInsufficientHistory
		}
		return nil, ReasonMalformedInput
	}

	market := g.market(in, snap)

	strat, ok := Select(strategies, market, g.config.MatchThreshold)
	if !ok {
		return nil, ReasonNoStrategyMatch
	}

	dir, ok := Tally(snap).Direction()
	if !ok {
		return nil, ReasonHold
	}

	entry := snap.Close
	if in.Ticker != nil && in.Ticker.LastPrice > 0 {
		entry = in.Ticker.LastPrice
	}

	targets := Targets(entry, dir, strat.TPSLRatio, g.config.RiskPct, snap.SupportResistance)
	rr := RiskReward(entry, targets)
	if rr < g.config.MinRiskReward {
		return nil, ReasonInsufficientRiskReward
	}

	confidence := Confidence(strat.BaseConfidence, market, g.model(strat.Name))
	if confidence < g.config.MinConfidence {
		return nil, ReasonLowConfidence
	}

	return &models.Signal{
		ID:                 uuid.NewString(),
		Symbol:             in.Symbol,
		Direction:          dir,
		Confidence:         confidence,
		EntryPrice:         entry,
		Targets:            targets,
		RiskReward:         rr,
		StrategyName:       strat.Name,
		Timeframe:          in.Interval,
		IndicatorsSnapshot: snap,
		MarketSentiment:    Sentiment(snap),
		Volume24h:          market.Volume24h,
		PriceChange24h:     market.PriceChangePct,
		ExpectedDuration:   strat.ExpectedDuration,
		CreatedAt:          g.now(),
		Status:             models.StatusActive,
		CurrentPrice:       entry,
	}, ReasonNone
}

// model копия модели стратегии либо нейтральная модель
func (g *Generator) model(name string) models.LearningModel {
	if g.models != nil {
		if m, ok := g.models.Model(name); ok {
			return m
		}
	}
	return NeutralModel(name)
}

// market объем и изменение цены за 24 часа: из тикера, если он есть, иначе по свечам
func (g *Generator) market(in Input, snap models.IndicatorSnapshot) Market {
	m := Market{Snapshot: snap}
	if in.Ticker != nil {
		m.Volume24h = in.Ticker.QuoteVolume
		m.PriceChangePct = in.Ticker.ChangePct
		return m
	}
	m.Volume24h, m.PriceChangePct = DailyStats(in.Candles, in.Interval)
	return m
}

// DailyStats оценивает объем в котируемой валюте и изменение цены
// за последние 24 часа по свечам интервала.
func DailyStats(candles []models.Candle, interval string) (quoteVolume, changePct float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	bars := BarsPerDay(interval)
	tail := candles
	if len(tail) > bars {
		tail = tail[len(tail)-bars:]
	}
	for _, c := range tail {
		quoteVolume += c.Close * c.Volume
	}

	// Цена закрытия за bars свечей до последней
	last := candles[len(candles)-1].Close
	refIdx := len(candles) - 1 - bars
	if refIdx < 0 {
		refIdx = 0
	}
	ref := candles[refIdx].Close
	if ref != 0 {
		changePct = (last - ref) / ref * 100
	}
	return quoteVolume, changePct
}

// BarsPerDay число свечей интервала за сутки
func BarsPerDay(interval string) int {
	d, err := time.ParseDuration(interval)
	if interval == "1d" {
		d, err = 24*time.Hour, nil
	}
	if err != nil || d <= 0 || d > 24*time.Hour {
		return 1
	}
	return int(24 * time.Hour / d)
}
