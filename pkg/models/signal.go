package models

import "time"

// Direction направление сигнала
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Side возвращает сторону ордера для направления
func (d Direction) Side() string {
	if d == Short {
		return "SELL"
	}
	return "BUY"
}

// SignalStatus статус сигнала
type SignalStatus string

const (
	StatusActive    SignalStatus = "ACTIVE"
	StatusCompleted SignalStatus = "COMPLETED"
	StatusStopped   SignalStatus = "STOPPED"
	StatusExpired   SignalStatus = "EXPIRED"
	StatusCancelled SignalStatus = "CANCELLED"
)

// Trend направление тренда по скользящим средним
type Trend string

const (
	TrendUp       Trend = "UP"
	TrendDown     Trend = "DOWN"
	TrendSideways Trend = "SIDEWAYS"
)

// BandPosition положение цены относительно полос Боллинджера
type BandPosition string

const (
	BandUpper  BandPosition = "UPPER"
	BandMiddle BandPosition = "MIDDLE"
	BandLower  BandPosition = "LOWER"
)

// LevelKind тип уровня
type LevelKind string

const (
	Support    LevelKind = "SUPPORT"
	Resistance LevelKind = "RESISTANCE"
)

// Sentiment общее настроение рынка по индикаторам
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// Target идентификатор цели сопровождения
type Target string

const (
	TP1 Target = "TP1"
	TP2 Target = "TP2"
	TP3 Target = "TP3"
	SL  Target = "SL"
)

// BollingerBands последние значения полос Боллинджера
type BollingerBands struct {
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64
	PercentB  float64
	Position  BandPosition
}

// SRLevel уровень поддержки или сопротивления
type SRLevel struct {
	Price           float64
	Kind            LevelKind
	Strength        float64
	TouchCount      int
	IsLiquidityZone bool
}

// IndicatorSnapshot значения индикаторов на последней свече
type IndicatorSnapshot struct {
	RSI               float64
	ADX               float64
	AroonOscillator   float64
	MACD              float64
	MACDSignal        float64
	MACDHistogram     float64
	Bollinger         BollingerBands
	ATR               float64
	VolumeRatio       float64
	Volatility        float64
	Trend             Trend
	SupportResistance []SRLevel
	Close             float64
}

// Targets уровни фиксации прибыли и стоп-лосс
type Targets struct {
	TP1      float64
	TP2      float64
	TP3      float64
	StopLoss float64
}

// Signal торговая рекомендация
type Signal struct {
	ID                 string
	Symbol             string
	Direction          Direction
	Confidence         float64
	EntryPrice         float64
	Targets            Targets
	RiskReward         float64
	StrategyName       string
	Timeframe          string
	IndicatorsSnapshot IndicatorSnapshot
	MarketSentiment    Sentiment
	Volume24h          float64
	PriceChange24h     float64
	ExpectedDuration   time.Duration
	CreatedAt          time.Time
	Status             SignalStatus

	// Заполняются трекером
	CurrentPrice   float64
	RealizedPnLPct float64
	HitTargets     []Target
	ClosedAt       time.Time
}

// Clone возвращает копию сигнала, не разделяющую срезы с оригиналом
func (s Signal) Clone() Signal {
	c := s
	if s.HitTargets != nil {
		c.HitTargets = append([]Target(nil), s.HitTargets...)
	}
	if s.IndicatorsSnapshot.SupportResistance != nil {
		c.IndicatorsSnapshot.SupportResistance = append([]SRLevel(nil), s.IndicatorsSnapshot.SupportResistance...)
	}
	return c
}

// Weights веса компонентов модели обучения
type Weights struct {
	RSI        float64
	ADX        float64
	Volume     float64
	Volatility float64
	Momentum   float64
}

// Sum сумма всех весов
func (w Weights) Sum() float64 {
	return w.RSI + w.ADX + w.Volume + w.Volatility + w.Momentum
}

// LearningModel адаптивная модель стратегии
type LearningModel struct {
	Strategy        string
	Weights         Weights
	SuccessRateEMA  float64
	AdaptationCount int
	LastUpdate      time.Time
}
