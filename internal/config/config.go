package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Tracking TrackingConfig `yaml:"tracking"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	Market    string `yaml:"market"` // spot или futures
}

// TradingConfig содержит настройки отслеживаемых инструментов
type TradingConfig struct {
	Symbols     []string       `yaml:"symbols"`
	Interval    string         `yaml:"interval"`
	CandleLimit int            `yaml:"candle_limit"`
	Universe    UniverseConfig `yaml:"universe"`
}

// UniverseConfig расширение списка символов по потоку тикеров
type UniverseConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MinQuoteVolume float64 `yaml:"min_quote_volume"`
	MaxSymbols     int     `yaml:"max_symbols"`
}

// AnalysisConfig содержит настройки генерации сигналов
type AnalysisConfig struct {
	IntervalSeconds     int              `yaml:"interval_seconds"`
	FetchTimeoutSeconds int              `yaml:"fetch_timeout_seconds"`
	Concurrency         int              `yaml:"concurrency"`
	MaxSignalsPerPass   int              `yaml:"max_signals_per_pass"`
	MinCandles          int              `yaml:"min_candles"`
	MinConfidence       float64          `yaml:"min_confidence"`
	MinRiskReward       float64          `yaml:"min_risk_reward"`
	MatchThreshold      float64          `yaml:"match_threshold"`
	RiskPct             float64          `yaml:"risk_pct"`
	Technical           TechnicalConfig  `yaml:"technical"`
	Strategies          []StrategyConfig `yaml:"strategies"`
}

// TechnicalConfig настройки технического анализа
type TechnicalConfig struct {
	RSIPeriod      int     `yaml:"rsi_period"`
	ADXPeriod      int     `yaml:"adx_period"`
	AroonPeriod    int     `yaml:"aroon_period"`
	ATRPeriod      int     `yaml:"atr_period"`
	BBPeriod       int     `yaml:"bb_period"`
	BBDeviation    float64 `yaml:"bb_deviation"`
	MACDFast       int     `yaml:"macd_fast"`
	MACDSlow       int     `yaml:"macd_slow"`
	MACDSignal     int     `yaml:"macd_signal"`
	LevelWindow    int     `yaml:"level_window"`
	LevelTolerance float64 `yaml:"level_tolerance"`
}

// StrategyConfig описание стратегии в конфигурации
type StrategyConfig struct {
	Name                    string   `yaml:"name"`
	RSIMin                  *float64 `yaml:"rsi_min"`
	RSIMax                  *float64 `yaml:"rsi_max"`
	ADXMin                  *float64 `yaml:"adx_min"`
	VolumeMultiplierMin     *float64 `yaml:"volume_multiplier_min"`
	PriceChangeMinPct       *float64 `yaml:"price_change_min_pct"`
	VolatilityMax           *float64 `yaml:"volatility_max"`
	TakeProfitToStopLoss    float64  `yaml:"tp_sl_ratio"`
	BaseConfidence          float64  `yaml:"base_confidence"`
	ExpectedDurationMinutes int      `yaml:"expected_duration_minutes"`
}

// TrackingConfig настройки сопровождения сигналов
type TrackingConfig struct {
	TimeoutMinutes int     `yaml:"timeout_minutes"`
	TP1Pct         float64 `yaml:"tp1_pct"`
	TP2Pct         float64 `yaml:"tp2_pct"`
	TP3Pct         float64 `yaml:"tp3_pct"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	LearningRate   float64 `yaml:"learning_rate"`
	BiasConfidence *bool   `yaml:"bias_confidence"`
	HistoryLimit   int     `yaml:"history_limit"`
	SweepSeconds   int     `yaml:"sweep_seconds"`
}

// AlertsConfig настройки алертов памп/дамп
type AlertsConfig struct {
	Enabled            bool    `yaml:"enabled"`
	ChangeThresholdPct float64 `yaml:"change_threshold_pct"`
	CooldownMinutes    int     `yaml:"cooldown_minutes"`
}

// StorageConfig настройки экспорта событий в InfluxDB
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// MetricsConfig настройки Prometheus
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	JSONFile string `yaml:"json_file"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML, подставляет значения по умолчанию и проверяет результат
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults заполняет незаданные значения
func (c *Config) ApplyDefaults() {
	setString(&c.Binance.Market, "spot")

	setString(&c.Trading.Interval, "15m")
	setInt(&c.Trading.CandleLimit, 100)
	setFloat(&c.Trading.Universe.MinQuoteVolume, 50_000_000)
	setInt(&c.Trading.Universe.MaxSymbols, 50)

	a := &c.Analysis
	setInt(&a.IntervalSeconds, 300)
	setInt(&a.FetchTimeoutSeconds, 10)
	setInt(&a.Concurrency, 8)
	setInt(&a.MaxSignalsPerPass, 10)
	setInt(&a.MinCandles, 50)
	setFloat(&a.MinConfidence, 65)
	setFloat(&a.MinRiskReward, 1.5)
	setFloat(&a.MatchThreshold, 0.7)
	setFloat(&a.RiskPct, 2)

	t := &a.Technical
	setInt(&t.RSIPeriod, 14)
	setInt(&t.ADXPeriod, 14)
	setInt(&t.AroonPeriod, 14)
	setInt(&t.ATRPeriod, 14)
	setInt(&t.BBPeriod, 20)
	setFloat(&t.BBDeviation, 2)
	setInt(&t.MACDFast, 12)
	setInt(&t.MACDSlow, 26)
	setInt(&t.MACDSignal, 9)
	setInt(&t.LevelWindow, 20)
	setFloat(&t.LevelTolerance, 0.02)

	tr := &c.Tracking
	setInt(&tr.TimeoutMinutes, 240)
	setFloat(&tr.TP1Pct, 2)
	setFloat(&tr.TP2Pct, 4)
	setFloat(&tr.TP3Pct, 6)
	setFloat(&tr.StopLossPct, 2)
	setFloat(&tr.LearningRate, 0.1)
	setInt(&tr.HistoryLimit, 1000)
	setInt(&tr.SweepSeconds, 60)
	if tr.BiasConfidence == nil {
		v := true
		tr.BiasConfidence = &v
	}

	setFloat(&c.Alerts.ChangeThresholdPct, 3)
	setInt(&c.Alerts.CooldownMinutes, 60)

	setString(&c.Metrics.Addr, ":9100")
	setString(&c.Log.Level, "info")
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if c.Binance.Market != "spot" && c.Binance.Market != "futures" {
		errs = append(errs, fmt.Errorf("binance.market: ожидается spot или futures, получено %q", c.Binance.Market))
	}
	switch c.Trading.Interval {
	case "15m", "1h", "4h", "1d":
	default:
		errs = append(errs, fmt.Errorf("trading.interval: неподдерживаемый интервал %q", c.Trading.Interval))
	}
	if len(c.Trading.Symbols) == 0 && !c.Trading.Universe.Enabled {
		errs = append(errs, errors.New("trading.symbols: список пуст, а universe выключен"))
	}
	if c.Trading.CandleLimit < c.Analysis.MinCandles {
		errs = append(errs, fmt.Errorf("trading.candle_limit (%d) меньше analysis.min_candles (%d)", c.Trading.CandleLimit, c.Analysis.MinCandles))
	}
	positive := map[string]int{
		"analysis.interval_seconds":      c.Analysis.IntervalSeconds,
		"analysis.fetch_timeout_seconds": c.Analysis.FetchTimeoutSeconds,
		"analysis.concurrency":           c.Analysis.Concurrency,
		"analysis.min_candles":           c.Analysis.MinCandles,
		"tracking.timeout_minutes":       c.Tracking.TimeoutMinutes,
		"tracking.sweep_seconds":         c.Tracking.SweepSeconds,
		"technical.rsi_period":           c.Analysis.Technical.RSIPeriod,
		"technical.adx_period":           c.Analysis.Technical.ADXPeriod,
		"technical.aroon_period":         c.Analysis.Technical.AroonPeriod,
		"technical.atr_period":           c.Analysis.Technical.ATRPeriod,
		"technical.bb_period":            c.Analysis.Technical.BBPeriod,
		"technical.macd_fast":            c.Analysis.Technical.MACDFast,
		"technical.macd_slow":            c.Analysis.Technical.MACDSlow,
		"technical.macd_signal":          c.Analysis.Technical.MACDSignal,
		"technical.level_window":         c.Analysis.Technical.LevelWindow,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] < 1 {
			errs = append(errs, fmt.Errorf("%s: ожидается значение >= 1, получено %d", name, positive[name]))
		}
	}
	if c.Analysis.MaxSignalsPerPass < 0 || c.Tracking.HistoryLimit < 0 || c.Alerts.CooldownMinutes < 0 {
		errs = append(errs, errors.New("analysis.max_signals_per_pass, tracking.history_limit и alerts.cooldown_minutes не могут быть отрицательными"))
	}
	if c.Trading.Universe.Enabled && c.Trading.Universe.MaxSymbols < 1 {
		errs = append(errs, errors.New("trading.universe.max_symbols: ожидается значение >= 1"))
	}
	if c.Analysis.Technical.BBDeviation <= 0 || c.Analysis.Technical.LevelTolerance <= 0 {
		errs = append(errs, errors.New("analysis.technical: bb_deviation и level_tolerance должны быть положительными"))
	}
	if c.Analysis.RiskPct <= 0 || c.Tracking.StopLossPct <= 0 {
		errs = append(errs, errors.New("analysis.risk_pct и tracking.stop_loss_pct должны быть положительными"))
	}
	if c.Analysis.MatchThreshold <= 0 || c.Analysis.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("analysis.match_threshold: %v вне (0, 1]", c.Analysis.MatchThreshold))
	}
	if c.Analysis.MinConfidence < 0 || c.Analysis.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("analysis.min_confidence: %v вне [0, 100]", c.Analysis.MinConfidence))
	}
	if c.Analysis.Technical.MACDFast >= c.Analysis.Technical.MACDSlow {
		errs = append(errs, errors.New("analysis.technical: macd_fast должен быть меньше macd_slow"))
	}
	for i, s := range c.Analysis.Strategies {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("analysis.strategies[%d]: не задано имя", i))
		}
		if s.TakeProfitToStopLoss <= 0 {
			errs = append(errs, fmt.Errorf("analysis.strategies[%d]: tp_sl_ratio должен быть положительным", i))
		}
	}
	tr := c.Tracking
	if !(tr.TP1Pct < tr.TP2Pct && tr.TP2Pct < tr.TP3Pct) {
		errs = append(errs, errors.New("tracking: ожидается tp1_pct < tp2_pct < tp3_pct"))
	}
	if tr.LearningRate <= 0 || tr.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("tracking.learning_rate: %v вне (0, 1]", tr.LearningRate))
	}
	if c.Storage.Enabled && (c.Storage.URL == "" || c.Storage.Bucket == "") {
		errs = append(errs, errors.New("storage: для экспорта нужны url и bucket"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("некорректная конфигурация: %w", errors.Join(errs...))
	}
	return nil
}

// AnalysisInterval период массового прохода
func (c *Config) AnalysisInterval() time.Duration {
	return time.Duration(c.Analysis.IntervalSeconds) * time.Second
}

// FetchTimeout ограничение на загрузку свечей одного символа
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Analysis.FetchTimeoutSeconds) * time.Second
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
