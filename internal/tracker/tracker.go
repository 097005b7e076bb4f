package tracker

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/logger"
	"github.com/skalibog/signalflow/pkg/models"
)

var (
	ErrDuplicateSignal = errors.New("сигнал уже отслеживается")
	ErrUnknownSignal   = errors.New("сигнал не отслеживается")
	ErrInvalidSignal   = errors.New("некорректный сигнал")
)

// Допуск сравнения P&L с порогами целей
const epsilon = 1e-9

const recentClosedLimit = 10

// Tracker сопровождает активные сигналы и обучает модели стратегий.
// Все таблицы защищены одним мьютексом, наружу отдаются только копии.
type Tracker struct {
	mu       sync.Mutex
	config   config.TrackingConfig
	active   map[string]*active            // по ID сигнала
	bySymbol map[string]map[string]*active // символ -> ID -> запись
	closed   []Record
	models   map[string]models.LearningModel

	completedCount int
	wins           int
	totalPnL       float64

	now func() time.Time
}

// New создает трекер с нейтральными моделями для перечисленных стратегий
func New(cfg config.TrackingConfig, strategies []string) *Tracker {
	t := &Tracker{
		config:   cfg,
		active:   make(map[string]*active),
		bySymbol: make(map[string]map[string]*active),
		models:   make(map[string]models.LearningModel),
		now:      time.Now,
	}
	for _, name := range strategies {
		t.models[name] = NewModel(name, t.now())
	}
	return t
}

// SetClock подменяет источник времени
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Start начинает сопровождение сигнала по цене входа
func (t *Tracker) Start(sig models.Signal) error {
	if sig.ID == "" || sig.Symbol == "" || !validPrice(sig.EntryPrice) {
		return fmt.Errorf("%w: id=%q symbol=%q entry=%v", ErrInvalidSignal, sig.ID, sig.Symbol, sig.EntryPrice)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[sig.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSignal, sig.ID)
	}

	opened := sig.CreatedAt
	if opened.IsZero() {
		opened = t.now()
	}

	sig = sig.Clone()
	sig.Status = models.StatusActive
	sig.CurrentPrice = sig.EntryPrice
	sig.HitTargets = nil

	a := &active{
		signal: sig,
		record: Record{
			SignalID:     sig.ID,
			Symbol:       sig.Symbol,
			Strategy:     sig.StrategyName,
			Direction:    sig.Direction,
			Confidence:   sig.Confidence,
			OpenPrice:    sig.EntryPrice,
			CurrentPrice: sig.EntryPrice,
			HighSeen:     sig.EntryPrice,
			LowSeen:      sig.EntryPrice,
			Status:       Running,
			OpenedAt:     opened,
		},
	}
	t.active[sig.ID] = a
	if t.bySymbol[sig.Symbol] == nil {
		t.bySymbol[sig.Symbol] = make(map[string]*active)
	}
	t.bySymbol[sig.Symbol][sig.ID] = a

	logger.Info("Начато сопровождение сигнала",
		zap.String("id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("direction", string(sig.Direction)),
		zap.String("strategy", sig.StrategyName))
	return nil
}

// UpdatePrice применяет новую цену ко всем сигналам символа.
// Возвращает копии сигналов, у которых появились новые цели или которые закрылись.
func (t *Tracker) UpdatePrice(symbol string, price float64, at time.Time) []models.Signal {
	if !validPrice(price) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bucket := t.bySymbol[symbol]
	var updated []models.Signal
	for _, id := range sortedIDs(bucket) {
		a := bucket[id]
		a.apply(price, at)
		if changed := t.evaluate(a, at); changed {
			sig, _ := a.snapshot()
			updated = append(updated, sig)
		}
	}
	return updated
}

// CheckTimeouts закрывает сигналы, сопровождение которых длится дольше таймаута,
// по последней известной цене.
func (t *Tracker) CheckTimeouts(at time.Time) []models.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closed []models.Signal
	for _, id := range sortedIDs(t.active) {
		a := t.active[id]
		if at.Sub(a.record.OpenedAt) < t.timeout() {
			continue
		}
		a.record.Elapsed = at.Sub(a.record.OpenedAt)
		t.close(a, Completed, ClosedTimeout, at)
		sig, _ := a.snapshot()
		closed = append(closed, sig)
	}
	return closed
}

// Cancel снимает сигнал с сопровождения без обучения модели
func (t *Tracker) Cancel(id string) (models.Signal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.active[id]
	if !ok {
		return models.Signal{}, fmt.Errorf("%w: %s", ErrUnknownSignal, id)
	}
	t.remove(a)
	a.record.CloseReason = ClosedCancelled
	a.record.ClosedAt = t.now()
	a.signal.Status = models.StatusCancelled
	a.signal.ClosedAt = a.record.ClosedAt

	sig, _ := a.snapshot()
	return sig, nil
}

// evaluate проверяет пороги в порядке TP1, TP2, TP3, SL, таймаут
func (t *Tracker) evaluate(a *active, at time.Time) bool {
	c := t.config
	pnl := a.record.PnLPct
	changed := false

	if pnl >= c.TP1Pct-epsilon && a.hit(models.TP1) {
		changed = true
	}
	if pnl >= c.TP2Pct-epsilon && a.hit(models.TP2) {
		changed = true
	}
	if pnl >= c.TP3Pct-epsilon {
		a.hit(models.TP3)
		t.close(a, Completed, ClosedTakeProfit, at)
		return true
	}
	if pnl <= -c.StopLossPct+epsilon {
		a.hit(models.SL)
		t.close(a, Stopped, ClosedStopLoss, at)
		return true
	}
	if a.record.Elapsed >= t.timeout() {
		t.close(a, Completed, ClosedTimeout, at)
		return true
	}
	return changed
}

// close переводит запись в конечное состояние, переносит ее в историю и обучает модель
func (t *Tracker) close(a *active, status RecordStatus, reason CloseReason, at time.Time) {
	t.remove(a)

	r := &a.record
	r.Status = status
	r.CloseReason = reason
	r.ClosedAt = at

	switch reason {
	case ClosedStopLoss:
		a.signal.Status = models.StatusStopped
	case ClosedTimeout:
		a.signal.Status = models.StatusExpired
	default:
		a.signal.Status = models.StatusCompleted
	}
	a.signal.ClosedAt = at
	a.signal.RealizedPnLPct = r.PnLPct

	_, rec := a.snapshot()
	t.closed = append(t.closed, rec)
	if limit := t.config.HistoryLimit; limit > 0 && len(t.closed) > limit {
		t.closed = append([]Record(nil), t.closed[len(t.closed)-limit:]...)
	}

	t.completedCount++
	t.totalPnL += r.PnLPct
	profit := r.PnLPct > 0
	if profit {
		t.wins++
	}

	m, ok := t.models[r.Strategy]
	if !ok {
		m = NewModel(r.Strategy, at)
	}
	t.models[r.Strategy] = Learn(m, profit, t.config.LearningRate, at)

	logger.Info("Сигнал закрыт",
		zap.String("id", r.SignalID),
		zap.String("symbol", r.Symbol),
		zap.String("status", string(status)),
		zap.String("reason", string(reason)),
		zap.Float64("pnl_pct", r.PnLPct),
		zap.Float64("success_rate", t.models[r.Strategy].SuccessRateEMA))
}

func (t *Tracker) remove(a *active) {
	delete(t.active, a.record.SignalID)
	if bucket := t.bySymbol[a.record.Symbol]; bucket != nil {
		delete(bucket, a.record.SignalID)
		if len(bucket) == 0 {
			delete(t.bySymbol, a.record.Symbol)
		}
	}
}

// validPrice положительная конечная цена; NaN и Inf отбрасываются
func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}

func (t *Tracker) timeout() time.Duration {
	return time.Duration(t.config.TimeoutMinutes) * time.Minute
}

// HasActive есть ли активный сигнал по символу
func (t *Tracker) HasActive(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySymbol[symbol]) > 0
}

// ActiveSignals копии активных сигналов, от новых к старым
func (t *Tracker) ActiveSignals() []models.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Signal, 0, len(t.active))
	for _, a := range t.active {
		sig, _ := a.snapshot()
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveRecords копии открытых записей
func (t *Tracker) ActiveRecords() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.active))
	for _, id := range sortedIDs(t.active) {
		_, rec := t.active[id].snapshot()
		out = append(out, rec)
	}
	return out
}

// ClosedRecords копия истории закрытых записей в порядке закрытия
func (t *Tracker) ClosedRecords() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyRecords(t.closed)
}

// StrategyStats статистика закрытых сигналов по стратегиям
func (t *Tracker) StrategyStats() []StrategyStats {
	t.mu.Lock()
	records := copyRecords(t.closed)
	t.mu.Unlock()
	return computeStats(records)
}

// Dashboard сводка по активным и закрытым сигналам
func (t *Tracker) Dashboard() DashboardSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := DashboardSummary{
		ActiveCount:    len(t.active),
		CompletedCount: t.completedCount,
		TotalPnL:       t.totalPnL,
	}
	if t.completedCount > 0 {
		d.AvgPnL = t.totalPnL / float64(t.completedCount)
		d.WinRate = float64(t.wins) / float64(t.completedCount) * 100
	}
	recent := t.closed
	if len(recent) > recentClosedLimit {
		recent = recent[len(recent)-recentClosedLimit:]
	}
	d.RecentClosed = copyRecords(recent)
	d.Models = t.sortedModels()
	return d
}

// Model копия модели обучения стратегии
func (t *Tracker) Model(strategy string) (models.LearningModel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.models[strategy]
	return m, ok
}

// Models копии всех моделей, отсортированные по имени стратегии
func (t *Tracker) Models() []models.LearningModel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedModels()
}

func (t *Tracker) sortedModels() []models.LearningModel {
	out := make([]models.LearningModel, 0, len(t.models))
	for _, m := range t.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

func copyRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		r.HitTargets = append([]models.Target(nil), r.HitTargets...)
		out[i] = r
	}
	return out
}

func sortedIDs(m map[string]*active) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
