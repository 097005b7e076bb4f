package tracker

import (
	"time"

	"github.com/skalibog/signalflow/pkg/models"
)

// RecordStatus состояние записи сопровождения
type RecordStatus string

const (
	Running   RecordStatus = "RUNNING"
	Completed RecordStatus = "COMPLETED"
	Stopped   RecordStatus = "STOPPED"
)

// CloseReason причина закрытия записи
type CloseReason string

const (
	ClosedTakeProfit CloseReason = "take_profit"
	ClosedStopLoss   CloseReason = "stop_loss"
	ClosedTimeout    CloseReason = "timeout"
	ClosedCancelled  CloseReason = "cancelled"
)

// Record результат сопровождения одного сигнала
type Record struct {
	SignalID     string
	Symbol       string
	Strategy     string
	Direction    models.Direction
	Confidence   float64
	OpenPrice    float64
	CurrentPrice float64
	HighSeen     float64
	LowSeen      float64
	PnLPct       float64
	Elapsed      time.Duration
	HitTargets   []models.Target
	Status       RecordStatus
	CloseReason  CloseReason
	OpenedAt     time.Time
	ClosedAt     time.Time
}

// Hit проверяет, была ли достигнута цель
func (r Record) Hit(t models.Target) bool {
	for _, h := range r.HitTargets {
		if h == t {
			return true
		}
	}
	return false
}

// active изменяемое состояние открытой записи, доступно только под мьютексом трекера
type active struct {
	signal models.Signal
	record Record
}

func (a *active) hit(t models.Target) bool {
	if a.record.Hit(t) {
		return false
	}
	a.record.HitTargets = append(a.record.HitTargets, t)
	a.signal.HitTargets = append(a.signal.HitTargets, t)
	return true
}

// apply обновляет цену, P&L и время. Для SHORT знак P&L инвертируется.
func (a *active) apply(price float64, at time.Time) {
	r := &a.record
	r.CurrentPrice = price
	r.HighSeen = max(r.HighSeen, price)
	r.LowSeen = min(r.LowSeen, price)

	pnl := (price - r.OpenPrice) / r.OpenPrice * 100
	if r.Direction == models.Short {
		pnl = -pnl
	}
	r.PnLPct = pnl
	if at.After(r.OpenedAt) {
		r.Elapsed = at.Sub(r.OpenedAt)
	}

	a.signal.CurrentPrice = price
	a.signal.RealizedPnLPct = pnl
}

func (a *active) snapshot() (models.Signal, Record) {
	rec := a.record
	rec.HitTargets = append([]models.Target(nil), a.record.HitTargets...)
	return a.signal.Clone(), rec
}
