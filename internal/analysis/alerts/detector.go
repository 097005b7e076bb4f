package alerts

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/pkg/models"
)

// Detector выявляет резкие движения цены за 24 часа
type Detector struct {
	mu        sync.Mutex
	threshold float64
	cooldown  time.Duration
	lastFired map[string]time.Time
}

// NewDetector создает детектор памп/дамп алертов
func NewDetector(cfg config.AlertsConfig) *Detector {
	return &Detector{
		threshold: cfg.ChangeThresholdPct,
		cooldown:  time.Duration(cfg.CooldownMinutes) * time.Minute,
		lastFired: make(map[string]time.Time),
	}
}

// Check возвращает алерт, если изменение за 24 часа превысило порог.
// Повторный алерт по тому же символу подавляется до истечения паузы.
func (d *Detector) Check(t models.Ticker) (models.Alert, bool) {
	if math.Abs(t.ChangePct) < d.threshold {
		return models.Alert{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastFired[t.Symbol]; ok && t.Time.Sub(last) < d.cooldown {
		return models.Alert{}, false
	}
	d.lastFired[t.Symbol] = t.Time

	kind := models.AlertPump
	if t.ChangePct < 0 {
		kind = models.AlertDump
	}

	return models.Alert{
		ID:        uuid.NewString(),
		Symbol:    t.Symbol,
		Type:      kind,
		Price:     t.LastPrice,
		ChangePct: t.ChangePct,
		Volume:    t.QuoteVolume,
		Message:   fmt.Sprintf("%s %s: %+.2f%% за 24ч, цена %g", kind, t.Symbol, t.ChangePct, t.LastPrice),
		Timestamp: t.Time,
	}, true
}
