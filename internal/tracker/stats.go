package tracker

import (
	"math"
	"sort"
	"time"

	"github.com/skalibog/signalflow/pkg/models"
)

// StrategyStats итоги закрытых сигналов стратегии
type StrategyStats struct {
	Strategy     string
	TotalSignals int
	Wins         int
	WinRate      float64 // в процентах
	Accuracy     float64 // совпадает с WinRate
	AvgPnL       float64
	BestPnL      float64
	WorstPnL     float64
	TotalPnL     float64
	AvgDuration  time.Duration
	SharpeRatio  float64
	MaxDrawdown  float64
}

// DashboardSummary сводка для внешнего интерфейса
type DashboardSummary struct {
	ActiveCount    int
	CompletedCount int
	TotalPnL       float64
	AvgPnL         float64
	WinRate        float64 // в процентах
	RecentClosed   []Record
	Models         []models.LearningModel
}

// computeStats считает статистику по записям в хронологическом порядке закрытия
func computeStats(records []Record) []StrategyStats {
	groups := make(map[string][]Record)
	for _, r := range records {
		groups[r.Strategy] = append(groups[r.Strategy], r)
	}

	stats := make([]StrategyStats, 0, len(groups))
	for name, recs := range groups {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].ClosedAt.Before(recs[j].ClosedAt)
		})

		pnls := make([]float64, len(recs))
		var total float64
		var duration time.Duration
		s := StrategyStats{
			Strategy:     name,
			TotalSignals: len(recs),
			BestPnL:      math.Inf(-1),
			WorstPnL:     math.Inf(1),
		}
		for i, r := range recs {
			pnls[i] = r.PnLPct
			total += r.PnLPct
			duration += r.Elapsed
			if r.PnLPct > 0 {
				s.Wins++
			}
			s.BestPnL = max(s.BestPnL, r.PnLPct)
			s.WorstPnL = min(s.WorstPnL, r.PnLPct)
		}

		n := float64(len(recs))
		s.TotalPnL = total
		s.AvgPnL = total / n
		s.WinRate = float64(s.Wins) / n * 100
		s.Accuracy = s.WinRate
		s.AvgDuration = duration / time.Duration(len(recs))
		s.SharpeRatio = SharpeRatio(pnls)
		s.MaxDrawdown = MaxDrawdown(pnls)
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Strategy < stats[j].Strategy })
	return stats
}

// SharpeRatio mean/stddev по генеральной совокупности, 0 при нулевом отклонении
func SharpeRatio(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var sq float64
	for _, p := range pnls {
		sq += (p - mean) * (p - mean)
	}
	std := math.Sqrt(sq / float64(len(pnls)))
	if std == 0 {
		return 0
	}
	return mean / std
}

// MaxDrawdown наибольшее падение накопленного P&L от пика (пик начинается с 0)
func MaxDrawdown(pnls []float64) float64 {
	var peak, cumulative, drawdown float64
	for _, p := range pnls {
		cumulative += p
		peak = max(peak, cumulative)
		drawdown = max(drawdown, peak-cumulative)
	}
	return drawdown
}
