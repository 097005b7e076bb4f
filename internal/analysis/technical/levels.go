package technical

import (
	"math"
	"sort"

	"github.com/skalibog/signalflow/pkg/models"
)

const (
	pivotSpan         = 2    // свечей с каждой стороны от пивота
	touchStrength     = 20.0 // вклад одного касания в силу уровня
	supportShare      = 0.6  // доля закрытий выше уровня для поддержки
	liquidityMinShare = 0.1  // доля объема для зоны ликвидности
)

// SupportResistance находит уровни поддержки и сопротивления.
// Пивоты ищутся по всему ряду, близкие пивоты (в пределах tolerance)
// объединяются в один уровень. Классификация и зоны ликвидности
// считаются по последним window свечам.
func SupportResistance(candles []models.Candle, window int, tolerance float64) []models.SRLevel {
	pivots := findPivots(candles)
	if len(pivots) == 0 {
		return nil
	}

	trailing := candles
	if window > 0 && len(trailing) > window {
		trailing = trailing[len(trailing)-window:]
	}

	var levels []models.SRLevel
	for _, price := range groupPivots(pivots, tolerance) {
		touches := countTouches(candles, price, tolerance)
		levels = append(levels, models.SRLevel{
			Price:           price,
			Kind:            classifyLevel(trailing, price),
			Strength:        math.Min(float64(touches)*touchStrength, 100),
			TouchCount:      touches,
			IsLiquidityZone: isLiquidityZone(trailing, price, tolerance),
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Strength > levels[j].Strength
	})
	return levels
}

// findPivots возвращает цены локальных экстремумов в окне из 5 свечей
func findPivots(candles []models.Candle) []float64 {
	var pivots []float64
	for i := pivotSpan; i < len(candles)-pivotSpan; i++ {
		isHigh, isLow := true, true
		for j := i - pivotSpan; j <= i+pivotSpan; j++ {
			if j == i {
				continue
			}
			if candles[i].High <= candles[j].High {
				isHigh = false
			}
			if candles[i].Low >= candles[j].Low {
				isLow = false
			}
		}
		if isHigh {
			pivots = append(pivots, candles[i].High)
		}
		if isLow {
			pivots = append(pivots, candles[i].Low)
		}
	}
	return pivots
}

// groupPivots сортирует пивоты и усредняет группы, в которых каждая цена
// отклоняется от первой цены группы не более чем на tolerance.
func groupPivots(pivots []float64, tolerance float64) []float64 {
	sorted := append([]float64(nil), pivots...)
	sort.Float64s(sorted)

	var levels []float64
	first, sum, count := sorted[0], sorted[0], 1
	for _, p := range sorted[1:] {
		if within(p, first, tolerance) {
			sum += p
			count++
			continue
		}
		levels = append(levels, sum/float64(count))
		first, sum, count = p, p, 1
	}
	return append(levels, sum/float64(count))
}

func countTouches(candles []models.Candle, level, tolerance float64) int {
	touches := 0
	for _, c := range candles {
		if within(c.High, level, tolerance) || within(c.Low, level, tolerance) {
			touches++
		}
	}
	return touches
}

func classifyLevel(trailing []models.Candle, level float64) models.LevelKind {
	above := 0
	for _, c := range trailing {
		if c.Close > level {
			above++
		}
	}
	if float64(above) >= supportShare*float64(len(trailing)) {
		return models.Support
	}
	return models.Resistance
}

func isLiquidityZone(trailing []models.Candle, level, tolerance float64) bool {
	var total, near float64
	for _, c := range trailing {
		total += c.Volume
		if within(c.Close, level, tolerance) {
			near += c.Volume
		}
	}
	return total > 0 && near >= liquidityMinShare*total
}

func within(price, level, tolerance float64) bool {
	if level == 0 {
		return price == 0
	}
	return math.Abs(price-level)/level <= tolerance
}
