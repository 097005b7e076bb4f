package strategy

import "github.com/skalibog/signalflow/pkg/models"

// Votes голоса индикаторов за направление
type Votes struct {
	Long  int
	Short int
}

// Tally подсчитывает голоса индикаторов.
// ADX выше 25 добавляет голос уже лидирующей стороне; при равенстве голос не отдается.
func Tally(snap models.IndicatorSnapshot) Votes {
	var v Votes

	// RSI
	switch {
	case snap.RSI < 30:
		v.Long += 2
	case snap.RSI > 70:
		v.Short += 2
	case snap.RSI > 50:
		v.Long++
	default:
		v.Short++
	}

	// MACD
	if snap.MACD > 0 {
		v.Long++
	} else if snap.MACD < 0 {
		v.Short++
	}

	// Aroon
	if snap.AroonOscillator > 20 {
		v.Long++
	} else if snap.AroonOscillator < -20 {
		v.Short++
	}

	// Bollinger
	switch snap.Bollinger.Position {
	case models.BandLower:
		v.Long++
	case models.BandUpper:
		v.Short++
	}

	// Подтверждение тренда
	if snap.ADX > 25 {
		if v.Long > v.Short {
			v.Long++
		} else if v.Short > v.Long {
			v.Short++
		}
	}
	return v
}

// Direction направление по перевесу голосов больше чем на один.
// false означает HOLD.
func (v Votes) Direction() (models.Direction, bool) {
	switch {
	case v.Long > v.Short+1:
		return models.Long, true
	case v.Short > v.Long+1:
		return models.Short, true
	default:
		return "", false
	}
}

// Sentiment настроение рынка по большинству из RSI, MACD и Aroon
func Sentiment(snap models.IndicatorSnapshot) models.Sentiment {
	bull, bear := 0, 0
	for _, up := range []bool{snap.RSI > 50, snap.MACD > 0, snap.AroonOscillator > 50} {
		if up {
			bull++
		} else {
			bear++
		}
	}
	switch {
	case bull > bear:
		return models.Bullish
	case bear > bull:
		return models.Bearish
	default:
		return models.Neutral
	}
}
