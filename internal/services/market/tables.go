package market

import "FKSEngine/internal/domain/models"

// regimePressure is the regime's contribution to market pressure.
var regimePressure = map[models.RegimeType]float64{
	models.RegimeStrongTrend:    1.5,
	models.RegimeBreakout:       1.8,
	models.RegimeVolatile:       1.6,
	models.RegimeHighVolatility: 1.8,
	models.RegimeTrending:       1.2,
	models.RegimeChoppy:         0.9,
	models.RegimeRanging:        0.7,
	models.RegimeCalm:           0.5,
	models.RegimeLowVolatility:  0.5,
	models.RegimeNeutral:        1.0,
	models.RegimeBullish:        1.1,
	models.RegimeBearish:        1.1,
}

var regimeOpportunity = map[models.RegimeType]float64{
	models.RegimeStrongTrend:    0.25,
	models.RegimeBreakout:       0.20,
	models.RegimeTrending:       0.15,
	models.RegimeBullish:        0.10,
	models.RegimeBearish:        0.10,
	models.RegimeVolatile:       0.05,
	models.RegimeNeutral:        0,
	models.RegimeHighVolatility: -0.05,
	models.RegimeRanging:        -0.05,
	models.RegimeCalm:           -0.10,
	models.RegimeLowVolatility:  -0.10,
	models.RegimeChoppy:         -0.15,
}

var sessionOpportunity = map[models.Session]float64{
	models.SessionLondonOpen:    0.20,
	models.SessionNYOpen:        0.20,
	models.SessionLondonSession: 0.10,
	models.SessionNYSession:     0.10,
	models.SessionLondonClose:   0.05,
	models.SessionNYClose:       -0.10,
	models.SessionAsian:         -0.10,
	models.SessionWeekend:       -0.30,
}

const weekendPenalty = 0.25

var regimeRisk = map[models.RegimeType]float64{
	models.RegimeStrongTrend:    1.2,
	models.RegimeTrending:       1.1,
	models.RegimeBreakout:       1.0,
	models.RegimeBullish:        1.0,
	models.RegimeBearish:        1.0,
	models.RegimeNeutral:        0.9,
	models.RegimeCalm:           0.9,
	models.RegimeLowVolatility:  0.9,
	models.RegimeRanging:        0.8,
	models.RegimeVolatile:       0.7,
	models.RegimeHighVolatility: 0.6,
	models.RegimeChoppy:         0.5,
}

var levelRisk = map[models.VolatilityLevel]float64{
	models.LevelLow:     1.1,
	models.LevelNormal:  1.0,
	models.LevelHigh:    0.75,
	models.LevelExtreme: 0.5,
}

func sessionRisk(s models.Session) float64 {
	switch s {
	case models.SessionWeekend:
		return 0.5
	case models.SessionAsian, models.SessionNYClose:
		return 0.8
	default:
		return 1.0
	}
}

func mainSession(s models.Session) bool {
	switch s {
	case models.SessionLondonOpen, models.SessionLondonSession, models.SessionNYOpen, models.SessionNYSession:
		return true
	}
	return false
}
