package regime

import "FKSEngine/internal/domain/models"

var parameterTable = map[models.RegimeType]models.RegimeParameters{
	models.RegimeTrending:       {SignalThreshold: 0.65, StopATRMultiplier: 1.5, TargetATRMultiplier: 3.0, RiskPercent: 1.0, ConfirmationBars: 1, PreferredTimeframes: []models.Timeframe{models.TF5m, models.TF15m}},
	models.RegimeStrongTrend:    {SignalThreshold: 0.60, StopATRMultiplier: 2.0, TargetATRMultiplier: 4.0, RiskPercent: 1.25, ConfirmationBars: 1, PreferredTimeframes: []models.Timeframe{models.TF15m, models.TF1h}},
	models.RegimeRanging:        {SignalThreshold: 0.75, StopATRMultiplier: 1.0, TargetATRMultiplier: 1.5, RiskPercent: 0.75, RequireConfirmation: true, ConfirmationBars: 2, PreferredTimeframes: []models.Timeframe{models.TF1m, models.TF5m}},
	models.RegimeVolatile:       {SignalThreshold: 0.80, StopATRMultiplier: 2.5, TargetATRMultiplier: 3.0, RiskPercent: 0.5, RequireConfirmation: true, ConfirmationBars: 3, PreferredTimeframes: []models.Timeframe{models.TF5m, models.TF15m}},
	models.RegimeHighVolatility: {SignalThreshold: 0.85, StopATRMultiplier: 3.0, TargetATRMultiplier: 3.5, RiskPercent: 0.5, RequireConfirmation: true, ConfirmationBars: 3, PreferredTimeframes: []models.Timeframe{models.TF15m}},
	models.RegimeLowVolatility:  {SignalThreshold: 0.70, StopATRMultiplier: 1.0, TargetATRMultiplier: 2.0, RiskPercent: 0.75, RequireConfirmation: true, ConfirmationBars: 2, PreferredTimeframes: []models.Timeframe{models.TF5m}},
	models.RegimeBreakout:       {SignalThreshold: 0.65, StopATRMultiplier: 1.5, TargetATRMultiplier: 3.5, RiskPercent: 1.0, RequireConfirmation: true, ConfirmationBars: 1, PreferredTimeframes: []models.Timeframe{models.TF2m, models.TF5m}},
	models.RegimeBullish:        {SignalThreshold: 0.65, StopATRMultiplier: 1.5, TargetATRMultiplier: 2.5, RiskPercent: 1.0, ConfirmationBars: 1, PreferredTimeframes: []models.Timeframe{models.TF5m}},
	models.RegimeBearish:        {SignalThreshold: 0.65, StopATRMultiplier: 1.5, TargetATRMultiplier: 2.5, RiskPercent: 1.0, ConfirmationBars: 1, PreferredTimeframes: []models.Timeframe{models.TF5m}},
	models.RegimeNeutral:        {SignalThreshold: 0.70, StopATRMultiplier: 1.5, TargetATRMultiplier: 2.0, RiskPercent: 0.75, RequireConfirmation: true, ConfirmationBars: 2, PreferredTimeframes: []models.Timeframe{models.TF5m}},
	models.RegimeCalm:           {SignalThreshold: 0.75, StopATRMultiplier: 1.0, TargetATRMultiplier: 1.5, RiskPercent: 0.5, RequireConfirmation: true, ConfirmationBars: 2, PreferredTimeframes: []models.Timeframe{models.TF15m}},
	models.RegimeChoppy:         {SignalThreshold: 0.90, StopATRMultiplier: 2.0, TargetATRMultiplier: 2.0, RiskPercent: 0.25, RequireConfirmation: true, ConfirmationBars: 3, PreferredTimeframes: []models.Timeframe{models.TF15m}},
}

// Parameters returns the trading policy for r. Unknown regimes get the Neutral policy.
func Parameters(r models.RegimeType) models.RegimeParameters {
	p, ok := parameterTable[r]
	if !ok {
		p = parameterTable[models.RegimeNeutral]
		r = models.RegimeNeutral
	}
	p.Regime = r
	p.PreferredTimeframes = append([]models.Timeframe(nil), p.PreferredTimeframes...)
	return p
}
