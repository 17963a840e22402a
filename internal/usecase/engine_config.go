package usecase

import (
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/pkg/config"
)

// EngineConfigFrom maps the engine section of the configuration onto analyzer tunables.
// Weights for unknown components are a configuration error.
func EngineConfigFrom(c config.Engine) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if c.HistoryCapacity > 0 {
		cfg.Regime.Capacity = c.HistoryCapacity
	}
	if c.InsightWindow > 0 {
		cfg.Market.InsightWindow = c.InsightWindow
	}
	cfg.EstimateTrendStrength = c.EstimateTrendStrength
	cfg.ResetOnWeekOpen = c.ResetOnWeekOpen

	sc := &cfg.Signals
	if c.MinComponentAgreement > 0 {
		sc.MinComponentAgreement = c.MinComponentAgreement
	}
	if c.MaxSignalAge > 0 {
		sc.MaxSignalAge = c.MaxSignalAge
	}
	if c.ConsensusThreshold > 0 {
		sc.ConsensusThreshold = c.ConsensusThreshold
	}
	sc.MinQuality = c.MinQuality
	for name, w := range c.BaseWeights {
		id, err := models.ParseComponentID(name)
		if err != nil {
			return cfg, models.NewError(models.KindConfig, "engine.base_weights", err)
		}
		if w < 0 {
			return cfg, models.Errorf(models.KindConfig, "engine.base_weights", "weight of %s must not be negative", name)
		}
		sc.BaseWeights[id] = w
	}
	return cfg, nil
}

// SessionLocation resolves the configured session timezone, UTC when empty.
func SessionLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, models.NewError(models.KindConfig, "engine.session_timezone", err)
	}
	return loc, nil
}
