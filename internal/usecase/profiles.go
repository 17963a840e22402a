package usecase

import (
	"strings"

	"FKSEngine/internal/domain/models"
	"FKSEngine/pkg/config"
)

// builtinProfiles covers the futures the engine was tuned on.
var builtinProfiles = map[string]models.MarketProfile{
	"GC":  {Symbol: "GC", TickSize: 0.1, VeryHigh: 2.0, High: 1.5, Medium: 1.2, Low: 0.7, VeryLow: 0.5, MaxRiskPct: 2.5},
	"NQ":  {Symbol: "NQ", TickSize: 0.25, VeryHigh: 2.2, High: 1.6, Medium: 1.25, Low: 0.7, VeryLow: 0.5, MaxRiskPct: 2.5},
	"ES":  {Symbol: "ES", TickSize: 0.25, VeryHigh: 2.0, High: 1.5, Medium: 1.2, Low: 0.7, VeryLow: 0.5, MaxRiskPct: 2.0},
	"CL":  {Symbol: "CL", TickSize: 0.01, VeryHigh: 2.5, High: 1.8, Medium: 1.3, Low: 0.7, VeryLow: 0.5, MaxRiskPct: 3.0},
	"BTC": {Symbol: "BTC", TickSize: 5, VeryHigh: 2.5, High: 1.8, Medium: 1.3, Low: 0.6, VeryLow: 0.4, MaxRiskPct: 4.0},
}

// Profiles resolves market profiles: configured first, then built in.
type Profiles struct {
	byRoot map[string]models.MarketProfile
}

func NewProfiles(markets []config.Market) *Profiles {
	p := &Profiles{byRoot: make(map[string]models.MarketProfile, len(builtinProfiles)+len(markets))}
	for k, v := range builtinProfiles {
		p.byRoot[k] = v
	}
	for _, m := range markets {
		sym := strings.ToUpper(strings.TrimSpace(m.Symbol))
		if sym == "" {
			continue
		}
		p.byRoot[sym] = models.MarketProfile{
			Symbol:     sym,
			TickSize:   m.TickSize,
			VeryHigh:   m.VeryHigh,
			High:       m.High,
			Medium:     m.Medium,
			Low:        m.Low,
			VeryLow:    m.VeryLow,
			MaxRiskPct: m.MaxRiskPct,
		}
	}
	return p
}

// Lookup matches the symbol or its contract root, so "NQ 03-25" and "NQH5" resolve to NQ.
// The returned profile carries the requested symbol.
func (p *Profiles) Lookup(symbol string) (models.MarketProfile, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if prof, ok := p.byRoot[s]; ok {
		prof.Symbol = symbol
		return prof, true
	}
	root := s
	if i := strings.IndexAny(root, " -_/"); i > 0 {
		root = root[:i]
	}
	for n := len(root); n >= 2; n-- {
		if prof, ok := p.byRoot[root[:n]]; ok {
			prof.Symbol = symbol
			return prof, true
		}
	}
	return models.DefaultProfile(symbol), false
}
