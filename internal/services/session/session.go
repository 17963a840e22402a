// Package session maps wall-clock time onto trading sessions.
package session

import (
	"time"

	"FKSEngine/internal/domain/models"
)

// Multipliers are the static expectations attached to a session.
type Multipliers struct {
	Volatility float64
	Volume     float64
	Spread     float64
}

var multipliers = map[models.Session]Multipliers{
	models.SessionAsian:         {Volatility: 0.6, Volume: 0.5, Spread: 1.4},
	models.SessionLondonOpen:    {Volatility: 1.3, Volume: 1.4, Spread: 0.9},
	models.SessionLondonSession: {Volatility: 1.1, Volume: 1.1, Spread: 1.0},
	models.SessionNYOpen:        {Volatility: 1.5, Volume: 1.6, Spread: 0.9},
	models.SessionNYSession:     {Volatility: 1.2, Volume: 1.2, Spread: 1.0},
	models.SessionLondonClose:   {Volatility: 1.1, Volume: 1.0, Spread: 1.0},
	models.SessionNYClose:       {Volatility: 0.8, Volume: 0.7, Spread: 1.2},
	models.SessionWeekend:       {Volatility: 0.2, Volume: 0.1, Spread: 2.0},
}

// bracket is a half-open [start,end) hour range; end may be past 24 when it wraps midnight.
type bracket struct {
	session    models.Session
	start, end int
}

var brackets = []bracket{
	{models.SessionLondonOpen, 7, 9},
	{models.SessionLondonSession, 9, 13},
	{models.SessionNYOpen, 13, 15},
	{models.SessionLondonClose, 15, 16},
	{models.SessionNYSession, 16, 20},
	{models.SessionNYClose, 20, 22},
	{models.SessionAsian, 22, 31}, // 22:00 to 07:00 next day
}

// Analyzer classifies timestamps in a fixed location. It holds no mutable state.
type Analyzer struct {
	loc *time.Location
}

// NewAnalyzer uses loc for hour brackets; nil means UTC.
func NewAnalyzer(loc *time.Location) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{loc: loc}
}

// Location is the zone the brackets are evaluated in.
func (a *Analyzer) Location() *time.Location { return a.loc }

// Classify returns the session active at t.
func (a *Analyzer) Classify(t time.Time) models.Session {
	info := a.Info(t)
	return info.Session
}

// Info places t inside its session window and attaches the session expectations.
func (a *Analyzer) Info(t time.Time) models.SessionInfo {
	lt := t.In(a.loc)
	start, end, s := a.window(lt)

	total := end.Sub(start)
	elapsed := lt.Sub(start)
	progress := 0.0
	if total > 0 {
		progress = float64(elapsed) / float64(total)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	m := multipliers[s]
	return models.SessionInfo{
		Session:            s,
		Start:              start,
		End:                end,
		Progress:           progress,
		Remaining:          end.Sub(lt),
		ExpectedVolatility: m.Volatility,
		ExpectedVolume:     m.Volume,
		ExpectedSpread:     m.Spread,
	}
}

func (a *Analyzer) window(lt time.Time) (time.Time, time.Time, models.Session) {
	y, mo, d := lt.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, a.loc)

	switch lt.Weekday() {
	case time.Saturday:
		return midnight, midnight.AddDate(0, 0, 2), models.SessionWeekend
	case time.Sunday:
		return midnight.AddDate(0, 0, -1), midnight.AddDate(0, 0, 1), models.SessionWeekend
	}

	h := lt.Hour()
	if h < 7 {
		// Early morning belongs to the Asian window that opened the previous evening.
		prev := midnight.AddDate(0, 0, -1)
		return atHour(prev, 22), atHour(midnight, 7), models.SessionAsian
	}
	for _, b := range brackets {
		if h >= b.start && h < b.end {
			return atHour(midnight, b.start), atHour(midnight, b.end), b.session
		}
	}
	// unreachable: brackets cover 7..31
	return atHour(midnight, 22), atHour(midnight, 31), models.SessionAsian
}

// atHour adds h wall-clock hours to midnight via the calendar, so DST days keep their labels.
func atHour(midnight time.Time, h int) time.Time {
	days := h / 24
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day()+days, h%24, 0, 0, 0, midnight.Location())
}

// MultipliersFor exposes the static table, mostly for dashboards.
func MultipliersFor(s models.Session) Multipliers { return multipliers[s] }
