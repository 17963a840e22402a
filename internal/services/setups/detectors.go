package setups

import (
	"math"

	"FKSEngine/internal/domain/models"
)

// BullishBreakout looks for price > EMA9 > VWAP with momentum, RSI and volume behind it.
func BullishBreakout(bar models.Bar, ctx Context) models.TradingSetup {
	rsi, vr := rsiOf(bar), bar.VolumeRatio()
	anchor := bar.EMA9
	if bar.Support > bar.EMA9 && bar.Support < bar.Close {
		anchor = bar.Support
	}
	return finish(bar, ctx, evaluation{
		name:       "bullish_breakout",
		direction:  models.DirectionLong,
		pattern:    bar.Close > bar.EMA9 && bar.EMA9 > bar.VWAP,
		patternMsg: "price above EMA9 above VWAP",
		checks: []check{
			{"price_above_ema", bar.Close > bar.EMA9, "close above EMA9"},
			{"ema_above_vwap", bar.EMA9 > bar.VWAP, "EMA9 above VWAP"},
			{"ao_positive", bar.AO > 0, "AO above zero"},
			{"ao_rising", bar.AO > bar.PrevAO, "AO rising"},
			{"rsi_bullish", rsi > 50 && rsi < 75, "RSI in bullish band"},
			{"volume_confirmed", vr >= 1.2, "volume above average"},
			{"session_open", sessionOpen(ctx.Session), "market session open"},
			{"above_resistance", bar.Resistance > 0 && bar.Close > bar.Resistance, "closed above resistance"},
		},
		minConfirm: 4,
		anchor:     anchor,
		bonuses: []bool{
			vr >= 2.0,
			bar.Close > bar.EMA9 && bar.EMA9 > bar.VWAP && bar.AO > 0,
			accelerating(bar, 1),
		},
	})
}

// BearishBreakdown mirrors BullishBreakout.
func BearishBreakdown(bar models.Bar, ctx Context) models.TradingSetup {
	rsi, vr := rsiOf(bar), bar.VolumeRatio()
	anchor := bar.EMA9
	if bar.Resistance > 0 && bar.Resistance < bar.EMA9 && bar.Resistance > bar.Close {
		anchor = bar.Resistance
	}
	return finish(bar, ctx, evaluation{
		name:       "bearish_breakdown",
		direction:  models.DirectionShort,
		pattern:    bar.Close < bar.EMA9 && bar.EMA9 < bar.VWAP,
		patternMsg: "price below EMA9 below VWAP",
		checks: []check{
			{"price_below_ema", bar.Close < bar.EMA9, "close below EMA9"},
			{"ema_below_vwap", bar.EMA9 < bar.VWAP, "EMA9 below VWAP"},
			{"ao_negative", bar.AO < 0, "AO below zero"},
			{"ao_falling", bar.AO < bar.PrevAO, "AO falling"},
			{"rsi_bearish", rsi < 50 && rsi > 25, "RSI in bearish band"},
			{"volume_confirmed", vr >= 1.2, "volume above average"},
			{"session_open", sessionOpen(ctx.Session), "market session open"},
			{"below_support", bar.Support > 0 && bar.Close < bar.Support, "closed below support"},
		},
		minConfirm: 4,
		anchor:     anchor,
		bonuses: []bool{
			vr >= 2.0,
			bar.Close < bar.EMA9 && bar.EMA9 < bar.VWAP && bar.AO < 0,
			accelerating(bar, -1),
		},
	})
}

// VWAPRejection trades a bounce off VWAP when price trades within 0.75 ATR of it.
// The side of VWAP the close sits on picks the direction.
func VWAPRejection(bar models.Bar, ctx Context) models.TradingSetup {
	rsi, vr := rsiOf(bar), bar.VolumeRatio()
	near := bar.ATR > 0 && bar.VWAP > 0 && math.Abs(bar.Close-bar.VWAP) <= 0.75*bar.ATR

	if bar.Close >= bar.VWAP {
		return finish(bar, ctx, evaluation{
			name:       "vwap_bounce",
			direction:  models.DirectionLong,
			pattern:    near,
			patternMsg: "price holding just above VWAP",
			checks: []check{
				{"ema_above_vwap", bar.EMA9 > bar.VWAP, "EMA9 above VWAP"},
				{"ao_rising", bar.AO > bar.PrevAO, "AO rising"},
				{"rsi_band", rsi > 40 && rsi < 70, "RSI neutral to bullish"},
				{"volume_confirmed", vr >= 1.0, "volume at or above average"},
				{"session_open", sessionOpen(ctx.Session), "market session open"},
			},
			minConfirm: 3,
			anchor:     bar.VWAP,
			bonuses:    []bool{vr >= 2.0, bar.EMA9 > bar.VWAP && bar.AO > 0, accelerating(bar, 1)},
		})
	}
	return finish(bar, ctx, evaluation{
		name:       "vwap_rejection",
		direction:  models.DirectionShort,
		pattern:    near,
		patternMsg: "price rejected just below VWAP",
		checks: []check{
			{"ema_below_vwap", bar.EMA9 < bar.VWAP, "EMA9 below VWAP"},
			{"ao_falling", bar.AO < bar.PrevAO, "AO falling"},
			{"rsi_band", rsi > 30 && rsi < 60, "RSI neutral to bearish"},
			{"volume_confirmed", vr >= 1.0, "volume at or above average"},
			{"session_open", sessionOpen(ctx.Session), "market session open"},
		},
		minConfirm: 3,
		anchor:     bar.VWAP,
		bonuses:    []bool{vr >= 2.0, bar.EMA9 < bar.VWAP && bar.AO < 0, accelerating(bar, -1)},
	})
}

// AOSaucer detects a down-down-up AO turn above zero (bullish) or up-up-down below zero (bearish).
func AOSaucer(bar models.Bar, ctx Context) models.TradingSetup {
	rsi, vr := rsiOf(bar), bar.VolumeRatio()
	nearZero := 0.25 * bar.ATR

	bull := bar.PrevAO3 > bar.PrevAO2 && bar.PrevAO2 > bar.PrevAO && bar.AO > bar.PrevAO && bar.AO > 0
	bear := bar.PrevAO3 < bar.PrevAO2 && bar.PrevAO2 < bar.PrevAO && bar.AO < bar.PrevAO && bar.AO < 0

	if bear && !bull {
		return finish(bar, ctx, evaluation{
			name:       "ao_saucer_bearish",
			direction:  models.DirectionShort,
			pattern:    true,
			patternMsg: "AO up-up-down below zero",
			checks: []check{
				{"near_zero", math.Abs(bar.PrevAO) <= nearZero, "saucer formed near the zero line"},
				{"price_below_ema", bar.Close < bar.EMA9, "close below EMA9"},
				{"price_below_vwap", bar.Close < bar.VWAP, "close below VWAP"},
				{"rsi_bearish", rsi < 50, "RSI below 50"},
				{"volume_confirmed", vr >= 1.0, "volume at or above average"},
				{"session_open", sessionOpen(ctx.Session), "market session open"},
			},
			minConfirm: 3,
			anchor:     math.Max(bar.EMA9, bar.Close),
			bonuses:    []bool{vr >= 2.0, bar.Close < bar.EMA9 && bar.EMA9 < bar.VWAP},
		})
	}
	return finish(bar, ctx, evaluation{
		name:       "ao_saucer_bullish",
		direction:  models.DirectionLong,
		pattern:    bull,
		patternMsg: "AO down-down-up above zero",
		checks: []check{
			{"near_zero", math.Abs(bar.PrevAO) <= nearZero, "saucer formed near the zero line"},
			{"price_above_ema", bar.Close > bar.EMA9, "close above EMA9"},
			{"price_above_vwap", bar.Close > bar.VWAP, "close above VWAP"},
			{"rsi_bullish", rsi > 50, "RSI above 50"},
			{"volume_confirmed", vr >= 1.0, "volume at or above average"},
			{"session_open", sessionOpen(ctx.Session), "market session open"},
		},
		minConfirm: 3,
		anchor:     math.Min(bar.EMA9, bar.Close),
		bonuses:    []bool{vr >= 2.0, bar.Close > bar.EMA9 && bar.EMA9 > bar.VWAP},
	})
}

// AOZeroCross detects AO changing sign with price/EMA/VWAP agreeing.
func AOZeroCross(bar models.Bar, ctx Context) models.TradingSetup {
	rsi, vr := rsiOf(bar), bar.VolumeRatio()

	if bar.PrevAO >= 0 && bar.AO < 0 {
		return finish(bar, ctx, evaluation{
			name:       "ao_zero_cross_bearish",
			direction:  models.DirectionShort,
			pattern:    true,
			patternMsg: "AO crossed below zero",
			checks: []check{
				{"price_below_ema", bar.Close < bar.EMA9, "close below EMA9"},
				{"price_below_vwap", bar.Close < bar.VWAP, "close below VWAP"},
				{"ema_below_vwap", bar.EMA9 < bar.VWAP, "EMA9 below VWAP"},
				{"momentum_building", accelerating(bar, -1), "downside momentum building"},
				{"rsi_bearish", rsi < 50, "RSI below 50"},
				{"volume_confirmed", vr >= 1.2, "volume above average"},
				{"session_open", sessionOpen(ctx.Session), "market session open"},
			},
			minConfirm: 3,
			anchor:     math.Max(bar.EMA9, bar.Close),
			bonuses:    []bool{vr >= 2.0, bar.Close < bar.EMA9 && bar.EMA9 < bar.VWAP, accelerating(bar, -1)},
		})
	}
	return finish(bar, ctx, evaluation{
		name:       "ao_zero_cross_bullish",
		direction:  models.DirectionLong,
		pattern:    bar.PrevAO <= 0 && bar.AO > 0,
		patternMsg: "AO crossed above zero",
		checks: []check{
			{"price_above_ema", bar.Close > bar.EMA9, "close above EMA9"},
			{"price_above_vwap", bar.Close > bar.VWAP, "close above VWAP"},
			{"ema_above_vwap", bar.EMA9 > bar.VWAP, "EMA9 above VWAP"},
			{"momentum_building", accelerating(bar, 1), "upside momentum building"},
			{"rsi_bullish", rsi > 50, "RSI above 50"},
			{"volume_confirmed", vr >= 1.2, "volume above average"},
			{"session_open", sessionOpen(ctx.Session), "market session open"},
		},
		minConfirm: 3,
		anchor:     math.Min(bar.EMA9, bar.Close),
		bonuses:    []bool{vr >= 2.0, bar.Close > bar.EMA9 && bar.EMA9 > bar.VWAP, accelerating(bar, 1)},
	})
}

// accelerating reports whether the latest AO step is larger than the previous one in direction sign.
func accelerating(bar models.Bar, sign float64) bool {
	cur := (bar.AO - bar.PrevAO) * sign
	prev := (bar.PrevAO - bar.PrevAO2) * sign
	return cur > 0 && cur > prev
}
