package rules

import (
	"fmt"
	"math"

	"tw-screener/internal/models"
)

// MinHistory is the number of candles a series needs before any strategy can fire.
const MinHistory = 60

// Mode selects which variant of the rules runs.
type Mode int

const (
	// CoreOnlyMode is the replay: volume floor and core strategy tests only,
	// with a price/volume proxy in place of chip data. It is the zero Mode.
	CoreOnlyMode Mode = iota
	// FullFilterMode is the live scan: optional filters and real chip data.
	FullFilterMode
)

func (m Mode) String() string {
	switch m {
	case FullFilterMode:
		return "full"
	case CoreOnlyMode:
		return "core"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "full" or "core". An empty value is core.
func ParseMode(value string) (Mode, error) {
	switch value {
	case "full":
		return FullFilterMode, nil
	case "", "core":
		return CoreOnlyMode, nil
	}
	return 0, fmt.Errorf("unknown evaluation mode %q", value)
}

type modeRules struct {
	minIndex            int
	volumeFloor         bool
	optionalFilters     bool
	strictPullbackClose bool
	breakdownLookback   int
}

var rulesByMode = map[Mode]modeRules{
	FullFilterMode: {minIndex: MinHistory - 1, optionalFilters: true, breakdownLookback: 10},
	CoreOnlyMode:   {minIndex: MinHistory, volumeFloor: true, strictPullbackClose: true, breakdownLookback: 8},
}

// Auxiliary carries the per-scan snapshots the rules may consult.
type Auxiliary struct {
	Code string
	Flow models.InstitutionalFlow
}

func (a Auxiliary) netBuy() int64 {
	if a.Flow == nil {
		return 0
	}
	return a.Flow[a.Code]
}

// Evaluate runs the live scan rules at the last candle of frame.
func Evaluate(frame []models.EnrichedCandle, params Parameters, aux Auxiliary) MatchResult {
	return EvaluateAt(frame, len(frame)-1, params, aux, FullFilterMode)
}

// EvaluateAt runs the rules of mode at index at. An index without enough
// history, an unknown strategy or an unknown mode yields NoMatch.
func EvaluateAt(frame []models.EnrichedCandle, at int, params Parameters, aux Auxiliary, mode Mode) MatchResult {
	mr, ok := rulesByMode[mode]
	if !ok || at < mr.minIndex || at >= len(frame) || at < 1 {
		return NoMatch()
	}
	if !params.Strategy.Valid() {
		return NoMatch()
	}

	curr := frame[at]
	prev := frame[at-1]

	if mr.volumeFloor && float64(curr.Volume)/1000 < float64(params.MinVolumeLots) {
		return NoMatch()
	}

	if params.Strategy != VolumeLowPullback {
		bias, ok := Bias(curr)
		if !ok {
			return NoMatch()
		}
		if params.Strategy != FalseBreakdownRecovery && math.Abs(bias) > params.BiasRange {
			return NoMatch()
		}
	}

	if mr.optionalFilters {
		if params.TrendHighRequired && !trendHighHolds(frame, at) {
			return NoMatch()
		}
		if params.RSIRisingRequired && !rsiRising(curr, prev) {
			return NoMatch()
		}
		if params.VolumeSurgeRequired && !volumeSurge(curr, prev) {
			return NoMatch()
		}
		if params.BullishCandleRequired && !bullishCandle(curr) {
			return NoMatch()
		}
	}

	switch params.Strategy {
	case ChipConcentration:
		if mode == CoreOnlyMode {
			if !chipProxy(curr, prev) {
				return NoMatch()
			}
			return Match("volume expansion above MA20")
		}
		return evaluateChip(curr, params, aux)

	case VolumeLowPullback:
		if !pullbackHolds(curr, mr.strictPullbackClose) {
			return NoMatch()
		}
		return Match(fmt.Sprintf("low-volume support (net buy %d lots)", NetBuyLots(aux.netBuy())))

	case FalseBreakdownRecovery:
		if !aboveMA(curr.Close, curr.MA200) {
			return NoMatch()
		}
		if !brokeBelowMA200(frame, at, mr.breakdownLookback) {
			return NoMatch()
		}
		return Match(fmt.Sprintf("false breakdown recovered (net buy %d lots)", NetBuyLots(aux.netBuy())))
	}

	return NoMatch()
}

func evaluateChip(curr models.EnrichedCandle, params Parameters, aux Auxiliary) MatchResult {
	if !aboveMA(curr.Close, curr.MA20) {
		return NoMatch()
	}
	if len(aux.Flow) == 0 {
		return Match("no chip data")
	}
	netBuy := aux.netBuy()
	concentration := ChipConcentrationPct(netBuy, curr.Volume)
	if concentration < params.ChipThresholdPct {
		return NoMatch()
	}
	return Match(fmt.Sprintf("chip concentration %.1f%% (net buy %d lots)", concentration, NetBuyLots(netBuy)))
}
