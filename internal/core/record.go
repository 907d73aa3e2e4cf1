package core

import (
	"errors"
	"math"
)

// Item costs in coins, as charged by the game when the item is enabled.
const (
	ItemFiveToFourCost = 1800
	ItemPlusCoinCost   = 500
)

// Multipliers is the fixed table of boost multipliers the game can award.
// Ordered ascending; Snap relies on a strict first-minimum scan over it.
var Multipliers = [...]float64{1.1, 1.3, 1.5, 2, 2.5, 3, 4, 5, 6, 11, 21, 51}

type (
	// Record is one logged play session. Field order matches the on-disk
	// JSON layout of coin_data_multi.json.
	Record struct {
		Base    int64   `json:"base"`
		Boost   int64   `json:"boost"`
		Final   int64   `json:"final"`
		RateRaw float64 `json:"rate_raw"`
		Rate    float64 `json:"rate"`
	}

	// Items are the optional boosters applied during a run.
	Items struct {
		FiveToFour bool
		PlusCoin   bool
	}
)

var (
	ErrInvalidBase  = errors.New("base coins must be positive")
	ErrInvalidBoost = errors.New("boost coins must be positive")
	ErrEmptyEntity  = errors.New("empty entity name")
)

// Cost returns the total coin deduction for the enabled items.
func (it Items) Cost() int64 {
	var cost int64
	if it.FiveToFour {
		cost += ItemFiveToFourCost
	}
	if it.PlusCoin {
		cost += ItemPlusCoinCost
	}
	return cost
}

// Compute turns raw run input into a Record. Deterministic, no side
// effects. base and boost are truncated to integers for storage; rate_raw
// is boost/base (0 when base is 0) rounded to 6 decimals, and rate is the
// snapped multiplier rounded to 3.
func Compute(base, boost float64, items Items) Record {
	final := int64(boost) - items.Cost()
	if final < 0 {
		final = 0
	}

	var rateRaw float64
	if base > 0 {
		rateRaw = boost / base
	}

	return Record{
		Base:    int64(base),
		Boost:   int64(boost),
		Final:   final,
		RateRaw: roundTo(rateRaw, 6),
		Rate:    roundTo(Snap(rateRaw), 3),
	}
}

// Snap returns the Multipliers entry nearest to x; ties resolve to the
// smaller entry. Non-positive, NaN, and infinite values pass through
// unchanged; callers depend on this for compatibility with files written
// by earlier versions of the tool.
func Snap(x float64) float64 {
	if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	best := Multipliers[0]
	bestDiff := math.Abs(Multipliers[0] - x)
	for _, m := range Multipliers[1:] {
		if d := math.Abs(m - x); d < bestDiff {
			best = m
			bestDiff = d
		}
	}
	return best
}

func roundTo(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}

// ValidateRunInput checks raw submission values before Compute. Snap's
// pass-through keeps old data loadable, but new runs must be positive.
func ValidateRunInput(entity string, base, boost float64) error {
	if entity == "" {
		return ErrEmptyEntity
	}
	if base < 1 || math.IsNaN(base) || math.IsInf(base, 0) {
		return ErrInvalidBase
	}
	if boost < 1 || math.IsNaN(boost) || math.IsInf(boost, 0) {
		return ErrInvalidBoost
	}
	return nil
}
