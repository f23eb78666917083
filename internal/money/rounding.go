package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode selects how amounts are rounded to the currency's minor unit.
type RoundingMode int

const (
	// HalfUp rounds half away from zero. This is the default everywhere.
	HalfUp RoundingMode = iota
	// HalfEven rounds half to the nearest even digit.
	HalfEven
	// Up rounds away from zero.
	Up
	// Down truncates toward zero.
	Down
	// Ceiling rounds toward positive infinity.
	Ceiling
	// Floor rounds toward negative infinity.
	Floor
)

func (m RoundingMode) String() string {
	switch m {
	case HalfUp:
		return "half_up"
	case HalfEven:
		return "half_even"
	case Up:
		return "up"
	case Down:
		return "down"
	case Ceiling:
		return "ceiling"
	case Floor:
		return "floor"
	default:
		return "unknown"
	}
}

// ParseRoundingMode resolves a rounding mode by name.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_up":
		return HalfUp, nil
	case "half_even":
		return HalfEven, nil
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "ceiling":
		return Ceiling, nil
	case "floor":
		return Floor, nil
	default:
		return HalfUp, fmt.Errorf("%w: unknown rounding mode %q", ErrInvalidAmount, s)
	}
}

func round(d decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case HalfEven:
		return d.RoundBank(scale)
	case Up:
		return d.RoundUp(scale)
	case Down:
		return d.Truncate(scale)
	case Ceiling:
		return d.RoundCeil(scale)
	case Floor:
		return d.RoundFloor(scale)
	default:
		return d.Round(scale)
	}
}

// roundRat rounds an exact rational half away from zero.
func roundRat(r *big.Rat, scale int32) decimal.Decimal {
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, scale)
}
