package model

import (
	"fmt"
	"math"
)

// Units is the display unit a user prefers. Stored amounts are always milliliters;
// Units only changes how they are entered and shown.
type Units string

const (
	UnitsMl Units = "ml"
	UnitsOz Units = "oz"
)

// MlPerOz is the fixed fluid-ounce conversion factor.
const MlPerOz = 29.5735

// ParseUnits validates a units string. The empty string is not a valid unit.
func ParseUnits(s string) (Units, error) {
	switch u := Units(s); u {
	case UnitsMl, UnitsOz:
		return u, nil
	default:
		return "", fmt.Errorf("model: unknown units %q (want ml or oz)", s)
	}
}

// Valid reports whether u is one of the known units.
func (u Units) Valid() bool {
	return u == UnitsMl || u == UnitsOz
}

// ToMilliliters converts an amount entered in u to whole milliliters,
// rounding half away from zero.
func ToMilliliters(amount float64, u Units) int {
	if u == UnitsOz {
		amount *= MlPerOz
	}
	return int(math.Round(amount))
}

// FromMilliliters converts ml to u for display.
func FromMilliliters(ml int, u Units) float64 {
	if u == UnitsOz {
		return float64(ml) / MlPerOz
	}
	return float64(ml)
}
