package checkout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// minorUnits parses a major-unit decimal string ("12.34") into minor
// units (1234). Parsing is done on the digits, not through a float, so
// "0.29" never becomes 28. At most two fraction digits are accepted; this
// demo only deals in cent-based currencies.
func minorUnits(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || strings.HasPrefix(amount, "-") {
		return 0, fmt.Errorf("%w: amount is required and must be positive", ErrValidation)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: amount has more than two decimal places", ErrValidation)
	}
	frac = frac + strings.Repeat("0", 2-len(frac))

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount is not a number", ErrValidation)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount is not a number", ErrValidation)
	}
	return units*100 + cents, nil
}

// majorUnits converts minor units back to the major-unit float stored in
// ledger records (legacy file format).
func majorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// minorFromMajor converts a ledger record's major-unit amount back to
// minor units for the wire.
func minorFromMajor(major float64) int64 {
	return int64(math.Round(major * 100))
}
