package gateway

import "strings"

// Card brand names in the gateway's <type> vocabulary.
const (
	BrandVisa       = "VISA"
	BrandMastercard = "MC"
	BrandAmex       = "AMEX"
	BrandDiscover   = "DISCOVER"
	BrandJCB        = "JCB"
	BrandDiners     = "DINERS"
)

// InferBrand maps a PAN prefix onto a card brand using the usual IIN
// ranges. Unrecognized prefixes fall back to Visa; the gateway validates
// the real brand itself, so guessing wrong costs nothing locally.
func InferBrand(pan string) string {
	pan = strings.TrimSpace(pan)
	switch {
	case strings.HasPrefix(pan, "4"):
		return BrandVisa
	case inRange(pan, 2, 51, 55):
		return BrandMastercard
	case strings.HasPrefix(pan, "34"), strings.HasPrefix(pan, "37"):
		return BrandAmex
	case strings.HasPrefix(pan, "6011"), strings.HasPrefix(pan, "65"):
		return BrandDiscover
	case inRange(pan, 4, 3528, 3589):
		return BrandJCB
	case strings.HasPrefix(pan, "3000"), strings.HasPrefix(pan, "3095"):
		return BrandDiners
	case inRange(pan, 2, 36, 39):
		return BrandDiners
	default:
		return BrandVisa
	}
}

// MaskPAN keeps the first six and last four digits, the only parts of a
// card number this service is allowed to persist or log.
func MaskPAN(pan string) string {
	pan = strings.TrimSpace(pan)
	if len(pan) <= 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}

// inRange reports whether the first n digits of pan form a number within
// [lo, hi].
func inRange(pan string, n, lo, hi int) bool {
	if len(pan) < n {
		return false
	}
	v := 0
	for _, c := range pan[:n] {
		if c < '0' || c > '9' {
			return false
		}
		v = v*10 + int(c-'0')
	}
	return v >= lo && v <= hi
}
