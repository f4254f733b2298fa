package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeSize converts a raw size string and unit into centimeters.
// Comma and dot decimal separators are both accepted; units may be mm or
// cm in any case, including the Portuguese long forms found in reports.
// The result is rounded to two decimals.
func NormalizeSize(rawSize, rawUnit string) (float64, error) {
	s := strings.TrimSpace(rawSize)
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q", ErrUnparseableMeasurement, rawSize)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: non-positive size %q", ErrUnparseableMeasurement, rawSize)
	}
	switch canonicalUnit(rawUnit) {
	case "mm":
		v /= 10
	case "cm":
	default:
		return 0, fmt.Errorf("%w: unit %q", ErrUnparseableMeasurement, rawUnit)
	}
	return math.Round(v*100) / 100, nil
}

func canonicalUnit(u string) string {
	switch normalizeKey(u) {
	case "mm", "milimetro", "milimetros":
		return "mm"
	case "cm", "centimetro", "centimetros":
		return "cm"
	}
	return ""
}
