package graycode

import (
	"fmt"
	"math"
)

// Exponent bounds of the SI prefix table.
const (
	minPrefixExp = -9
	maxPrefixExp = 9
)

var siPrefixes = map[int]string{
	-9: "n",
	-6: "µ",
	-3: "m",
	0:  "",
	3:  "k",
	6:  "M",
	9:  "G",
}

// FormatEngineering renders v with three significant digits and an SI prefix,
// e.g. 0.000123 becomes "123.00 µ". Digits past the third are truncated toward
// zero, not rounded.
func FormatEngineering(v float64) string {
	return formatEngineering(v, math.MinInt)
}

// FormatEngineeringMin is FormatEngineering with the prefix exponent clamped
// to at least minExp. FormatEngineeringMin(60, 0) is "60.00 " rather than a
// milli or micro rendering of a small value.
func FormatEngineeringMin(v float64, minExp int) string {
	return formatEngineering(v, minExp)
}

func formatEngineering(v float64, minExp int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%v ", v)
	}

	sign := 1.0
	if v < 0 {
		sign = -1
		v = -v
	}

	p := 0.0
	if v != 0 {
		p = decade(v)
	}

	// Keep int(3-p) decimal digits, truncating the rest.
	keep := int(3 - p)
	digits := math.Floor(v*math.Pow10(keep) + 1e-9)

	e := int(math.Floor(p/3)) * 3
	if e < minExp {
		e = minExp
	}
	e = min(max(e, minPrefixExp), maxPrefixExp)
	// Snap a clamped exponent onto the prefix grid.
	e = int(math.Floor(float64(e)/3)) * 3

	scaled := sign * digits * math.Pow10(-keep-e)
	return fmt.Sprintf("%.2f %s", scaled, siPrefixes[e])
}

// decade returns log10(v), nudged up when floating point error leaves an exact
// power of ten just below its integer exponent.
func decade(v float64) float64 {
	p := math.Log10(v)
	next := math.Floor(p) + 1
	if math.Pow10(int(next)) <= v {
		return next
	}
	return p
}
