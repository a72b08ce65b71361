package render

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// FormatImageConfidence formats a 0-100 image confidence with two
// decimals, e.g. 87.345 -> "87.35%".
func FormatImageConfidence(v float64) string {
	return formatFixed(v, 0, 2) + "%"
}

// FormatVideoConfidence formats a 0-1 video confidence as a percentage
// with one decimal, e.g. 0.873 -> "87.3%".
func FormatVideoConfidence(v float64) string {
	return formatFixed(v, 2, 1) + "%"
}

// FormatCoordinate formats a bounding box coordinate with one decimal.
func FormatCoordinate(v float64) string {
	return formatFixed(v, 0, 1)
}

// formatFixed multiplies v by 10^shift and rounds it half away from zero
// to places decimals. It works on the shortest decimal representation of
// v, so 87.345 rounds up even though its binary value is slightly below.
func formatFixed(v float64, shift, places int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	neg := v < 0
	v = math.Abs(v)

	// d.ddddde±x
	sci := strconv.FormatFloat(v, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expPart)
	digits := strings.Replace(mant, ".", "", 1)

	// cut is where the rounding boundary falls within digits.
	cut := exp + 1 + shift + places
	var (
		kept string
		next byte = '0'
	)
	switch {
	case v == 0 || cut < 0:
		kept = "0"
	case cut == 0:
		kept = "0"
		next = digits[0]
	case cut >= len(digits):
		kept = digits + strings.Repeat("0", cut-len(digits))
	default:
		kept = digits[:cut]
		next = digits[cut]
	}

	n, _ := new(big.Int).SetString(kept, 10)
	if next >= '5' {
		n.Add(n, big.NewInt(1))
	}

	s := n.String()
	if len(s) <= places {
		s = strings.Repeat("0", places-len(s)+1) + s
	}
	if places > 0 {
		s = s[:len(s)-places] + "." + s[len(s)-places:]
	}
	if neg && n.Sign() != 0 {
		s = "-" + s
	}
	return s
}
