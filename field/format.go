package field

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// FormatNumber renders v the way page scripts print numbers: the shortest
// round-trip digits, plain notation for decimal exponents in [-7, 21) and
// exponent notation otherwise.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(v, 'e', -1, 64), "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)

	k, n := len(digits), e+1
	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits
	}
	return sign + exponential(digits, n-1)
}

// FormatPrecision renders v with p significant digits, rounding half away
// from zero on the exact binary value. p is truncated and clamped to [1, 100].
func FormatPrecision(v float64, p float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(p) {
		return FormatNumber(v)
	}
	digitsWanted := int(math.Max(1, math.Min(100, math.Trunc(p))))
	if v == 0 {
		if digitsWanted == 1 {
			return "0"
		}
		return "0." + strings.Repeat("0", digitsWanted-1)
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits, e := roundSignificant(v, digitsWanted)
	switch {
	case e < -6 || e >= digitsWanted:
		return sign + exponential(digits, e)
	case e >= 0:
		if digitsWanted == e+1 {
			return sign + digits
		}
		return sign + digits[:e+1] + "." + digits[e+1:]
	}
	return sign + "0." + strings.Repeat("0", -(e+1)) + digits
}

func exponential(digits string, e int) string {
	m := digits[:1]
	if len(digits) > 1 {
		m += "." + digits[1:]
	}
	if e < 0 {
		return m + "e-" + strconv.Itoa(-e)
	}
	return m + "e+" + strconv.Itoa(e)
}

// roundSignificant returns the first p digits of v (v > 0) rounded half up,
// and the decimal exponent of the leading digit.
func roundSignificant(v float64, p int) (string, int) {
	exact := new(big.Rat).SetFloat64(v)
	_, exp, _ := strings.Cut(strconv.FormatFloat(v, 'e', -1, 64), "e")
	e, _ := strconv.Atoi(exp)
	if exact.Cmp(pow10Rat(e)) < 0 {
		e--
	}

	num := new(big.Int).Set(exact.Num())
	den := new(big.Int).Set(exact.Denom())
	if shift := p - 1 - e; shift >= 0 {
		num.Mul(num, pow10(shift))
	} else {
		den.Mul(den, pow10(-shift))
	}
	two := big.NewInt(2)
	num.Mul(num, two).Add(num, den)
	den.Mul(den, two)
	digits := num.Quo(num, den).String()
	if len(digits) > p {
		digits = digits[:p]
		e++
	}
	return digits, e
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func pow10Rat(e int) *big.Rat {
	if e >= 0 {
		return new(big.Rat).SetInt(pow10(e))
	}
	return new(big.Rat).SetFrac(big.NewInt(1), pow10(-e))
}
