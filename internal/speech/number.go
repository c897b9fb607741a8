package speech

import "strconv"

// DecomposeNumber splits n into spoken parts: numbers up to twenty and
// round tens are one clip, anything else is the ten followed by the unit.
func DecomposeNumber(n int) []string {
	return decompose(n, "")
}

// DecomposeOrdinal is DecomposeNumber in the ordinal namespace ("h-<n>").
func DecomposeOrdinal(n int) []string {
	return decompose(n, "h-")
}

func decompose(n int, prefix string) []string {
	if n <= 20 || n%10 == 0 {
		return []string{prefix + strconv.Itoa(n)}
	}
	return []string{
		prefix + strconv.Itoa(n/10*10),
		prefix + strconv.Itoa(n%10),
	}
}

// DecomposeYear speaks a year as thousands, hundreds and remainder:
// 2026 is "2 thousand 20 6", 1984 is "1 thousand 9 hundred 80 4".
func DecomposeYear(year int) []string {
	if year < 1000 {
		return DecomposeNumber(year)
	}

	parts := append(DecomposeNumber(year/1000), "thousand")
	rem := year % 1000
	if rem >= 100 {
		parts = append(parts, DecomposeNumber(rem/100)...)
		parts = append(parts, "hundred")
		rem %= 100
	}
	if rem > 0 {
		parts = append(parts, DecomposeNumber(rem)...)
	}
	return parts
}
