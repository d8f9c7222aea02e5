// Package cos holds small dependency-free helpers shared across laik-go,
// the way aistore's cmn/cos package does for its own core packages.
package cos

// MinI64 returns the smaller of a and b.
func MinI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// MaxI64 returns the larger of a and b.
func MaxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// CeilDiv returns ceil(a/b) for positive a and b; it returns 0 for a <= 0.
func CeilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// StringInSlice reports whether s occurs in list.
func StringInSlice(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
