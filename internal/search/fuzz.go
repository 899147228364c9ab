package search

// Ratio is the normalised indel similarity of a and b in [0,100]:
// 200 * LCS(a, b) / (len(a) + len(b)). Two empty strings are identical.
func Ratio(a, b string) float64 {
	return ratio([]rune(a), []rune(b))
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs(a, b)) / float64(total)
}

// lcs returns the length of the longest common subsequence.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// PartialRatio scores the best alignment of the shorter string against any
// window of the longer one, in [0,100]. Windows are the shorter string's
// length, plus the partial windows at both ends of the longer string.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	if len(s1) == 0 {
		if len(s2) == 0 {
			return 100
		}
		return 0
	}

	best := partialRatio(s1, s2)
	if best < 100 && len(s1) == len(s2) {
		if alt := partialRatio(s2, s1); alt > best {
			best = alt
		}
	}
	return best
}

// partialRatio requires len(needle) <= len(hay).
func partialRatio(needle, hay []rune) float64 {
	n, h := len(needle), len(hay)
	chars := make(map[rune]struct{}, n)
	for _, r := range needle {
		chars[r] = struct{}{}
	}

	var best float64
	consider := func(window []rune) bool {
		if score := ratio(needle, window); score > best {
			best = score
		}
		return best == 100
	}

	// Windows growing in from the left edge.
	for i := 1; i < n; i++ {
		if _, ok := chars[hay[i-1]]; !ok {
			continue
		}
		if consider(hay[:i]) {
			return best
		}
	}
	// Full-width windows.
	for i := 0; i < h-n; i++ {
		if _, ok := chars[hay[i+n-1]]; !ok {
			continue
		}
		if consider(hay[i : i+n]) {
			return best
		}
	}
	// Windows shrinking toward the right edge.
	for i := h - n; i < h; i++ {
		if _, ok := chars[hay[i]]; !ok {
			continue
		}
		if consider(hay[i:]) {
			return best
		}
	}
	return best
}
