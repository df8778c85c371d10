package matcher

// LevenshteinDistance is the number of single-rune edits turning a into b.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	runesA, runesB := []rune(a), []rune(b)
	if len(runesA) == 0 {
		return len(runesB)
	}
	if len(runesB) == 0 {
		return len(runesA)
	}

	prev := make([]int, len(runesB)+1)
	curr := make([]int, len(runesB)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(runesA); i++ {
		curr[0] = i
		for j := 1; j <= len(runesB); j++ {
			cost := 1
			if runesA[i-1] == runesB[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(runesB)]
}

// EditSimilarity normalises the distance to [0,1], 1 meaning identical.
func EditSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(LevenshteinDistance(a, b))/float64(longest)
}
