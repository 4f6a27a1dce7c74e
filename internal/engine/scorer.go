package engine

// Confidence combines independent-evidence trust weights into a single
// score: 1 - Π(1 - w_i) over the distinct contributing sources. The result
// is bounded to [0,1], equals the source's own weight when exactly one
// source contributed, and strictly increases with every additional
// positive-weight corroborating source. A source with weight 0 contributes
// observations but no confidence.
func Confidence(sources map[string]bool, trust map[string]float64) float64 {
	miss := 1.0
	contributed := false
	for name := range sources {
		w := trust[name]
		if w <= 0 {
			continue
		}
		if w > 1 {
			w = 1
		}
		contributed = true
		miss *= 1 - w
	}
	if !contributed {
		return 0
	}
	return 1 - miss
}
