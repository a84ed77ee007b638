package autoframe

// largestDetection picks the candidate with the largest bounding-box area.
// Ties break in first-seen order (strict comparison keeps the earlier
// candidate). Pure function over immutable inputs — there is exactly one
// selection policy, so no dispatch abstraction is warranted.
func largestDetection(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	bestArea := area(best)
	for _, d := range dets[1:] {
		if a := area(d); a > bestArea {
			best = d
			bestArea = a
		}
	}
	return best, true
}

func area(d Detection) int {
	return d.Bounds.Dx() * d.Bounds.Dy()
}
