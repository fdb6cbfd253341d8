package detection

// Postprocessor filters or modifies a slice of detections.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter drops detections below a confidence threshold.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter keeps only detections whose label is in labels.
func NewLabelFilter(labels ...string) Postprocessor {
	keep := make(map[string]bool, len(labels))
	for _, l := range labels {
		keep[l] = true
	}
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if keep[d.Label] {
				out = append(out, d)
			}
		}
		return out
	}
}

// Chain applies postprocessors in order.
func Chain(pps ...Postprocessor) Postprocessor {
	return func(in []Detection) []Detection {
		for _, pp := range pps {
			in = pp(in)
		}
		return in
	}
}
