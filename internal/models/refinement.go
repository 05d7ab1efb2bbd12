package models

// RefinementResult records one iteration of the refinement loop.
type RefinementResult struct {
	Code         string   // candidate snapshot that was tested in this iteration
	Iteration    int      // 1-based
	PassRate     float64
	Improvements []string // deltas against the previous iteration
	Analysis     AnalysisResult
}

// History is the newest-first list of iterations.
type History []RefinementResult

// Prepend returns a new history with r in front. The receiver is not mutated.
func (h History) Prepend(r RefinementResult) History {
	out := make(History, 0, len(h)+1)
	out = append(out, r)
	return append(out, h...)
}

// Latest returns the newest entry, or false when the history is empty.
func (h History) Latest() (RefinementResult, bool) {
	if len(h) == 0 {
		return RefinementResult{}, false
	}
	return h[0], true
}

// PassRates returns pass rates newest-first.
func (h History) PassRates() []float64 {
	rates := make([]float64, len(h))
	for i, r := range h {
		rates[i] = r.PassRate
	}
	return rates
}
