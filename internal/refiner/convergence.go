package refiner

import (
	"fmt"

	"github.com/harrison/crucible/internal/models"
)

// convergenceWindow is the number of most recent iterations compared.
const convergenceWindow = 3

// DetectConvergence reports whether the newest three pass rates in history
// span less than width. Histories shorter than three never converge.
func DetectConvergence(history models.History, width float64) bool {
	if len(history) < convergenceWindow {
		return false
	}
	lo, hi := history[0].PassRate, history[0].PassRate
	for _, r := range history[1:convergenceWindow] {
		if r.PassRate < lo {
			lo = r.PassRate
		}
		if r.PassRate > hi {
			hi = r.PassRate
		}
	}
	return hi-lo < width
}

// TrackImprovements describes what changed between two consecutive analyses:
// one "fixed N <category> error(s)" line per category whose failure count
// dropped, or an "initial iteration" line when previous is nil.
func TrackImprovements(current models.AnalysisResult, previous *models.AnalysisResult) []string {
	if previous == nil {
		return []string{fmt.Sprintf("initial iteration: %.1f%% passing", current.PassRate*100)}
	}

	before := previous.CategoryCounts()
	after := current.CategoryCounts()
	var out []string
	for _, cat := range models.FailureCategories {
		if fixed := before[cat] - after[cat]; fixed > 0 {
			out = append(out, fmt.Sprintf("fixed %d %s error(s)", fixed, cat))
		}
	}
	return out
}
