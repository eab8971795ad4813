package scoring

import (
	"fmt"
	"strings"

	"github.com/stemsi/icas-portal/internal/model"
)

// hardPracticeThreshold is the hard-difficulty score below which extra
// practice with difficult problems is recommended.
const hardPracticeThreshold = 60

// Recommendations derives follow-up actions from a report. It describes the
// action route only; navigating is up to the caller.
func Recommendations(report *model.ResultsReport) []model.Recommendation {
	if report == nil {
		return nil
	}

	recs := make([]model.Recommendation, 0, len(report.ImprovementAreas)+2)

	for _, area := range report.ImprovementAreas {
		recs = append(recs, model.Recommendation{
			Type:        model.RecommendationTopic,
			Title:       fmt.Sprintf("Improve %s", area.Topic),
			Description: area.Recommendation,
			ActionText:  "Practice Now",
			ActionRoute: "/practice/" + strings.ToLower(area.Topic),
		})
	}

	if IsRushed(report.TimeEfficiency) {
		recs = append(recs, model.Recommendation{
			Type:        model.RecommendationTime,
			Title:       "Time Management",
			Description: "You completed the exam quickly. Consider taking more time to review your answers.",
			ActionText:  "Time Management Tips",
			ActionRoute: "/resources/time-management",
		})
	}

	// An undefined hard score (no hard questions) never triggers this.
	if hard, ok := report.DifficultyResults[model.DifficultyHard]; ok && hard.Score != nil && *hard.Score < hardPracticeThreshold {
		recs = append(recs, model.Recommendation{
			Type:        model.RecommendationDifficulty,
			Title:       "Challenge Yourself",
			Description: "You might benefit from more practice with difficult problems.",
			ActionText:  "Try Advanced Problems",
			ActionRoute: "/practice/advanced",
		})
	}

	return recs
}
