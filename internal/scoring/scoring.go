// Package scoring turns a submitted attempt into a results report.
// Everything here is pure: same inputs, same report.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/icas-portal/internal/model"
)

var (
	ErrNoExam    = errors.New("results requested without exam content")
	ErrEmptyExam = errors.New("exam has no questions to score")
)

// Time efficiency labels, keyed by the share of the time limit consumed.
const (
	EfficiencyRushed    = "Rushed - Consider using more time"
	EfficiencyEfficient = "Efficient - Good time management"
	EfficiencyThorough  = "Thorough - Used time well"
	EfficiencyMaximum   = "Maximum - Used full available time"
)

// improvementAreaCount is how many of the weakest topics are reported.
const improvementAreaCount = 2

// ComputeResults grades answers against exam and aggregates the outcome.
// answers maps question id to the selected option id; unanswered questions
// are simply absent. timeUsed is in seconds.
func ComputeResults(exam *model.Exam, answers map[string]string, timeUsed int) (*model.ResultsReport, error) {
	if exam == nil {
		return nil, ErrNoExam
	}
	total := len(exam.Questions)
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyExam, exam.ID)
	}

	var (
		correctCount int
		topics       []model.TopicResult
		topicIndex   = make(map[string]int)
		difficulty   = make(map[model.Difficulty]model.DifficultyResult, len(model.Difficulties))
		details      = make([]model.QuestionDetail, 0, total)
	)

	// Each difficulty bucket is initialised once, before any accumulation.
	for _, d := range model.Difficulties {
		difficulty[d] = model.DifficultyResult{}
	}

	for _, q := range exam.Questions {
		userAnswer, answered := answers[q.ID]
		correct := answered && userAnswer == q.CorrectAnswer
		if correct {
			correctCount++
		}

		idx, ok := topicIndex[q.Topic]
		if !ok {
			idx = len(topics)
			topicIndex[q.Topic] = idx
			topics = append(topics, model.TopicResult{Topic: q.Topic})
		}
		tr := &topics[idx]
		tr.Total++
		if correct {
			tr.Correct++
		} else {
			tr.Incorrect++
		}
		tr.Score = percent(tr.Correct, tr.Total)

		dr := difficulty[q.Difficulty]
		dr.Total++
		if correct {
			dr.Correct++
		}
		score := percent(dr.Correct, dr.Total)
		dr.Score = &score
		difficulty[q.Difficulty] = dr

		detail := model.QuestionDetail{Question: q, IsCorrect: correct}
		if answered && userAnswer != "" {
			ua := userAnswer
			detail.UserAnswer = &ua
		}
		details = append(details, detail)
	}

	scorePercentage := percent(correctCount, total)

	return &model.ResultsReport{
		ExamID:            exam.ID,
		ScorePercentage:   scorePercentage,
		CorrectCount:      correctCount,
		TotalQuestions:    total,
		TimeUsed:          timeUsed,
		TopicResults:      topics,
		DifficultyResults: difficulty,
		ImprovementAreas:  improvementAreas(topics),
		QuestionDetails:   details,
		Grade:             Grade(scorePercentage),
		NationalAverage:   model.NationalAverage,
		TimeEfficiency:    TimeEfficiency(timeUsed, exam.TimeLimit),
	}, nil
}

// Grade maps a percentage score to a letter grade; lower bounds are inclusive.
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "E"
	}
}

// TimeEfficiency classifies how much of timeLimit was consumed.
// Comparisons are done in integers so 40%/70%/95% boundaries are exact.
func TimeEfficiency(timeUsed, timeLimit int) string {
	if timeLimit <= 0 {
		return EfficiencyMaximum
	}
	used := int64(timeUsed) * 100
	limit := int64(timeLimit)
	switch {
	case used < 40*limit:
		return EfficiencyRushed
	case used < 70*limit:
		return EfficiencyEfficient
	case used < 95*limit:
		return EfficiencyThorough
	default:
		return EfficiencyMaximum
	}
}

// IsRushed reports whether an efficiency label is the rushed bucket.
func IsRushed(label string) bool {
	return strings.HasPrefix(label, "Rushed")
}

// percent returns round-half-up(part/whole*100) using integer arithmetic.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (part*200 + whole) / (2 * whole)
}

func improvementAreas(topics []model.TopicResult) []model.ImprovementArea {
	ranked := make([]model.TopicResult, len(topics))
	copy(ranked, topics)
	// Stable keeps encounter order among equal scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})
	if len(ranked) > improvementAreaCount {
		ranked = ranked[:improvementAreaCount]
	}

	areas := make([]model.ImprovementArea, 0, len(ranked))
	for _, t := range ranked {
		areas = append(areas, model.ImprovementArea{
			Topic:          t.Topic,
			Score:          t.Score,
			Recommendation: fmt.Sprintf("Focus on improving your %s skills.", strings.ToLower(t.Topic)),
		})
	}
	return areas
}
