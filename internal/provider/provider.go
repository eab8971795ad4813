// Package provider is the exam content source. The Mock provider generates
// deterministic content from the exam id; a backend-backed provider only has
// to satisfy the same Provider contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/scoring"
)

// ErrExamNotFound is returned when no exam content exists for an id.
var ErrExamNotFound = errors.New("exam not found")

// Provider supplies exam content to the session state machine.
type Provider interface {
	GetExamData(ctx context.Context, examID string) (*model.Exam, error)
}

const (
	SubjectMathematics = "mathematics"
	SubjectScience     = "science"
	SubjectDigitalTech = "digitalTech"

	questionsPerExam  = 20
	questionsPerTopic = 4
)

const explanationFormat = "This question tests your understanding of %s. " +
	"The correct approach is to first identify the pattern, then apply the appropriate formula."

var (
	topics        = []string{"Algebra", "Geometry", "Numbers", "Statistics", "Patterns"}
	optionLetters = []string{"a", "b", "c", "d"}
)

// Mock is the local data provider used by the portal.
type Mock struct{}

// NewMock creates a Mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// GetExamData returns the exam for examID. The subject is inferred from the
// id and drives the time limit; content is validated before it is returned.
func (p *Mock) GetExamData(ctx context.Context, examID string) (*model.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(examID) == "" {
		return nil, ErrExamNotFound
	}

	subject := InferSubject(examID)
	year := "2022"
	if strings.Contains(examID, "2023") {
		year = "2023"
	}

	exam := &model.Exam{
		ID:        examID,
		Title:     fmt.Sprintf("%s %s", capitalize(subject), year),
		Subject:   subject,
		TimeLimit: TimeLimitFor(subject),
		Questions: make([]model.Question, 0, questionsPerExam),
	}

	for i := 0; i < questionsPerExam; i++ {
		id := fmt.Sprintf("q%d", i+1)
		topic := topics[i/questionsPerTopic]

		options := make([]model.Option, len(optionLetters))
		for j, letter := range optionLetters {
			options[j] = model.Option{
				ID:   fmt.Sprintf("%s_%s", id, letter),
				Text: "Answer option " + strings.ToUpper(letter),
			}
		}

		exam.Questions = append(exam.Questions, model.Question{
			ID:            id,
			Number:        i + 1,
			Content:       fmt.Sprintf("Question %d: What is the result of the following equation?", i+1),
			Difficulty:    model.Difficulties[i%len(model.Difficulties)],
			Topic:         topic,
			CorrectAnswer: fmt.Sprintf("%s_%s", id, optionLetters[i%len(optionLetters)]),
			Explanation:   fmt.Sprintf(explanationFormat, topic),
			Options:       options,
		})
	}

	if err := exam.Validate(); err != nil {
		return nil, fmt.Errorf("exam %s: %w", examID, err)
	}
	return exam, nil
}

// CalculateExamResults is the scoring boundary used by the rendering layer.
func (p *Mock) CalculateExamResults(exam *model.Exam, answers map[string]string, timeUsed int) (*model.ResultsReport, error) {
	return scoring.ComputeResults(exam, answers, timeUsed)
}

// InferSubject derives the subject from an exam id.
func InferSubject(examID string) string {
	switch {
	case strings.Contains(examID, "math"):
		return SubjectMathematics
	case strings.Contains(examID, "science"):
		return SubjectScience
	default:
		return SubjectDigitalTech
	}
}

// TimeLimitFor returns the time limit in seconds for a subject.
func TimeLimitFor(subject string) int {
	switch subject {
	case SubjectMathematics:
		return 40 * 60
	case SubjectScience:
		return 30 * 60
	default:
		return 45 * 60
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
