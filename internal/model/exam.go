package model

import (
	"errors"
	"fmt"
)

// ErrInvalidExam is wrapped by every Exam.Validate failure.
var ErrInvalidExam = errors.New("invalid exam content")

// Difficulty enumerates question difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties is the fixed, ordered difficulty set used for aggregation.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Option is a single selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single multiple-choice exam question.
type Question struct {
	ID            string     `json:"id"`
	Number        int        `json:"number"`
	Content       string     `json:"content"`
	ImageURL      *string    `json:"image,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic"`
	CorrectAnswer string     `json:"correctAnswer"`
	Explanation   string     `json:"explanation"`
	Options       []Option   `json:"options"`
}

// HasOption reports whether optionID belongs to the question.
func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Exam is the immutable content of one exam. TimeLimit is in seconds.
type Exam struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subject   string     `json:"subject"`
	TimeLimit int        `json:"timeLimit"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given id, or nil.
func (e *Exam) Question(id string) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of exam content.
func (e *Exam) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidExam)
	}
	if e.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidExam)
	}
	if len(e.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidExam)
	}

	seen := make(map[string]struct{}, len(e.Questions))
	for i, q := range e.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidExam, i+1)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidExam, q.ID)
		}
		seen[q.ID] = struct{}{}

		if q.Number != i+1 {
			return fmt.Errorf("%w: question %q numbered %d at position %d", ErrInvalidExam, q.ID, q.Number, i+1)
		}
		if !q.Difficulty.Valid() {
			return fmt.Errorf("%w: question %q has unknown difficulty %q", ErrInvalidExam, q.ID, q.Difficulty)
		}

		matches := 0
		for _, o := range q.Options {
			if o.ID == q.CorrectAnswer {
				matches++
			}
		}
		if matches != 1 {
			return fmt.Errorf("%w: question %q must have exactly one correct option", ErrInvalidExam, q.ID)
		}
	}
	return nil
}

// ExamPaper is the student-facing view of an exam (no answer key).
type ExamPaper struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Subject   string               `json:"subject"`
	TimeLimit int                  `json:"timeLimit"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer or explanation.
type QuestionForStudent struct {
	ID         string     `json:"id"`
	Number     int        `json:"number"`
	Content    string     `json:"content"`
	ImageURL   *string    `json:"image,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
	Topic      string     `json:"topic"`
	Options    []Option   `json:"options"`
}

// ForStudent projects the exam into its student-facing paper.
func (e *Exam) ForStudent() ExamPaper {
	qs := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = QuestionForStudent{
			ID:         q.ID,
			Number:     q.Number,
			Content:    q.Content,
			ImageURL:   q.ImageURL,
			Difficulty: q.Difficulty,
			Topic:      q.Topic,
			Options:    q.Options,
		}
	}
	return ExamPaper{
		ID:        e.ID,
		Title:     e.Title,
		Subject:   e.Subject,
		TimeLimit: e.TimeLimit,
		Questions: qs,
	}
}
