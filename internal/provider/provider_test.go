package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/icas-portal/internal/model"
)

func TestGetExamDataInfersSubjectAndTimeLimit(t *testing.T) {
	p := NewMock()
	cases := []struct {
		id      string
		subject string
		limit   int
		title   string
	}{
		{"math-2023", SubjectMathematics, 2400, "Mathematics 2023"},
		{"science-2022", SubjectScience, 1800, "Science 2022"},
		{"digiTech-2022", SubjectDigitalTech, 2700, "DigitalTech 2022"},
	}

	for _, tc := range cases {
		exam, err := p.GetExamData(context.Background(), tc.id)
		require.NoError(t, err, tc.id)
		assert.Equal(t, tc.subject, exam.Subject)
		assert.Equal(t, tc.limit, exam.TimeLimit)
		assert.Equal(t, tc.title, exam.Title)
		assert.Len(t, exam.Questions, 20)
	}
}

func TestGetExamDataIsDeterministicAndValid(t *testing.T) {
	p := NewMock()
	a, err := p.GetExamData(context.Background(), "math-2023")
	require.NoError(t, err)
	b, err := p.GetExamData(context.Background(), "math-2023")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.NoError(t, a.Validate())

	q := a.Questions[5]
	assert.Equal(t, "q6", q.ID)
	assert.Equal(t, 6, q.Number)
	assert.Equal(t, model.DifficultyHard, q.Difficulty)
	assert.Equal(t, "Geometry", q.Topic)
	assert.Equal(t, "q6_b", q.CorrectAnswer)
	assert.Equal(t, "Patterns", a.Questions[19].Topic)
}

func TestGetExamDataRejectsEmptyID(t *testing.T) {
	_, err := NewMock().GetExamData(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestGetExamDataHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().GetExamData(ctx, "math-2023")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateExamResultsDelegatesToScoring(t *testing.T) {
	p := NewMock()
	exam, err := p.GetExamData(context.Background(), "science-2023")
	require.NoError(t, err)

	answers := make(map[string]string)
	for _, q := range exam.Questions {
		answers[q.ID] = q.CorrectAnswer
	}

	report, err := p.CalculateExamResults(exam, answers, 900)
	require.NoError(t, err)
	assert.Equal(t, 100, report.ScorePercentage)
	assert.Equal(t, "A", report.Grade)
}

func TestDashboardData(t *testing.T) {
	p := NewMock()
	assert.Len(t, p.RecommendedExams(""), 5)
	assert.Len(t, p.RecommendedExams(SubjectScience), 2)
	assert.Equal(t, 88, p.SubjectProgress()[SubjectDigitalTech])
	assert.Nil(t, p.RecentActivity()[2].Score)
	assert.Len(t, p.Achievements(), 3)

	user, err := p.Authenticate(context.Background(), "sam@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "sam", user.FirstName)
	assert.Equal(t, "Alex", p.DemoProfile().FirstName)
}
