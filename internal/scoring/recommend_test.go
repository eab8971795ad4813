package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/icas-portal/internal/model"
)

func TestRecommendationsRushedAndWeakHard(t *testing.T) {
	exam := mixedExam()
	report, err := ComputeResults(exam, map[string]string{"q1": "q1_a"}, 60) // 10% of 600s
	require.NoError(t, err)

	recs := Recommendations(report)
	require.Len(t, recs, 4)

	assert.Equal(t, model.RecommendationTopic, recs[0].Type)
	assert.Equal(t, "Improve "+report.ImprovementAreas[0].Topic, recs[0].Title)
	assert.Equal(t, model.RecommendationTopic, recs[1].Type)

	assert.Equal(t, model.RecommendationTime, recs[2].Type)
	assert.Equal(t, "/resources/time-management", recs[2].ActionRoute)

	assert.Equal(t, model.RecommendationDifficulty, recs[3].Type)
	assert.Equal(t, "/practice/advanced", recs[3].ActionRoute)
}

func TestRecommendationsTopicRoute(t *testing.T) {
	exam := buildExam(100, questionDef{"Geometry", model.DifficultyEasy})
	report, err := ComputeResults(exam, nil, 50)
	require.NoError(t, err)

	recs := Recommendations(report)
	require.Len(t, recs, 1)
	assert.Equal(t, "/practice/geometry", recs[0].ActionRoute)
	assert.Equal(t, "Practice Now", recs[0].ActionText)
}

func TestRecommendationsStrongHardNoTimeAdvice(t *testing.T) {
	exam := buildExam(100,
		questionDef{"Algebra", model.DifficultyHard},
		questionDef{"Algebra", model.DifficultyHard},
	)
	report, err := ComputeResults(exam, map[string]string{"q1": "q1_a", "q2": "q2_a"}, 80)
	require.NoError(t, err)

	recs := Recommendations(report)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecommendationTopic, recs[0].Type)
}

func TestRecommendationsNilReport(t *testing.T) {
	assert.Nil(t, Recommendations(nil))
}
