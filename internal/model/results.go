package model

import "time"

// NationalAverage is the fixed reference score shown next to a result.
const NationalAverage = 72

// TopicResult aggregates correctness for one topic.
type TopicResult struct {
	Topic     string `json:"topic"`
	Total     int    `json:"total"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Score     int    `json:"score"`
}

// DifficultyResult aggregates correctness for one difficulty level.
// Score is nil when no question of that difficulty exists.
type DifficultyResult struct {
	Total   int  `json:"total"`
	Correct int  `json:"correct"`
	Score   *int `json:"score"`
}

// ImprovementArea is a low-scoring topic selected for targeted practice.
type ImprovementArea struct {
	Topic          string `json:"topic"`
	Score          int    `json:"score"`
	Recommendation string `json:"recommendation"`
}

// QuestionDetail annotates a question with the student's outcome.
type QuestionDetail struct {
	Question
	IsCorrect  bool    `json:"isCorrect"`
	UserAnswer *string `json:"userAnswer"`
}

// ResultsReport is the immutable outcome of one submitted attempt.
type ResultsReport struct {
	ExamID            string                          `json:"examId"`
	ScorePercentage   int                             `json:"scorePercentage"`
	CorrectCount      int                             `json:"correctCount"`
	TotalQuestions    int                             `json:"totalQuestions"`
	TimeUsed          int                             `json:"timeUsed"`
	TopicResults      []TopicResult                   `json:"topicResults"`
	DifficultyResults map[Difficulty]DifficultyResult `json:"difficultyResults"`
	ImprovementAreas  []ImprovementArea               `json:"improvementAreas"`
	QuestionDetails   []QuestionDetail                `json:"questionDetails"`
	Grade             string                          `json:"grade"`
	NationalAverage   int                             `json:"nationalAverage"`
	TimeEfficiency    string                          `json:"timeEfficiency"`
}

// RecommendationType tags the origin of a recommendation.
type RecommendationType string

const (
	RecommendationTopic      RecommendationType = "topic"
	RecommendationTime       RecommendationType = "time"
	RecommendationDifficulty RecommendationType = "difficulty"
)

// Recommendation describes a follow-up action; it never performs it.
type Recommendation struct {
	Type        RecommendationType `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	ActionText  string             `json:"actionText"`
	ActionRoute string             `json:"actionRoute"`
}

// ArchivedResult is the row queued for the exam_results archive.
type ArchivedResult struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	ExamID          string         `json:"exam_id"`
	ScorePercentage int            `json:"score_percentage"`
	Grade           string         `json:"grade"`
	CorrectCount    int            `json:"correct_count"`
	TotalQuestions  int            `json:"total_questions"`
	TimeUsed        int            `json:"time_used"`
	Forced          bool           `json:"forced"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	Report          *ResultsReport `json:"report"`
}
