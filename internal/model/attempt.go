package model

// Phase enumerates the lifecycle phases of an exam attempt.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitted  Phase = "submitted"
	// PhaseFailed is terminal: the exam content could not be loaded.
	PhaseFailed Phase = "failed"
)

// AttemptState is the mutable state of one (exam, user) attempt.
type AttemptState struct {
	ExamID         string            `json:"exam_id"`
	Answers        map[string]string `json:"answers"`
	Flagged        []string          `json:"flagged"`
	CurrentIndex   int               `json:"current_index"`
	TimeRemaining  int               `json:"time_remaining"`
	ViolationCount int               `json:"violation_count"`
	Phase          Phase             `json:"phase"`
}

// ProgressSnapshot is the persisted form of an attempt stored under
// exam_progress_<examId>. Field names match the client storage format.
type ProgressSnapshot struct {
	Answers      map[string]string `json:"answers"`
	Flagged      []string          `json:"flagged"`
	CurrentIndex int               `json:"currentIndex"`
	TimeLeft     int               `json:"timeLeft"`
}

// Submission is handed downstream when an attempt is submitted.
type Submission struct {
	ExamID   string            `json:"exam_id"`
	Answers  map[string]string `json:"answers"`
	TimeUsed int               `json:"time_used"`
	Flagged  []string          `json:"flagged"`
	// Forced is true when the countdown reached zero.
	Forced bool `json:"forced"`
}
