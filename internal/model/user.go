package model

// UserProfile is the current-user record stored under icasUser.
type UserProfile struct {
	ID            string `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	TrialDaysLeft int    `json:"trialDaysLeft"`
}

// LoginRequest is the payload for a student login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,trimmed_email,max=255"`
	Password string `json:"password" binding:"required,min=1,max=128"`
}

// RecommendedExam is a dashboard entry pointing at an available exam.
type RecommendedExam struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Difficulty   string `json:"difficulty"`
	TimeEstimate int    `json:"timeEstimate"`
	Subject      string `json:"subject"`
}

// Activity is a recent dashboard activity line. Score is nil when not graded.
type Activity struct {
	Date   string `json:"date"`
	Action string `json:"action"`
	Score  *int   `json:"score"`
}

// Achievement tracks progress towards a dashboard badge.
type Achievement struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	Total       int    `json:"total"`
}
