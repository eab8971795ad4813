package provider

import (
	"context"
	"strings"

	"github.com/stemsi/icas-portal/internal/model"
)

// RecommendedExams lists exams to offer the student, optionally filtered by subject.
func (p *Mock) RecommendedExams(subject string) []model.RecommendedExam {
	exams := []model.RecommendedExam{
		{ID: "math-2023", Title: "Mathematics 2023", Difficulty: "Medium", TimeEstimate: 40, Subject: SubjectMathematics},
		{ID: "science-2023", Title: "Science 2023", Difficulty: "Hard", TimeEstimate: 30, Subject: SubjectScience},
		{ID: "digiTech-2022", Title: "Digital Technologies 2022", Difficulty: "Easy", TimeEstimate: 45, Subject: SubjectDigitalTech},
		{ID: "math-2022", Title: "Mathematics 2022", Difficulty: "Easy", TimeEstimate: 40, Subject: SubjectMathematics},
		{ID: "science-2022", Title: "Science 2022", Difficulty: "Medium", TimeEstimate: 30, Subject: SubjectScience},
	}
	if subject == "" {
		return exams
	}

	filtered := make([]model.RecommendedExam, 0, len(exams))
	for _, e := range exams {
		if e.Subject == subject {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// SubjectProgress returns completion percentages per subject.
func (p *Mock) SubjectProgress() map[string]int {
	return map[string]int{
		SubjectMathematics: 72,
		SubjectScience:     45,
		SubjectDigitalTech: 88,
	}
}

// RecentActivity returns the student's latest activity lines.
func (p *Mock) RecentActivity() []model.Activity {
	score := func(v int) *int { return &v }
	return []model.Activity{
		{Date: "2 days ago", Action: "Completed Mathematics 2022", Score: score(85)},
		{Date: "5 days ago", Action: "Practiced Science (10 questions)", Score: score(70)},
		{Date: "1 week ago", Action: "Started Digital Technologies", Score: nil},
	}
}

// Achievements returns badge progress for the dashboard.
func (p *Mock) Achievements() []model.Achievement {
	return []model.Achievement{
		{Title: "Math Wizard", Description: "Complete 5 Mathematics exams", Progress: 3, Total: 5},
		{Title: "Perfect Score", Description: "Get 100% on any exam", Progress: 0, Total: 1},
		{Title: "Study Streak", Description: "5 days in a row", Progress: 2, Total: 5},
	}
}

// Authenticate accepts any credentials and returns a student profile.
func (p *Mock) Authenticate(ctx context.Context, email, _ string) (*model.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first := email
	if at := strings.Index(email, "@"); at >= 0 {
		first = email[:at]
	}
	return &model.UserProfile{
		ID:            "12345",
		FirstName:     first,
		LastName:      "Student",
		Email:         email,
		Role:          "student",
		TrialDaysLeft: 7,
	}, nil
}

// DemoProfile is the fixed profile used by the demo login.
func (p *Mock) DemoProfile() *model.UserProfile {
	return &model.UserProfile{
		ID:            "12345",
		FirstName:     "Alex",
		LastName:      "Student",
		Email:         "student@example.com",
		Role:          "student",
		TrialDaysLeft: 5,
	}
}
