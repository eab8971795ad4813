package service

import (
	"context"

	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/provider"
)

// DashboardSource supplies the student dashboard content.
type DashboardSource interface {
	RecommendedExams(subject string) []model.RecommendedExam
	SubjectProgress() map[string]int
	RecentActivity() []model.Activity
	Achievements() []model.Achievement
}

// DashboardData consolidates everything shown on the student dashboard.
type DashboardData struct {
	User             *model.UserProfile      `json:"user"`
	SelectedSubject  string                  `json:"selectedSubject"`
	RecommendedExams []model.RecommendedExam `json:"recommendedExams"`
	SubjectProgress  map[string]int          `json:"subjectProgress"`
	RecentActivity   []model.Activity        `json:"recentActivity"`
	Achievements     []model.Achievement     `json:"achievements"`
	Integrity        model.ViolationStats    `json:"integrity"`
}

// DashboardService builds the student dashboard.
type DashboardService struct {
	source     DashboardSource
	violations *ViolationService
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(source DashboardSource, violations *ViolationService) *DashboardService {
	return &DashboardService{source: source, violations: violations}
}

// GetDashboardData returns the dashboard for user, with recommended exams
// filtered to subject. An empty subject selects mathematics.
func (s *DashboardService) GetDashboardData(ctx context.Context, user *model.UserProfile, subject string) *DashboardData {
	if subject == "" {
		subject = provider.SubjectMathematics
	}
	return &DashboardData{
		User:             user,
		SelectedSubject:  subject,
		RecommendedExams: s.source.RecommendedExams(subject),
		SubjectProgress:  s.source.SubjectProgress(),
		RecentActivity:   s.source.RecentActivity(),
		Achievements:     s.source.Achievements(),
		Integrity:        s.violations.Stats(ctx),
	}
}
