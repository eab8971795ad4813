package service

import (
	"context"

	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, email, password string) (*model.UserProfile, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *MockAuthenticator) DemoProfile() *model.UserProfile {
	args := m.Called()
	return args.Get(0).(*model.UserProfile)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GetExamData(ctx context.Context, examID string) (*model.Exam, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Exam), args.Error(1)
}
