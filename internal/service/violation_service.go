package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"golang.org/x/crypto/bcrypt"
)

// ErrReviewerNotConfigured is returned by Clear when no reviewer hash is set.
var ErrReviewerNotConfigured = errors.New("reviewer passphrase not configured")

// ViolationService exposes the violation log for review.
type ViolationService struct {
	log          *proctor.Log
	reviewerHash string
	logger       zerolog.Logger
}

// NewViolationService creates a ViolationService. reviewerHash is a bcrypt
// hash; empty disables clearing.
func NewViolationService(l *proctor.Log, reviewerHash string, logger zerolog.Logger) *ViolationService {
	return &ViolationService{
		log:          l,
		reviewerHash: reviewerHash,
		logger:       logger.With().Str("component", "violation_service").Logger(),
	}
}

// Stats summarises the log.
func (s *ViolationService) Stats(ctx context.Context) model.ViolationStats {
	return s.log.Stats(ctx)
}

// Entries returns every logged violation in detection order.
func (s *ViolationService) Entries(ctx context.Context) []model.ViolationEntry {
	return s.log.Entries(ctx)
}

// Verify checks a reviewer passphrase.
func (s *ViolationService) Verify(passphrase string) error {
	if s.reviewerHash == "" {
		return ErrReviewerNotConfigured
	}
	if err := CheckPassphrase(s.reviewerHash, passphrase); err != nil {
		s.logger.Warn().Msg("Rejected reviewer passphrase")
		return err
	}
	return nil
}

// Clear empties the log after checking the reviewer passphrase.
func (s *ViolationService) Clear(ctx context.Context, passphrase string) error {
	if err := s.Verify(passphrase); err != nil {
		return err
	}
	return s.log.Clear(ctx)
}

// HashPassphrase hashes a reviewer passphrase with the default bcrypt cost.
func HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassphrase compares a plaintext passphrase against a bcrypt hash.
func CheckPassphrase(hash, passphrase string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
