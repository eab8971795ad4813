package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/store"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionInvalidated = errors.New("session invalidated")
)

// Claims extends JWT standard claims with the student profile fields the
// HTTP layer needs.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Authenticator verifies credentials against the data provider.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*model.UserProfile, error)
	DemoProfile() *model.UserProfile
}

// AppState is the portal's authentication state. It is constructed once,
// initialised from the store and passed to whatever needs the current user.
type AppState struct {
	cfg   *config.Config
	store store.Store
	auth  Authenticator
	log   zerolog.Logger

	mu   sync.RWMutex
	user *model.UserProfile
}

// NewAppState creates an AppState. Call Init before serving requests.
func NewAppState(cfg *config.Config, s store.Store, auth Authenticator, log zerolog.Logger) *AppState {
	return &AppState{
		cfg:   cfg,
		store: s,
		auth:  auth,
		log:   log.With().Str("component", "app_state").Logger(),
	}
}

// Init restores the stored user. A malformed record is removed.
func (a *AppState) Init(ctx context.Context) error {
	var user model.UserProfile
	err := store.GetJSON(ctx, a.store, config.StorageKey.CurrentUserKey(), &user)
	switch {
	case err == nil:
		a.setUser(&user)
		a.log.Info().Str("user_id", user.ID).Msg("Restored signed-in user")
		return nil
	case errors.Is(err, store.ErrNotFound):
		return nil
	}

	a.log.Warn().Err(err).Msg("Removing unreadable stored user")
	if delErr := a.store.Delete(ctx, config.StorageKey.CurrentUserKey()); delErr != nil {
		return fmt.Errorf("remove stored user: %w", delErr)
	}
	return nil
}

// Login authenticates a student and returns their profile with a token.
func (a *AppState) Login(ctx context.Context, email, password string) (*model.UserProfile, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	user, err := a.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return a.signIn(ctx, user)
}

// DemoLogin signs in the fixed demo account.
func (a *AppState) DemoLogin(ctx context.Context) (*model.UserProfile, string, error) {
	return a.signIn(ctx, a.auth.DemoProfile())
}

func (a *AppState) signIn(ctx context.Context, user *model.UserProfile) (*model.UserProfile, string, error) {
	if err := store.SetJSON(ctx, a.store, config.StorageKey.CurrentUserKey(), user); err != nil {
		return nil, "", fmt.Errorf("store user: %w", err)
	}
	token, err := a.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	a.setUser(user)
	a.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User signed in")
	return user, token, nil
}

// Logout clears the current user. Tokens issued before are rejected by
// Authorize from then on.
func (a *AppState) Logout(ctx context.Context) error {
	a.setUser(nil)
	if err := a.store.Delete(ctx, config.StorageKey.CurrentUserKey()); err != nil {
		return fmt.Errorf("remove stored user: %w", err)
	}
	a.log.Info().Msg("User signed out")
	return nil
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (a *AppState) CurrentUser() *model.UserProfile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// IsAuthenticated reports whether a user is signed in.
func (a *AppState) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user != nil
}

func (a *AppState) setUser(u *model.UserProfile) {
	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
}

// IssueToken signs an HS256 JWT for user.
func (a *AppState) IssueToken(user *model.UserProfile) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.JWTExpiry)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (a *AppState) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Authorize checks that claims belong to the signed-in user.
func (a *AppState) Authorize(claims *Claims) error {
	user := a.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}
	if user.ID != claims.UserID {
		return ErrSessionInvalidated
	}
	return nil
}
