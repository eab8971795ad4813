package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	app *service.AppState
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(app *service.AppState) *AuthHandler {
	return &AuthHandler{app: app}
}

type loginResponse struct {
	Token string             `json:"token"`
	User  *model.UserProfile `json:"user"`
}

// Login godoc
// POST /api/v1/auth/login
// Signs a student in and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, token, err := h.app.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{Token: token, User: user})
}

// DemoLogin godoc
// POST /api/v1/auth/demo-login
// Signs in the demo student account.
func (h *AuthHandler) DemoLogin(c *gin.Context) {
	user, token, err := h.app.DemoLogin(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, loginResponse{Token: token, User: user})
}

// Logout godoc
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.app.Logout(c.Request.Context()); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the signed-in student's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user := h.app.CurrentUser()
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}
