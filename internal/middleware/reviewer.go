package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
)

// ReviewerHeader carries the reviewer passphrase on read-only review routes.
const ReviewerHeader = "X-Reviewer-Passphrase"

// RequireReviewer rejects requests without a valid reviewer passphrase.
func RequireReviewer(violations *service.ViolationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := violations.Verify(c.GetHeader(ReviewerHeader))
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrReviewerNotConfigured):
			response.AbortFail(c, http.StatusForbidden, response.ErrReviewerDisabled)
		default:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrInvalidPassphrase)
		}
	}
}
