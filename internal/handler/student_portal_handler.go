package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/validator"
)

// StudentPortalHandler handles student exam endpoints outside the live
// stream.
type StudentPortalHandler struct {
	exams      provider.Provider
	results    *service.ResultsService
	violations *service.ViolationService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	exams provider.Provider,
	results *service.ResultsService,
	violations *service.ViolationService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		exams:      exams,
		results:    results,
		violations: violations,
	}
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the exam without correct answers or explanations.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	examID := c.Param("exam_id")
	if err := validator.ExamID(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.exams.GetExamData(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, provider.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrExamLoadFailed)
		return
	}

	response.Success(c, http.StatusOK, exam.ForStudent())
}

type resultsResponse struct {
	Report          *model.ResultsReport   `json:"report"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

// GetExamResults godoc
// GET /api/v1/student/exams/:exam_id/results
// Returns the last report computed for the exam.
func (h *StudentPortalHandler) GetExamResults(c *gin.Context) {
	examID := c.Param("exam_id")
	if err := validator.ExamID(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.results.Cached(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrResultsUnavailable)
		return
	}

	response.Success(c, http.StatusOK, resultsResponse{
		Report:          report,
		Recommendations: h.results.Recommendations(report),
	})
}

// GetViolationStats godoc
// GET /api/v1/student/violations/stats
func (h *StudentPortalHandler) GetViolationStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.violations.Stats(c.Request.Context()))
}
