package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/middleware"
	"github.com/temcen/filmtaste/internal/services"
	"github.com/temcen/filmtaste/pkg/models"
)

type AnalysisHandler struct {
	logger      *logrus.Logger
	analysisSvc services.AnalysisServiceInterface
}

func NewAnalysisHandler(logger *logrus.Logger, analysisSvc services.AnalysisServiceInterface) *AnalysisHandler {
	return &AnalysisHandler{
		logger:      logger,
		analysisSvc: analysisSvc,
	}
}

// Get serves GET /analysis/:userId?analysis_q=rating|preference.
func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	switch c.Query("analysis_q") {
	case "rating":
		profile, err := h.analysisSvc.GetRatingProfile(c.Request.Context(), userID)
		if err != nil {
			respondServiceError(c, h.logger, err, "Rating profile lookup")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": profile})

	case "preference":
		prefs, err := h.analysisSvc.GetPreferences(c.Request.Context(), userID)
		if err != nil {
			respondServiceError(c, h.logger, err, "Preference lookup")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": prefs})

	default:
		abortWithError(c, http.StatusBadRequest, "INVALID_ANALYSIS_QUERY", "analysis_q must be 'rating' or 'preference'", nil)
	}
}

// Refresh recomputes the caller's rating profile, and the preferences tied to
// movie_id when one is given.
func (h *AnalysisHandler) Refresh(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	if !h.authorized(c, userID) {
		return
	}

	var req models.RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
			return
		}
	}
	if err := validate.Struct(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", validationDetails(err))
		return
	}

	response, err := h.analysisSvc.Refresh(c.Request.Context(), userID, req.MovieID)
	if err != nil {
		respondServiceError(c, h.logger, err, "Analysis refresh")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": response})
}

// SubmitEvent accepts a review mutation. Queued events answer 202, events
// processed inline answer 200.
func (h *AnalysisHandler) SubmitEvent(c *gin.Context) {
	var req models.ReviewEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", validationDetails(err))
		return
	}
	if !h.authorized(c, req.UserID) {
		return
	}

	accepted, err := h.analysisSvc.SubmitReviewEvent(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, err, "Review event submission")
		return
	}

	status := http.StatusOK
	if accepted.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": accepted})
}

// authorized lets users act on themselves and internal callers on anyone.
func (h *AnalysisHandler) authorized(c *gin.Context, userID int64) bool {
	caller, tier, ok := middleware.GetUserFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "MISSING_USER", "Authenticated user required", nil)
		return false
	}
	if caller != userID && tier != internalTier {
		h.logger.WithFields(logrus.Fields{
			"caller_id": caller,
			"user_id":   userID,
		}).Warn("Rejected analysis request for another user")
		abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Cannot act on behalf of another user", nil)
		return false
	}
	return true
}
