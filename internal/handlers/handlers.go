package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/services"
)

type Handlers struct {
	Health    *HealthHandler
	Analysis  *AnalysisHandler
	Recommend *RecommendHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(logger, services.Health),
		Analysis:  NewAnalysisHandler(logger, services.Analysis),
		Recommend: NewRecommendHandler(logger, services.Analysis),
	}
}

var validate = validator.New()

// internalTier may act on behalf of any user, e.g. the review service
// forwarding review events.
const internalTier = "internal"

func abortWithError(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// respondServiceError maps service errors to the API error envelope.
func respondServiceError(c *gin.Context, logger *logrus.Logger, err error, operation string) {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		abortWithError(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Rating profile not found", nil)
	case errors.Is(err, services.ErrPreferenceNotFound):
		abortWithError(c, http.StatusNotFound, "PREFERENCE_NOT_FOUND", "Preference analysis not found", nil)
	case errors.Is(err, services.ErrInvalidEvent):
		abortWithError(c, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		logger.WithError(err).Warnf("%s timed out", operation)
		abortWithError(c, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
	default:
		logger.WithError(err).Errorf("%s failed", operation)
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

func parseUserIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer", nil)
		return 0, false
	}
	return userID, true
}

func validationDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return gin.H{"fieldErrors": fields}
}
