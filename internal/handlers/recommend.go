package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/middleware"
	"github.com/temcen/filmtaste/internal/services"
	"github.com/temcen/filmtaste/pkg/models"
)

type RecommendHandler struct {
	logger      *logrus.Logger
	analysisSvc services.AnalysisServiceInterface
}

func NewRecommendHandler(logger *logrus.Logger, analysisSvc services.AnalysisServiceInterface) *RecommendHandler {
	return &RecommendHandler{
		logger:      logger,
		analysisSvc: analysisSvc,
	}
}

type recommendFunc func(ctx context.Context, userID int64, n int) ([]models.RecommendResponse, error)

// Expect lists the movies with the highest expected rating for the caller.
func (h *RecommendHandler) Expect(c *gin.Context) {
	h.recommend(c, "expect", h.analysisSvc.RecommendByExpectedRating)
}

// Difference lists the movies the caller is expected to rate furthest above
// their catalog average.
func (h *RecommendHandler) Difference(c *gin.Context) {
	h.recommend(c, "difference", h.analysisSvc.RecommendByDifference)
}

func (h *RecommendHandler) recommend(c *gin.Context, strategy string, fn recommendFunc) {
	userID, _, ok := middleware.GetUserFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "MISSING_USER", "Authenticated user required", nil)
		return
	}

	// zero lets the engine apply its default list size
	n := 0
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			abortWithError(c, http.StatusBadRequest, "INVALID_QUERY_PARAM", "n must be an integer between 1 and 50", nil)
			return
		}
		n = parsed
	}

	recs, err := fn(c.Request.Context(), userID, n)
	if err != nil {
		respondServiceError(c, h.logger, err, "Recommendation "+strategy)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": recs,
		"meta": gin.H{
			"strategy": strategy,
			"count":    len(recs),
		},
	})
}
