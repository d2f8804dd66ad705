package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/internal/middleware"
	"github.com/temcen/filmtaste/pkg/models"
)

type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) SubmitReviewEvent(ctx context.Context, req *models.ReviewEventRequest) (*models.ReviewEventAccepted, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReviewEventAccepted), args.Error(1)
}

func (m *MockAnalysisService) Refresh(ctx context.Context, userID, movieID int64) (*models.RefreshResponse, error) {
	args := m.Called(ctx, userID, movieID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshResponse), args.Error(1)
}

func (m *MockAnalysisService) GetRatingProfile(ctx context.Context, userID int64) (*models.RatingProfileResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RatingProfileResponse), args.Error(1)
}

func (m *MockAnalysisService) GetPreferences(ctx context.Context, userID int64) (*models.PreferenceResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PreferenceResponse), args.Error(1)
}

func (m *MockAnalysisService) RecommendByExpectedRating(ctx context.Context, userID int64, n int) ([]models.RecommendResponse, error) {
	args := m.Called(ctx, userID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecommendResponse), args.Error(1)
}

func (m *MockAnalysisService) RecommendByDifference(ctx context.Context, userID int64, n int) ([]models.RecommendResponse, error) {
	args := m.Called(ctx, userID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecommendResponse), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// asUser stands in for the auth middleware.
func asUser(userID int64, tier string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserTier, tier)
		c.Next()
	}
}

func newTestRouter(svc *MockAnalysisService, caller int64, tier string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := testLogger()
	analysis := NewAnalysisHandler(logger, svc)
	recommend := NewRecommendHandler(logger, svc)

	router := gin.New()
	api := router.Group("/api/v1")
	if caller > 0 {
		api.Use(asUser(caller, tier))
	}
	api.GET("/analysis/:userId", analysis.Get)
	api.POST("/analysis/:userId/refresh", analysis.Refresh)
	api.POST("/analysis/events", analysis.SubmitEvent)
	api.GET("/recommend/expect", recommend.Expect)
	api.GET("/recommend/difference", recommend.Difference)
	return router
}

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decode(t, w)["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %s", w.Body.String())
	return errObj["code"].(string)
}
