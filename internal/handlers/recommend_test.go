package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/pkg/models"
)

func TestRecommendHandler(t *testing.T) {
	recs := []models.RecommendResponse{
		{MovieID: 3, Title: "m3", Year: 2019, Countries: []string{"한국"}, ExpectedRating: 5},
		{MovieID: 6, Title: "m6", Countries: []string{}, ExpectedRating: 3},
	}

	tests := []struct {
		name           string
		caller         int64
		path           string
		mockSetup      func(*MockAnalysisService)
		expectedStatus int
		expectedError  string
	}{
		{
			name:   "expected rating with default size",
			caller: 1,
			path:   "/api/v1/recommend/expect",
			mockSetup: func(m *MockAnalysisService) {
				m.On("RecommendByExpectedRating", mock.Anything, int64(1), 0).Return(recs, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "difference with explicit size",
			caller: 1,
			path:   "/api/v1/recommend/difference?n=2",
			mockSetup: func(m *MockAnalysisService) {
				m.On("RecommendByDifference", mock.Anything, int64(1), 2).Return(recs, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "size out of range",
			caller:         1,
			path:           "/api/v1/recommend/expect?n=500",
			mockSetup:      func(m *MockAnalysisService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_QUERY_PARAM",
		},
		{
			name:           "unauthenticated",
			path:           "/api/v1/recommend/expect",
			mockSetup:      func(m *MockAnalysisService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "MISSING_USER",
		},
		{
			name:   "timeout",
			caller: 1,
			path:   "/api/v1/recommend/expect",
			mockSetup: func(m *MockAnalysisService) {
				m.On("RecommendByExpectedRating", mock.Anything, int64(1), 0).Return(nil, context.DeadlineExceeded)
			},
			expectedStatus: http.StatusGatewayTimeout,
			expectedError:  "TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAnalysisService)
			tt.mockSetup(svc)
			router := newTestRouter(svc, tt.caller, "")

			w := perform(router, http.MethodGet, tt.path, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(t, w))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestRecommendHandler_Body(t *testing.T) {
	svc := new(MockAnalysisService)
	svc.On("RecommendByExpectedRating", mock.Anything, int64(1), 0).Return([]models.RecommendResponse{
		{MovieID: 3, Title: "m3", Year: 2019, Countries: []string{"한국"}, ExpectedRating: 4.75},
	}, nil)
	router := newTestRouter(svc, 1, "")

	w := perform(router, http.MethodGet, "/api/v1/recommend/expect", "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	data := response["data"].([]interface{})
	require.Len(t, data, 1)
	movie := data[0].(map[string]interface{})
	assert.Equal(t, float64(3), movie["movie_id"])
	assert.Equal(t, 4.75, movie["expected_rating"])
	assert.Equal(t, []interface{}{"한국"}, movie["countries"])
	assert.Contains(t, movie, "poster_url")
	assert.Nil(t, movie["poster_url"])
	assert.Equal(t, "expect", response["meta"].(map[string]interface{})["strategy"])
}
