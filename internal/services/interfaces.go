package services

import (
	"context"

	"github.com/temcen/filmtaste/internal/analysis"
	"github.com/temcen/filmtaste/pkg/models"
)

// AnalysisStore is the storage the analysis service runs on.
type AnalysisStore interface {
	analysis.ProfileSource
	analysis.PreferenceSource
	analysis.RatingMatrix
	SaveRatingProfile(ctx context.Context, profile *analysis.RatingProfile) error
	LoadRatingProfile(ctx context.Context, userID int64) (*analysis.RatingProfile, error)
	LoadPreferenceMap(ctx context.Context, userID int64) (*analysis.PreferenceMap, error)
	EntityNames(ctx context.Context, class analysis.EntityClass, ids []int64) (map[int64]string, error)
}

// EventPublisher queues review events for asynchronous processing.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ReviewEvent) error
}

// AnalysisServiceInterface is what the HTTP layer depends on.
type AnalysisServiceInterface interface {
	SubmitReviewEvent(ctx context.Context, req *models.ReviewEventRequest) (*models.ReviewEventAccepted, error)
	Refresh(ctx context.Context, userID, movieID int64) (*models.RefreshResponse, error)
	GetRatingProfile(ctx context.Context, userID int64) (*models.RatingProfileResponse, error)
	GetPreferences(ctx context.Context, userID int64) (*models.PreferenceResponse, error)
	RecommendByExpectedRating(ctx context.Context, userID int64, n int) ([]models.RecommendResponse, error)
	RecommendByDifference(ctx context.Context, userID int64, n int) ([]models.RecommendResponse, error)
}

// AuthServiceInterface verifies bearer tokens.
type AuthServiceInterface interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// RateLimitServiceInterface decides whether a caller may proceed.
type RateLimitServiceInterface interface {
	IsAllowed(userID, userTier string) (bool, *models.RateLimitInfo, error)
}
