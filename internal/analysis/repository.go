package analysis

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// ProfileSource supplies the review history the rating profile is built from.
type ProfileSource interface {
	UserRatingsAndRunningTimes(ctx context.Context, userID int64) ([]RatedRuntime, error)
}

// EntityIndex resolves the entities a movie is related to.
type EntityIndex interface {
	EntityIDsForMovie(ctx context.Context, movieID int64, class EntityClass) ([]int64, error)
}

// PreferenceSource is everything the preference scorer reads and writes.
type PreferenceSource interface {
	EntityIndex
	ReviewMovieID(ctx context.Context, reviewID int64) (int64, error)
	ReviewedMovieIDs(ctx context.Context, userID int64) (mapset.Set[int64], error)
	UserRatingStatsForEntity(ctx context.Context, userID, entityID int64, class EntityClass, restrictTo []int64) (EntityStats, error)
	PreviousPreferenceMap(ctx context.Context, userID int64, class EntityClass) (NullAffinityMap, error)
	PersistPreferenceMap(ctx context.Context, userID int64, class EntityClass, affinities AffinityMap) error
}

// RatingMatrix is the read model used by the similarity predictor.
type RatingMatrix interface {
	ListCandidateUsers(ctx context.Context, limit int) ([]int64, error)
	ListCandidateMovies(ctx context.Context, limit int) ([]CandidateMovie, error)
	UserPositiveRatings(ctx context.Context, userID int64) (RatingVector, error)
	ReviewedMovieIDs(ctx context.Context, userID int64) (mapset.Set[int64], error)
}

type entityOverride struct {
	PreferenceSource
	index EntityIndex
}

func (e entityOverride) EntityIDsForMovie(ctx context.Context, movieID int64, class EntityClass) ([]int64, error) {
	return e.index.EntityIDsForMovie(ctx, movieID, class)
}

// WithEntityIndex returns a PreferenceSource whose entity lookups are served by
// index instead of source. A nil index returns source unchanged.
func WithEntityIndex(source PreferenceSource, index EntityIndex) PreferenceSource {
	if index == nil {
		return source
	}
	return entityOverride{PreferenceSource: source, index: index}
}
