package analysis_test

import (
	"context"
	"errors"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/internal/analysis"
	"github.com/temcen/filmtaste/internal/repository"
)

// seedMatrix builds a pool where user 1 rated movies 1 and 2, user 2 shares
// user 1's taste and also rated movies 3 and 4, and user 9 rated nothing.
func seedMatrix() *repository.Memory {
	store := repository.NewMemory()
	for _, id := range []int64{1, 2, 9} {
		store.AddUser(id)
	}
	store.SetEntityName(analysis.EntityCountry, 82, "한국")
	store.AddMovie(repository.MemoryMovie{ID: 1, Title: "m1", AverageRating: ptr(4.0)})
	store.AddMovie(repository.MemoryMovie{ID: 2, Title: "m2", AverageRating: ptr(3.5)})
	store.AddMovie(repository.MemoryMovie{ID: 3, Title: "m3", Year: 2019, AverageRating: ptr(3.0), Countries: []int64{82}})
	store.AddMovie(repository.MemoryMovie{ID: 4, Title: "m4", AverageRating: ptr(2.0)})
	store.AddMovie(repository.MemoryMovie{ID: 5, Title: "m5"})
	store.AddMovie(repository.MemoryMovie{ID: 6, Title: "m6", AverageRating: ptr(4.5)})

	store.PutReview(repository.MemoryReview{ID: 1, UserID: 1, MovieID: 1, Rating: ptr(5.0)})
	store.PutReview(repository.MemoryReview{ID: 2, UserID: 1, MovieID: 2, Rating: ptr(1.0)})
	store.PutReview(repository.MemoryReview{ID: 3, UserID: 2, MovieID: 1, Rating: ptr(4.0)})
	store.PutReview(repository.MemoryReview{ID: 4, UserID: 2, MovieID: 2, Rating: ptr(2.0)})
	store.PutReview(repository.MemoryReview{ID: 5, UserID: 2, MovieID: 3, Rating: ptr(5.0)})
	store.PutReview(repository.MemoryReview{ID: 6, UserID: 2, MovieID: 4, Rating: ptr(1.0)})
	return store
}

func movieIDs(results []analysis.ExpectedRatingResult) []int64 {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.MovieID)
	}
	return ids
}

func TestPredictor_ExpectedRatings(t *testing.T) {
	predictor := analysis.NewPredictor(seedMatrix(), analysis.DefaultPredictorConfig())

	expectations, err := predictor.ExpectedRatings(context.Background(), 1)
	require.NoError(t, err)

	expected := map[int64]float64{}
	for _, e := range expectations {
		expected[e.Movie.ID] = e.Expected
	}

	// reviewed movies and movies without a catalog average are left out
	assert.NotContains(t, expected, int64(1))
	assert.NotContains(t, expected, int64(2))
	assert.NotContains(t, expected, int64(5))

	assert.InDelta(t, 5.0, expected[3], 1e-5)
	assert.InDelta(t, 1.0, expected[4], 1e-5)
	// nobody in the pool rated movie 6
	assert.InDelta(t, 3.0, expected[6], 1e-9)
}

func TestPredictor_ColdStart(t *testing.T) {
	predictor := analysis.NewPredictor(seedMatrix(), analysis.DefaultPredictorConfig())

	expectations, err := predictor.ExpectedRatings(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, expectations, 5)
	for _, e := range expectations {
		require.NotNil(t, e.Movie.AverageRating)
		assert.Equal(t, *e.Movie.AverageRating, e.Expected)
	}
}

func TestPredictor_RecommendByExpectedRating(t *testing.T) {
	predictor := analysis.NewPredictor(seedMatrix(), analysis.DefaultPredictorConfig())

	results, err := predictor.RecommendByExpectedRating(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 6, 4}, movieIDs(results))
	assert.Equal(t, "m3", results[0].Title)
	assert.Equal(t, 2019, results[0].Year)
	assert.Equal(t, []string{"한국"}, results[0].Countries)

	top, err := predictor.RecommendByExpectedRating(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, movieIDs(top))
}

func TestPredictor_SkipsMoviesReviewedWithoutRating(t *testing.T) {
	store := seedMatrix()
	store.PutReview(repository.MemoryReview{ID: 50, UserID: 1, MovieID: 6})
	predictor := analysis.NewPredictor(store, analysis.DefaultPredictorConfig())

	results, err := predictor.RecommendByExpectedRating(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, movieIDs(results))
}

func TestPredictor_RecommendByDifference(t *testing.T) {
	predictor := analysis.NewPredictor(seedMatrix(), analysis.DefaultPredictorConfig())

	results, err := predictor.RecommendByDifference(context.Background(), 1, 5)
	require.NoError(t, err)
	// differences: m3 +2, m4 -1, m6 -1.5
	assert.Equal(t, []int64{3, 4, 6}, movieIDs(results))
	assert.InDelta(t, 1.0, results[1].ExpectedRating, 1e-5)
}

func TestPredictor_ColdStartRanking(t *testing.T) {
	predictor := analysis.NewPredictor(seedMatrix(), analysis.DefaultPredictorConfig())

	results, err := predictor.RecommendByExpectedRating(context.Background(), 9, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 1, 2}, movieIDs(results))

	// every difference is zero so the id order decides
	results, err = predictor.RecommendByDifference(context.Background(), 9, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, movieIDs(results))
}

func TestPredictor_CandidateCaps(t *testing.T) {
	cfg := analysis.DefaultPredictorConfig()
	cfg.CandidateMovies = 3
	predictor := analysis.NewPredictor(seedMatrix(), cfg)

	expectations, err := predictor.ExpectedRatings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, expectations, 1)
	assert.Equal(t, int64(3), expectations[0].Movie.ID)
}

type failingMatrix struct {
	*repository.Memory
}

func (failingMatrix) ListCandidateUsers(ctx context.Context, limit int) ([]int64, error) {
	return nil, errors.New("pool exhausted")
}

func (failingMatrix) ReviewedMovieIDs(ctx context.Context, userID int64) (mapset.Set[int64], error) {
	return mapset.NewSet[int64](), nil
}

func TestPredictor_PropagatesErrors(t *testing.T) {
	predictor := analysis.NewPredictor(failingMatrix{seedMatrix()}, analysis.PredictorConfig{})

	_, err := predictor.ExpectedRatings(context.Background(), 1)
	assert.ErrorContains(t, err, "failed to list candidate users")
}
