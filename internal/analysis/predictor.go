package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// PredictorConfig bounds the work of one prediction.
type PredictorConfig struct {
	CandidateUsers  int
	CandidateMovies int
	Epsilon         float64
	DefaultListSize int
}

func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		CandidateUsers:  50,
		CandidateMovies: 50,
		Epsilon:         DefaultEpsilon,
		DefaultListSize: 5,
	}
}

// Expectation is a predicted rating for one candidate movie.
type Expectation struct {
	Movie    CandidateMovie
	Expected float64
}

// Difference is how far the prediction lies above the catalog average.
func (e Expectation) Difference() float64 {
	if e.Movie.AverageRating == nil {
		return 0
	}
	return e.Expected - *e.Movie.AverageRating
}

// ExpectedRatingResult is one recommended movie.
type ExpectedRatingResult struct {
	MovieID        int64
	Title          string
	Year           int
	Countries      []string
	ExpectedRating float64
	PosterURL      *string
}

type opponent struct {
	ratings RatingVector
	average float64
	weight  float64
}

// Predictor ranks unwatched movies with user-based collaborative filtering over
// a capped pool of users and movies. Every call reads its inputs afresh.
type Predictor struct {
	matrix RatingMatrix
	cfg    PredictorConfig
}

func NewPredictor(matrix RatingMatrix, cfg PredictorConfig) *Predictor {
	defaults := DefaultPredictorConfig()
	if cfg.CandidateUsers <= 0 {
		cfg.CandidateUsers = defaults.CandidateUsers
	}
	if cfg.CandidateMovies <= 0 {
		cfg.CandidateMovies = defaults.CandidateMovies
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = defaults.Epsilon
	}
	if cfg.DefaultListSize <= 0 {
		cfg.DefaultListSize = defaults.DefaultListSize
	}
	return &Predictor{matrix: matrix, cfg: cfg}
}

// ExpectedRatings predicts a rating for every pool movie that has a catalog
// average. A user without positive ratings gets the catalog average for every
// such movie; otherwise movies the user already reviewed are left out and the
// prediction is the user's mean plus the correlation-weighted deviations of
// the other pool users.
func (p *Predictor) ExpectedRatings(ctx context.Context, userID int64) ([]Expectation, error) {
	movies, err := p.matrix.ListCandidateMovies(ctx, p.cfg.CandidateMovies)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate movies: %w", err)
	}

	target, err := p.matrix.UserPositiveRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for user %d: %w", userID, err)
	}
	userAvg := UserAverageRating(target)

	if userAvg < 0 {
		expectations := make([]Expectation, 0, len(movies))
		for _, movie := range movies {
			if movie.AverageRating == nil {
				continue
			}
			expectations = append(expectations, Expectation{Movie: movie, Expected: *movie.AverageRating})
		}
		return expectations, nil
	}

	reviewed, err := p.matrix.ReviewedMovieIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewed movies for user %d: %w", userID, err)
	}
	if reviewed == nil {
		reviewed = mapset.NewThreadUnsafeSet[int64]()
	}

	opponents, err := p.opponents(ctx, userID, target, userAvg)
	if err != nil {
		return nil, err
	}

	expectations := make([]Expectation, 0, len(movies))
	for _, movie := range movies {
		if movie.AverageRating == nil || reviewed.Contains(movie.ID) {
			continue
		}
		numer := 0.0
		denom := p.cfg.Epsilon
		for _, opp := range opponents {
			denom += math.Abs(opp.weight)
			if r, ok := opp.ratings[movie.ID]; ok && r > 0 {
				numer += opp.weight * (r - opp.average)
			}
		}
		expectations = append(expectations, Expectation{Movie: movie, Expected: userAvg + numer/denom})
	}
	return expectations, nil
}

// opponents loads every other pool user with a defined average and weighs
// them by Pearson correlation with the target.
func (p *Predictor) opponents(ctx context.Context, userID int64, target RatingVector, userAvg float64) ([]opponent, error) {
	userIDs, err := p.matrix.ListCandidateUsers(ctx, p.cfg.CandidateUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate users: %w", err)
	}

	opponents := make([]opponent, 0, len(userIDs))
	for _, oppID := range userIDs {
		if oppID == userID {
			continue
		}
		ratings, err := p.matrix.UserPositiveRatings(ctx, oppID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ratings for user %d: %w", oppID, err)
		}
		avg := UserAverageRating(ratings)
		if avg < 0 {
			continue
		}
		opponents = append(opponents, opponent{
			ratings: ratings,
			average: avg,
			weight:  Pearson(target, ratings, userAvg, avg, p.cfg.Epsilon),
		})
	}
	return opponents, nil
}

// RecommendByExpectedRating returns the n movies with the highest expected rating.
func (p *Predictor) RecommendByExpectedRating(ctx context.Context, userID int64, n int) ([]ExpectedRatingResult, error) {
	expectations, err := p.ExpectedRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.rank(expectations, n, func(e Expectation) float64 { return e.Expected }), nil
}

// RecommendByDifference returns the n movies whose expected rating exceeds the
// catalog average the most. The reported rating is still the expected one.
func (p *Predictor) RecommendByDifference(ctx context.Context, userID int64, n int) ([]ExpectedRatingResult, error) {
	expectations, err := p.ExpectedRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.rank(expectations, n, Expectation.Difference), nil
}

func (p *Predictor) rank(expectations []Expectation, n int, key func(Expectation) float64) []ExpectedRatingResult {
	if n <= 0 {
		n = p.cfg.DefaultListSize
	}
	sort.SliceStable(expectations, func(i, j int) bool {
		ki, kj := key(expectations[i]), key(expectations[j])
		if ki != kj {
			return ki > kj
		}
		return expectations[i].Movie.ID < expectations[j].Movie.ID
	})
	if len(expectations) > n {
		expectations = expectations[:n]
	}

	results := make([]ExpectedRatingResult, 0, len(expectations))
	for _, e := range expectations {
		results = append(results, ExpectedRatingResult{
			MovieID:        e.Movie.ID,
			Title:          e.Movie.Title,
			Year:           e.Movie.Year,
			Countries:      e.Movie.Countries,
			ExpectedRating: e.Expected,
			PosterURL:      e.Movie.PosterURL,
		})
	}
	return results
}
