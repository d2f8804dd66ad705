package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/temcen/filmtaste/internal/analysis"
)

// MemoryMovie is a catalog row of the in-memory store.
type MemoryMovie struct {
	ID            int64
	Title         string
	Year          int
	RunningTime   *int
	AverageRating *float64
	PosterURL     *string
	Countries     []int64
	Genres        []int64
}

// MemoryReview is a review row of the in-memory store.
type MemoryReview struct {
	ID      int64
	UserID  int64
	MovieID int64
	Rating  *float64
}

type credit struct {
	movieID       int64
	participantID int64
	role          string
}

// Memory is an in-process implementation of every repository contract. It
// backs the "memory" storage driver and the package tests.
type Memory struct {
	mu          sync.RWMutex
	users       []int64
	movies      map[int64]MemoryMovie
	reviews     map[int64]MemoryReview
	credits     []credit
	names       map[analysis.EntityClass]map[int64]string
	profiles    map[int64]*analysis.RatingProfile
	preferences map[int64]map[analysis.EntityClass]analysis.AffinityMap
}

func NewMemory() *Memory {
	return &Memory{
		movies:      make(map[int64]MemoryMovie),
		reviews:     make(map[int64]MemoryReview),
		names:       make(map[analysis.EntityClass]map[int64]string),
		profiles:    make(map[int64]*analysis.RatingProfile),
		preferences: make(map[int64]map[analysis.EntityClass]analysis.AffinityMap),
	}
}

func (m *Memory) AddUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.users, userID) {
		m.users = append(m.users, userID)
		slices.Sort(m.users)
	}
}

func (m *Memory) AddMovie(movie MemoryMovie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movies[movie.ID] = movie
}

// PutReview inserts or replaces a review.
func (m *Memory) PutReview(review MemoryReview) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[review.ID] = review
}

func (m *Memory) DeleteReview(reviewID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, reviewID)
}

// AddCredit links a participant to a movie under a free-form role such as "주연 배우".
func (m *Memory) AddCredit(movieID, participantID int64, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits = append(m.credits, credit{movieID: movieID, participantID: participantID, role: role})
}

func (m *Memory) SetEntityName(class analysis.EntityClass, id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.names[class] == nil {
		m.names[class] = make(map[int64]string)
	}
	m.names[class][id] = name
}

func (m *Memory) userReviews(userID int64) []MemoryReview {
	reviews := lo.Filter(lo.Values(m.reviews), func(r MemoryReview, _ int) bool {
		return r.UserID == userID
	})
	slices.SortFunc(reviews, func(a, b MemoryReview) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return reviews
}

func (m *Memory) UserRatingsAndRunningTimes(ctx context.Context, userID int64) ([]analysis.RatedRuntime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []analysis.RatedRuntime
	for _, r := range m.userReviews(userID) {
		row := analysis.RatedRuntime{Rating: r.Rating}
		if movie, ok := m.movies[r.MovieID]; ok {
			row.RunningTime = movie.RunningTime
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Memory) ReviewMovieID(ctx context.Context, reviewID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	review, ok := m.reviews[reviewID]
	if !ok {
		return 0, analysis.ErrNotFound
	}
	return review.MovieID, nil
}

func (m *Memory) ReviewedMovieIDs(ctx context.Context, userID int64) (mapset.Set[int64], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := mapset.NewThreadUnsafeSet[int64]()
	for _, r := range m.userReviews(userID) {
		ids.Add(r.MovieID)
	}
	return ids, nil
}

func (m *Memory) entitiesOf(movieID int64, class analysis.EntityClass) []int64 {
	switch class {
	case analysis.EntityActor, analysis.EntityDirector:
		var ids []int64
		for _, c := range m.credits {
			if c.movieID == movieID && class.RoleMatches(c.role) {
				ids = append(ids, c.participantID)
			}
		}
		return lo.Uniq(ids)
	case analysis.EntityGenre:
		return m.movies[movieID].Genres
	case analysis.EntityCountry:
		return m.movies[movieID].Countries
	}
	return nil
}

func (m *Memory) EntityIDsForMovie(ctx context.Context, movieID int64, class analysis.EntityClass) ([]int64, error) {
	if !class.Valid() {
		return nil, analysis.ErrUnknownEntityClass
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := slices.Clone(m.entitiesOf(movieID, class))
	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) UserRatingStatsForEntity(
	ctx context.Context,
	userID, entityID int64,
	class analysis.EntityClass,
	restrictTo []int64,
) (analysis.EntityStats, error) {
	if !class.Valid() {
		return analysis.EntityStats{}, analysis.ErrUnknownEntityClass
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := mapset.NewThreadUnsafeSet(restrictTo...)
	movies := mapset.NewThreadUnsafeSet[int64]()
	var ratings []float64
	for _, r := range m.userReviews(userID) {
		if !allowed.Contains(r.MovieID) || !slices.Contains(m.entitiesOf(r.MovieID, class), entityID) {
			continue
		}
		movies.Add(r.MovieID)
		if r.Rating != nil {
			ratings = append(ratings, *r.Rating)
		}
	}

	stats := analysis.EntityStats{MovieCount: movies.Cardinality()}
	if len(ratings) > 0 {
		avg := lo.Sum(ratings) / float64(len(ratings))
		stats.RatingAvg = &avg
	}
	return stats, nil
}

func (m *Memory) PreviousPreferenceMap(ctx context.Context, userID int64, class analysis.EntityClass) (analysis.NullAffinityMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.preferences[userID][class]
	if !ok {
		return analysis.NullAffinityMap{}, nil
	}
	return analysis.NullAffinityMap{Map: cloneAffinities(stored), Valid: true}, nil
}

func (m *Memory) PersistPreferenceMap(ctx context.Context, userID int64, class analysis.EntityClass, affinities analysis.AffinityMap) error {
	if !class.Valid() {
		return analysis.ErrUnknownEntityClass
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.preferences[userID] == nil {
		m.preferences[userID] = make(map[analysis.EntityClass]analysis.AffinityMap)
	}
	m.preferences[userID][class] = cloneAffinities(affinities)
	return nil
}

func (m *Memory) LoadPreferenceMap(ctx context.Context, userID int64) (*analysis.PreferenceMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.preferences[userID]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	prefs := &analysis.PreferenceMap{}
	for class, affinities := range stored {
		prefs.Set(class, analysis.NullAffinityMap{Map: cloneAffinities(affinities), Valid: true})
	}
	return prefs, nil
}

func (m *Memory) SaveRatingProfile(ctx context.Context, profile *analysis.RatingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *profile
	m.profiles[profile.UserID] = &stored
	return nil
}

func (m *Memory) LoadRatingProfile(ctx context.Context, userID int64) (*analysis.RatingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.profiles[userID]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	profile := *stored
	return &profile, nil
}

func (m *Memory) EntityNames(ctx context.Context, class analysis.EntityClass, ids []int64) (map[int64]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := m.names[class][id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (m *Memory) ListCandidateUsers(ctx context.Context, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := slices.Clone(m.users)
	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *Memory) ListCandidateMovies(ctx context.Context, limit int) ([]analysis.CandidateMovie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lo.Keys(m.movies)
	slices.Sort(ids)
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	candidates := make([]analysis.CandidateMovie, 0, len(ids))
	for _, id := range ids {
		movie := m.movies[id]
		countries := make([]string, 0, len(movie.Countries))
		for _, countryID := range movie.Countries {
			if name, ok := m.names[analysis.EntityCountry][countryID]; ok {
				countries = append(countries, name)
			}
		}
		candidates = append(candidates, analysis.CandidateMovie{
			ID:            movie.ID,
			Title:         movie.Title,
			Year:          movie.Year,
			Countries:     countries,
			PosterURL:     movie.PosterURL,
			AverageRating: movie.AverageRating,
		})
	}
	return candidates, nil
}

func (m *Memory) UserPositiveRatings(ctx context.Context, userID int64) (analysis.RatingVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ratings := make(analysis.RatingVector)
	for _, r := range m.userReviews(userID) {
		if r.Rating != nil && *r.Rating > 0 {
			ratings[r.MovieID] = *r.Rating
		}
	}
	return ratings, nil
}

func cloneAffinities(src analysis.AffinityMap) analysis.AffinityMap {
	dst := make(analysis.AffinityMap, len(src))
	for id, a := range src {
		dst[id] = a
	}
	return dst
}
