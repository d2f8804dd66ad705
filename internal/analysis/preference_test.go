package analysis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/internal/analysis"
	"github.com/temcen/filmtaste/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestAffinityScore(t *testing.T) {
	tests := []struct {
		name     string
		stats    analysis.EntityStats
		base     analysis.Baseline
		expected float64
		ok       bool
	}{
		{
			name:  "no evidence",
			stats: analysis.EntityStats{MovieCount: 0, RatingAvg: ptr(5.0)},
			base:  analysis.Baseline{Mean: ptr(3.0), Count: 4},
			ok:    false,
		},
		{
			name:     "unrated entity gets the volume bonus only",
			stats:    analysis.EntityStats{MovieCount: 10},
			base:     analysis.Baseline{Mean: ptr(3.0), Count: 20},
			expected: 75,
			ok:       true,
		},
		{
			name:     "no baseline mean",
			stats:    analysis.EntityStats{MovieCount: 10, RatingAvg: ptr(1.0)},
			base:     analysis.Baseline{},
			expected: 75,
			ok:       true,
		},
		{
			name:     "average equal to baseline",
			stats:    analysis.EntityStats{MovieCount: 2, RatingAvg: ptr(3.0)},
			base:     analysis.Baseline{Mean: ptr(3.0), Count: 2},
			expected: 50 + 100.0/12,
			ok:       true,
		},
		{
			name:     "clamped high",
			stats:    analysis.EntityStats{MovieCount: 1, RatingAvg: ptr(5.0)},
			base:     analysis.Baseline{Mean: ptr(2.0), Count: 1},
			expected: 100,
			ok:       true,
		},
		{
			name:     "clamped low",
			stats:    analysis.EntityStats{MovieCount: 1, RatingAvg: ptr(0.5)},
			base:     analysis.Baseline{Mean: ptr(4.5), Count: 1},
			expected: 0,
			ok:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			affinity, ok := analysis.AffinityScore(tt.stats, tt.base)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.expected, affinity.Score, 1e-9)
			assert.Equal(t, tt.stats.MovieCount, affinity.Count)
		})
	}
}

func TestMergeAffinities(t *testing.T) {
	absent := analysis.NullAffinityMap{}
	assert.False(t, analysis.MergeAffinities(absent, nil).Valid)

	empty := analysis.NullAffinityMap{Map: analysis.AffinityMap{}, Valid: true}
	merged := analysis.MergeAffinities(empty, nil)
	assert.True(t, merged.Valid)
	assert.Empty(t, merged.Map)

	prev := analysis.NullAffinityMap{
		Map:   analysis.AffinityMap{1: {Score: 40, Count: 2}, 2: {Score: 70, Count: 1}},
		Valid: true,
	}
	merged = analysis.MergeAffinities(prev, analysis.AffinityMap{2: {Score: 90, Count: 3}, 3: {Score: 55, Count: 1}})
	assert.True(t, merged.Valid)
	assert.Equal(t, analysis.AffinityMap{
		1: {Score: 40, Count: 2},
		2: {Score: 90, Count: 3},
		3: {Score: 55, Count: 1},
	}, merged.Map)
	// prev is not mutated
	assert.Equal(t, 70.0, prev.Map[2].Score)
}

func TestAffinityMap_Top(t *testing.T) {
	m := analysis.AffinityMap{
		5: {Score: 80, Count: 1},
		2: {Score: 80, Count: 4},
		9: {Score: 95, Count: 2},
		1: {Score: 10, Count: 1},
	}

	top := m.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, int64(9), top[0].EntityID)
	assert.Equal(t, int64(2), top[1].EntityID)
	assert.Equal(t, int64(5), top[2].EntityID)
	assert.Len(t, m.Top(10), 4)
}

// seedPreferenceStore builds a user who rated movie 10 with 4.0 and movie 11
// with 2.0. Actor 100 plays in both; director 200, genre 300 and country 400
// belong to movie 10 only; genre 301 to movie 11 only.
func seedPreferenceStore() *repository.Memory {
	store := repository.NewMemory()
	store.AddUser(1)
	store.AddMovie(repository.MemoryMovie{ID: 10, RunningTime: ptr(120), Genres: []int64{300}, Countries: []int64{400}})
	store.AddMovie(repository.MemoryMovie{ID: 11, RunningTime: ptr(100), Genres: []int64{301}})
	store.AddCredit(10, 100, "주연 배우")
	store.AddCredit(10, 200, "감독")
	store.AddCredit(11, 100, "조연 배우")
	store.PutReview(repository.MemoryReview{ID: 1, UserID: 1, MovieID: 10, Rating: ptr(4.0)})
	store.PutReview(repository.MemoryReview{ID: 2, UserID: 1, MovieID: 11, Rating: ptr(2.0)})
	return store
}

func TestPreferenceScorer_Update(t *testing.T) {
	ctx := context.Background()
	store := seedPreferenceStore()
	scorer := analysis.NewPreferenceScorer(store, store)

	prefs, err := scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, ReviewID: 1})
	require.NoError(t, err)

	require.True(t, prefs.Actor.Valid)
	assert.InDelta(t, 50+100.0/12, prefs.Actor.Map[100].Score, 1e-9)
	assert.Equal(t, 2, prefs.Actor.Map[100].Count)

	require.True(t, prefs.Director.Valid)
	assert.Equal(t, analysis.Affinity{Score: 100, Count: 1}, prefs.Director.Map[200])
	assert.Equal(t, analysis.Affinity{Score: 100, Count: 1}, prefs.Genre.Map[300])
	assert.Equal(t, analysis.Affinity{Score: 100, Count: 1}, prefs.Country.Map[400])

	stored, err := store.LoadPreferenceMap(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, prefs, stored)
}

func TestPreferenceScorer_UpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := seedPreferenceStore()
	scorer := analysis.NewPreferenceScorer(store, store)
	trigger := analysis.PreferenceTrigger{UserID: 1, ReviewID: 2}

	first, err := scorer.Update(ctx, trigger)
	require.NoError(t, err)
	second, err := scorer.Update(ctx, trigger)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPreferenceScorer_AbsentClassIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := seedPreferenceStore()
	scorer := analysis.NewPreferenceScorer(store, store)

	// movie 11 has no director and no country
	prefs, err := scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, ReviewID: 2})
	require.NoError(t, err)
	assert.False(t, prefs.Director.Valid)
	assert.False(t, prefs.Country.Valid)

	prev, err := store.PreviousPreferenceMap(ctx, 1, analysis.EntityDirector)
	require.NoError(t, err)
	assert.False(t, prev.Valid)

	// genre 301 rated well below the 3.0 mean
	assert.Equal(t, analysis.Affinity{Score: 0, Count: 1}, prefs.Genre.Map[301])
}

func TestPreferenceScorer_DeleteMergesById(t *testing.T) {
	ctx := context.Background()
	store := seedPreferenceStore()
	scorer := analysis.NewPreferenceScorer(store, store)

	_, err := scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, ReviewID: 2})
	require.NoError(t, err)

	store.DeleteReview(2)
	prefs, err := scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, MovieID: 11, Deleted: true})
	require.NoError(t, err)

	// only movie 10 remains, rated at the new 4.0 mean
	assert.InDelta(t, 50+50.0/11, prefs.Actor.Map[100].Score, 1e-9)
	assert.Equal(t, 1, prefs.Actor.Map[100].Count)
	// genre 301 lost its evidence, so no fresh entry overrides the stored one
	assert.Equal(t, analysis.Affinity{Score: 0, Count: 1}, prefs.Genre.Map[301])
}

func TestPreferenceScorer_Errors(t *testing.T) {
	ctx := context.Background()
	store := seedPreferenceStore()
	scorer := analysis.NewPreferenceScorer(store, store)

	_, err := scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, ReviewID: 99})
	assert.ErrorIs(t, err, analysis.ErrNotFound)

	_, err = scorer.Update(ctx, analysis.PreferenceTrigger{UserID: 1, Deleted: true})
	assert.Error(t, err)
}

type fixedIndex map[int64][]int64

func (f fixedIndex) EntityIDsForMovie(ctx context.Context, movieID int64, class analysis.EntityClass) ([]int64, error) {
	if class != analysis.EntityGenre {
		return nil, nil
	}
	return f[movieID], nil
}

func TestWithEntityIndex(t *testing.T) {
	store := seedPreferenceStore()
	assert.Same(t, store, analysis.WithEntityIndex(store, nil))

	source := analysis.WithEntityIndex(store, fixedIndex{10: {300, 999}})
	ids, err := source.EntityIDsForMovie(context.Background(), 10, analysis.EntityGenre)
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 999}, ids)

	movieID, err := source.ReviewMovieID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), movieID)
}
