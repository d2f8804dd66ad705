package analysis

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/samber/lo"
)

// Affinity is a user's 0-100 score for one entity and the number of reviewed
// movies backing it.
type Affinity struct {
	Score float64
	Count int
}

// AffinityMap maps entity id to affinity.
type AffinityMap map[int64]Affinity

// RankedAffinity is one entry of a ranked affinity list.
type RankedAffinity struct {
	EntityID int64
	Affinity
}

// Ranked returns the entries ordered by score descending, then entity id ascending.
func (m AffinityMap) Ranked() []RankedAffinity {
	ranked := make([]RankedAffinity, 0, len(m))
	for id, a := range m {
		ranked = append(ranked, RankedAffinity{EntityID: id, Affinity: a})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].EntityID < ranked[j].EntityID
	})
	return ranked
}

// Top returns at most n ranked entries.
func (m AffinityMap) Top(n int) []RankedAffinity {
	ranked := m.Ranked()
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// NullAffinityMap is an AffinityMap that may be absent. Valid is false when no
// preference has ever been recorded for the class, which is distinct from a
// recorded but empty map.
type NullAffinityMap struct {
	Map   AffinityMap
	Valid bool
}

// MergeAffinities overlays delta on prev: ids present in delta take the fresh
// value, ids only in prev are kept as they were.
func MergeAffinities(prev NullAffinityMap, delta AffinityMap) NullAffinityMap {
	if !prev.Valid && len(delta) == 0 {
		return NullAffinityMap{}
	}
	merged := make(AffinityMap, len(prev.Map)+len(delta))
	for id, a := range prev.Map {
		merged[id] = a
	}
	for id, a := range delta {
		merged[id] = a
	}
	return NullAffinityMap{Map: merged, Valid: true}
}

// PreferenceMap holds one optional affinity map per entity class.
type PreferenceMap struct {
	Actor    NullAffinityMap
	Director NullAffinityMap
	Genre    NullAffinityMap
	Country  NullAffinityMap
}

func (p *PreferenceMap) Get(class EntityClass) NullAffinityMap {
	switch class {
	case EntityActor:
		return p.Actor
	case EntityDirector:
		return p.Director
	case EntityGenre:
		return p.Genre
	case EntityCountry:
		return p.Country
	}
	return NullAffinityMap{}
}

func (p *PreferenceMap) Set(class EntityClass, m NullAffinityMap) {
	switch class {
	case EntityActor:
		p.Actor = m
	case EntityDirector:
		p.Director = m
	case EntityGenre:
		p.Genre = m
	case EntityCountry:
		p.Country = m
	}
}

// Baseline is the user's overall rating behaviour the affinity deviation is
// measured against.
type Baseline struct {
	Mean  *float64
	Count int
}

// BaselineOf derives the baseline from the same review rows the profile uses.
func BaselineOf(rows []RatedRuntime) Baseline {
	profile := ComputeProfile(0, rows)
	return Baseline{Mean: profile.Mean, Count: profile.Count}
}

// AffinityScore converts entity evidence into an affinity. The second return
// is false when there is no evidence and no entry must be produced.
//
// The score starts at 50, moves by the rating deviation from the user's mean
// scaled by sqrt(count / ln(total+2)), and gains a volume bonus of
// 50*count/(count+10). Rated scores are clamped to [0,100].
func AffinityScore(stats EntityStats, base Baseline) (Affinity, bool) {
	if stats.MovieCount <= 0 {
		return Affinity{}, false
	}
	c := float64(stats.MovieCount)
	volume := 50 * c / (c + 10)

	if stats.RatingAvg == nil || base.Mean == nil {
		return Affinity{Score: 50 + volume, Count: stats.MovieCount}, true
	}

	deviation := (*stats.RatingAvg - *base.Mean) * 100 * math.Sqrt(c/math.Log(float64(base.Count)+2))
	score := math.Max(0, math.Min(100, 50+deviation+volume))
	return Affinity{Score: score, Count: stats.MovieCount}, true
}

// PreferenceTrigger describes the review mutation a preference update follows.
// For creates and updates ReviewID identifies the review and MovieID may be
// zero; for deletes the review is gone and MovieID must be set.
type PreferenceTrigger struct {
	UserID   int64
	ReviewID int64
	MovieID  int64
	Deleted  bool
}

// PreferenceScorer incrementally maintains per-user preference maps.
type PreferenceScorer struct {
	source  PreferenceSource
	ratings ProfileSource
}

func NewPreferenceScorer(source PreferenceSource, ratings ProfileSource) *PreferenceScorer {
	return &PreferenceScorer{source: source, ratings: ratings}
}

// Update recomputes the affinity of every entity related to the trigger's
// movie, merges it into the stored maps and persists the result. Classes that
// stay absent are not persisted. The returned map is what was stored.
func (s *PreferenceScorer) Update(ctx context.Context, trigger PreferenceTrigger) (*PreferenceMap, error) {
	movieID, err := s.resolveMovie(ctx, trigger)
	if err != nil {
		return nil, err
	}

	rows, err := s.ratings.UserRatingsAndRunningTimes(ctx, trigger.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for user %d: %w", trigger.UserID, err)
	}
	base := BaselineOf(rows)

	reviewed, err := s.source.ReviewedMovieIDs(ctx, trigger.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewed movies for user %d: %w", trigger.UserID, err)
	}
	restrictTo := reviewed.ToSlice()
	slices.Sort(restrictTo)

	result := &PreferenceMap{}
	for _, class := range EntityClasses {
		delta, err := s.Delta(ctx, trigger.UserID, movieID, class, restrictTo, base)
		if err != nil {
			return nil, err
		}

		prev, err := s.source.PreviousPreferenceMap(ctx, trigger.UserID, class)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s preferences for user %d: %w", class, trigger.UserID, err)
		}

		merged := MergeAffinities(prev, delta)
		if merged.Valid {
			if err := s.source.PersistPreferenceMap(ctx, trigger.UserID, class, merged.Map); err != nil {
				return nil, fmt.Errorf("failed to persist %s preferences for user %d: %w", class, trigger.UserID, err)
			}
		}
		result.Set(class, merged)
	}

	return result, nil
}

// Delta computes fresh affinities for the entities of one class related to movieID.
func (s *PreferenceScorer) Delta(
	ctx context.Context,
	userID, movieID int64,
	class EntityClass,
	restrictTo []int64,
	base Baseline,
) (AffinityMap, error) {
	entityIDs, err := s.source.EntityIDsForMovie(ctx, movieID, class)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s entities of movie %d: %w", class, movieID, err)
	}

	delta := make(AffinityMap)
	if len(restrictTo) == 0 {
		return delta, nil
	}

	for _, entityID := range lo.Uniq(entityIDs) {
		stats, err := s.source.UserRatingStatsForEntity(ctx, userID, entityID, class, restrictTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s %d stats for user %d: %w", class, entityID, userID, err)
		}
		if affinity, ok := AffinityScore(stats, base); ok {
			delta[entityID] = affinity
		}
	}
	return delta, nil
}

func (s *PreferenceScorer) resolveMovie(ctx context.Context, trigger PreferenceTrigger) (int64, error) {
	if trigger.Deleted || trigger.ReviewID == 0 {
		if trigger.MovieID == 0 {
			return 0, fmt.Errorf("preference trigger for user %d has no movie", trigger.UserID)
		}
		return trigger.MovieID, nil
	}
	movieID, err := s.source.ReviewMovieID(ctx, trigger.ReviewID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve movie of review %d: %w", trigger.ReviewID, err)
	}
	return movieID, nil
}
