package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/analysis"
	"github.com/temcen/filmtaste/internal/config"
	"github.com/temcen/filmtaste/internal/messaging"
	"github.com/temcen/filmtaste/pkg/models"
)

var (
	ErrProfileNotFound    = errors.New("rating profile not found")
	ErrPreferenceNotFound = errors.New("preference map not found")
	// ErrInvalidEvent is shared with the event bus so that consumers dead-letter
	// such events without retrying.
	ErrInvalidEvent = messaging.ErrInvalidEvent
)

type AnalysisService struct {
	store     AnalysisStore
	profiles  *analysis.ProfileBuilder
	scorer    *analysis.PreferenceScorer
	predictor *analysis.Predictor
	locker    *UserLocker
	publisher EventPublisher
	metrics   *AnalysisMetrics
	topN      int
	logger    *logrus.Logger
}

// NewAnalysisService wires the engine to store. A non-nil index serves entity
// lookups instead of store, and a nil publisher makes event submission run
// inline.
func NewAnalysisService(
	cfg *config.Config,
	store AnalysisStore,
	index analysis.EntityIndex,
	locker *UserLocker,
	publisher EventPublisher,
	logger *logrus.Logger,
) *AnalysisService {
	predictor := analysis.NewPredictor(store, analysis.PredictorConfig{
		CandidateUsers:  cfg.Analysis.CandidateUsers,
		CandidateMovies: cfg.Analysis.CandidateMovies,
		Epsilon:         cfg.Analysis.Epsilon,
		DefaultListSize: cfg.Analysis.ListSize,
	})

	topN := cfg.Analysis.PreferenceTopN
	if topN <= 0 {
		topN = 10
	}

	return &AnalysisService{
		store:     store,
		profiles:  analysis.NewProfileBuilder(store),
		scorer:    analysis.NewPreferenceScorer(analysis.WithEntityIndex(store, index), store),
		predictor: predictor,
		locker:    locker,
		publisher: publisher,
		metrics:   NewAnalysisMetrics(logger),
		topN:      topN,
		logger:    logger,
	}
}

// RefreshRatingProfile rebuilds and stores the rating profile of a user.
func (s *AnalysisService) RefreshRatingProfile(ctx context.Context, userID int64) (profile *analysis.RatingProfile, err error) {
	defer func(start time.Time) { s.metrics.ObserveOperation("rating_profile", start, err) }(time.Now())

	profile, err = s.profiles.Build(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRatingProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save rating profile for user %d: %w", userID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"rating_count": profile.Count,
		"viewing_time": profile.ViewingHours,
	}).Debug("Rating profile refreshed")

	return profile, nil
}

// UpdatePreferences recomputes the preference maps touched by one review
// mutation. Updates of the same user never overlap.
func (s *AnalysisService) UpdatePreferences(ctx context.Context, trigger analysis.PreferenceTrigger) (*analysis.PreferenceMap, error) {
	var prefs *analysis.PreferenceMap
	err := s.locker.WithLock(ctx, trigger.UserID, func(ctx context.Context) error {
		var err error
		prefs, err = s.updatePreferences(ctx, trigger)
		return err
	})
	return prefs, err
}

func (s *AnalysisService) updatePreferences(ctx context.Context, trigger analysis.PreferenceTrigger) (prefs *analysis.PreferenceMap, err error) {
	defer func(start time.Time) { s.metrics.ObserveOperation("preferences", start, err) }(time.Now())

	prefs, err = s.scorer.Update(ctx, trigger)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return nil, err
	}
	return prefs, nil
}

// HandleReviewEvent applies a review mutation: the rating profile is rebuilt
// and the preference maps of the reviewed movie's entities are merged.
func (s *AnalysisService) HandleReviewEvent(ctx context.Context, event models.ReviewEvent) (err error) {
	defer func() { s.metrics.CountReviewEvent(event.Action, err) }()

	trigger := analysis.PreferenceTrigger{
		UserID:   event.UserID,
		ReviewID: event.ReviewID,
		MovieID:  event.MovieID,
	}
	switch event.Action {
	case models.ReviewActionCreate, models.ReviewActionUpdate:
		if event.ReviewID <= 0 {
			return fmt.Errorf("%w: %s event without review id", ErrInvalidEvent, event.Action)
		}
	case models.ReviewActionDelete:
		if event.MovieID <= 0 {
			return fmt.Errorf("%w: delete event without movie id", ErrInvalidEvent)
		}
		trigger.Deleted = true
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, event.Action)
	}

	err = s.locker.WithLock(ctx, event.UserID, func(ctx context.Context) error {
		if _, err := s.RefreshRatingProfile(ctx, event.UserID); err != nil {
			return err
		}
		_, err := s.updatePreferences(ctx, trigger)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"user_id":  event.UserID,
		"action":   event.Action,
	}).Info("Review event processed")
	return nil
}

// SubmitReviewEvent queues the event when a publisher is configured and
// otherwise processes it before returning.
func (s *AnalysisService) SubmitReviewEvent(ctx context.Context, req *models.ReviewEventRequest) (*models.ReviewEventAccepted, error) {
	event := models.ReviewEvent{
		EventID:    uuid.New(),
		UserID:     req.UserID,
		ReviewID:   req.ReviewID,
		MovieID:    req.MovieID,
		Action:     req.Action,
		OccurredAt: time.Now().UTC(),
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to publish review event: %w", err)
		}
		return &models.ReviewEventAccepted{EventID: event.EventID, Queued: true}, nil
	}

	if err := s.HandleReviewEvent(ctx, event); err != nil {
		return nil, err
	}
	return &models.ReviewEventAccepted{EventID: event.EventID, Queued: false}, nil
}

// Refresh recomputes the rating profile and, when movieID is set, the
// preferences tied to that movie.
func (s *AnalysisService) Refresh(ctx context.Context, userID, movieID int64) (*models.RefreshResponse, error) {
	response := &models.RefreshResponse{}

	err := s.locker.WithLock(ctx, userID, func(ctx context.Context) error {
		profile, err := s.RefreshRatingProfile(ctx, userID)
		if err != nil {
			return err
		}
		response.Profile = ProfileResponse(profile)

		if movieID <= 0 {
			return nil
		}
		prefs, err := s.updatePreferences(ctx, analysis.PreferenceTrigger{UserID: userID, MovieID: movieID})
		if err != nil {
			return err
		}
		response.Preferences, err = s.preferenceResponse(ctx, userID, prefs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (s *AnalysisService) GetRatingProfile(ctx context.Context, userID int64) (*models.RatingProfileResponse, error) {
	profile, err := s.store.LoadRatingProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load rating profile for user %d: %w", userID, err)
	}
	return ProfileResponse(profile), nil
}

// GetPreferences returns the stored preference map cut to the top entries of
// each class, with entity names attached.
func (s *AnalysisService) GetPreferences(ctx context.Context, userID int64) (*models.PreferenceResponse, error) {
	prefs, err := s.store.LoadPreferenceMap(ctx, userID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			return nil, ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("failed to load preferences for user %d: %w", userID, err)
	}
	return s.preferenceResponse(ctx, userID, prefs)
}

func (s *AnalysisService) preferenceResponse(ctx context.Context, userID int64, prefs *analysis.PreferenceMap) (*models.PreferenceResponse, error) {
	response := &models.PreferenceResponse{UserID: userID}

	for _, class := range analysis.EntityClasses {
		entries, err := s.rankedEntries(ctx, class, prefs.Get(class))
		if err != nil {
			return nil, err
		}
		switch class {
		case analysis.EntityActor:
			response.Actors = entries
		case analysis.EntityDirector:
			response.Directors = entries
		case analysis.EntityGenre:
			response.Genres = entries
		case analysis.EntityCountry:
			response.Countries = entries
		}
	}
	return response, nil
}

func (s *AnalysisService) rankedEntries(ctx context.Context, class analysis.EntityClass, m analysis.NullAffinityMap) ([]models.PreferenceEntry, error) {
	if !m.Valid {
		return nil, nil
	}

	top := m.Map.Top(s.topN)
	names, err := s.store.EntityNames(ctx, class, lo.Map(top, func(r analysis.RankedAffinity, _ int) int64 {
		return r.EntityID
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s names: %w", class, err)
	}

	return lo.Map(top, func(r analysis.RankedAffinity, _ int) models.PreferenceEntry {
		return models.PreferenceEntry{
			ID:    r.EntityID,
			Name:  names[r.EntityID],
			Score: r.Score,
			Count: r.Count,
		}
	}), nil
}

func (s *AnalysisService) RecommendByExpectedRating(ctx context.Context, userID int64, n int) (recs []models.RecommendResponse, err error) {
	defer func(start time.Time) { s.metrics.ObserveOperation("recommend_expect", start, err) }(time.Now())

	results, err := s.predictor.RecommendByExpectedRating(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRecommendations("expect", len(results))
	return recommendResponses(results), nil
}

func (s *AnalysisService) RecommendByDifference(ctx context.Context, userID int64, n int) (recs []models.RecommendResponse, err error) {
	defer func(start time.Time) { s.metrics.ObserveOperation("recommend_difference", start, err) }(time.Now())

	results, err := s.predictor.RecommendByDifference(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRecommendations("difference", len(results))
	return recommendResponses(results), nil
}

// ProfileResponse converts a stored profile to its API form.
func ProfileResponse(profile *analysis.RatingProfile) *models.RatingProfileResponse {
	dist := make(map[string]int, len(analysis.RatingBuckets))
	for i, value := range analysis.RatingBuckets {
		dist[strconv.FormatFloat(value, 'f', 1, 64)] = profile.Distribution[i]
	}

	return &models.RatingProfileResponse{
		UserID:         profile.UserID,
		RatingNum:      profile.Count,
		RatingAvg:      profile.Mean,
		RatingDist:     dist,
		RatingMode:     profile.Mode,
		RatingMessage:  profile.RatingMessage,
		ViewingTime:    profile.ViewingHours,
		ViewingMessage: profile.ViewingMessage,
	}
}

func recommendResponses(results []analysis.ExpectedRatingResult) []models.RecommendResponse {
	return lo.Map(results, func(r analysis.ExpectedRatingResult, _ int) models.RecommendResponse {
		countries := r.Countries
		if countries == nil {
			countries = []string{}
		}
		return models.RecommendResponse{
			MovieID:        r.MovieID,
			Title:          r.Title,
			Year:           r.Year,
			Countries:      countries,
			ExpectedRating: r.ExpectedRating,
			PosterURL:      r.PosterURL,
		}
	})
}
