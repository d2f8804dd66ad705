package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/analysis"
	"github.com/temcen/filmtaste/internal/config"
	"github.com/temcen/filmtaste/internal/database"
	"github.com/temcen/filmtaste/internal/messaging"
	"github.com/temcen/filmtaste/internal/repository"
	"github.com/temcen/filmtaste/internal/validation"
)

type Services struct {
	Auth      *AuthService
	Health    *HealthService
	RateLimit *RateLimitService
	Analysis  *AnalysisService
	Locker    *UserLocker
	EventBus  *messaging.ReviewEventBus // nil unless Kafka is enabled
	Schemas   *validation.SchemaValidator
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	store, err := newStore(cfg, logger, db)
	if err != nil {
		return nil, err
	}

	var index analysis.EntityIndex
	if db.Neo4j != nil {
		index = repository.NewGraphEntityIndex(db.Neo4j, cfg.Neo4j.Database, logger)
	}

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	var (
		bus       *messaging.ReviewEventBus
		publisher EventPublisher
	)
	if cfg.Kafka.Enabled {
		bus = messaging.NewReviewEventBus(cfg, schemas, logger)
		publisher = bus
	}

	locker := NewUserLocker(db.Redis, cfg.Analysis.LockTTL, logger)

	health := NewHealthService(cfg, logger, db)
	if bus != nil {
		health.AddDetail("kafka", bus.GetMetrics)
	}

	return &Services{
		Auth:      NewAuthService(cfg, logger, db.Redis),
		Health:    health,
		RateLimit: NewRateLimitService(cfg, logger, db.Redis),
		Analysis:  NewAnalysisService(cfg, store, index, locker, publisher, logger),
		Locker:    locker,
		EventBus:  bus,
		Schemas:   schemas,
	}, nil
}

func newStore(cfg *config.Config, logger *logrus.Logger, db *database.Database) (AnalysisStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		return repository.NewMemory(), nil
	case "postgres":
		if db.PG == nil {
			return nil, fmt.Errorf("postgres storage selected but no connection is configured")
		}
		return repository.NewPostgres(db.PG, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (s *Services) Close() error {
	s.Health.Stop()
	if s.EventBus != nil {
		return s.EventBus.Close()
	}
	return nil
}
