package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReviewActionCreate = "create"
	ReviewActionUpdate = "update"
	ReviewActionDelete = "delete"
)

// ReviewEvent announces a review mutation. Deletes carry the movie id because
// the review row is already gone when the event is handled.
type ReviewEvent struct {
	EventID    uuid.UUID `json:"event_id" validate:"required"`
	UserID     int64     `json:"user_id" validate:"required,gt=0"`
	ReviewID   int64     `json:"review_id" validate:"required_unless=Action delete,gte=0"`
	MovieID    int64     `json:"movie_id" validate:"required_if=Action delete,gte=0"`
	Action     string    `json:"action" validate:"required,oneof=create update delete"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
}

// ReviewEventRequest is the HTTP form of a review event; the server assigns
// the event id and timestamp.
type ReviewEventRequest struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	ReviewID int64  `json:"review_id" validate:"required_unless=Action delete,gte=0"`
	MovieID  int64  `json:"movie_id" validate:"required_if=Action delete,gte=0"`
	Action   string `json:"action" validate:"required,oneof=create update delete"`
}

type ReviewEventAccepted struct {
	EventID uuid.UUID `json:"event_id"`
	Queued  bool      `json:"queued"`
}
