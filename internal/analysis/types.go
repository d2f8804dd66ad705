package analysis

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EntityClass identifies one of the related-entity dimensions a taste profile is kept for.
type EntityClass string

const (
	EntityActor    EntityClass = "actor"
	EntityDirector EntityClass = "director"
	EntityGenre    EntityClass = "genre"
	EntityCountry  EntityClass = "country"
)

// EntityClasses lists every class in the order preference maps are recomputed.
var EntityClasses = []EntityClass{EntityActor, EntityDirector, EntityGenre, EntityCountry}

// Participant roles as recorded on movie credits.
const (
	RoleActor    = "배우"
	RoleDirector = "감독"
)

// ErrNotFound is returned by repository adapters when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnknownEntityClass is returned for classes outside EntityClasses.
var ErrUnknownEntityClass = errors.New("unknown entity class")

func (c EntityClass) Valid() bool {
	switch c {
	case EntityActor, EntityDirector, EntityGenre, EntityCountry:
		return true
	}
	return false
}

// Role returns the NFC-normalized credit role for participant classes.
// Genre and country memberships are not role based and report false.
func (c EntityClass) Role() (string, bool) {
	switch c {
	case EntityActor:
		return norm.NFC.String(RoleActor), true
	case EntityDirector:
		return norm.NFC.String(RoleDirector), true
	}
	return "", false
}

// RoleMatches reports whether a credit role string belongs to the participant class.
// Credits such as "주연 배우" match by substring; both sides are NFC-normalized first
// because crawled Korean text frequently arrives decomposed.
func (c EntityClass) RoleMatches(role string) bool {
	want, ok := c.Role()
	if !ok {
		return false
	}
	return strings.Contains(norm.NFC.String(role), want)
}

// RatedRuntime is one review row as seen by the profile builder.
type RatedRuntime struct {
	Rating      *float64
	RunningTime *int // minutes
}

// RatingVector maps movie id to a positive rating.
type RatingVector map[int64]float64

// EntityStats is the evidence for one entity among a user's reviewed movies.
type EntityStats struct {
	MovieCount int
	RatingAvg  *float64
}

// CandidateMovie is a movie of the recommendation pool together with the
// catalog metadata needed to render a recommendation.
type CandidateMovie struct {
	ID            int64
	Title         string
	Year          int
	Countries     []string
	PosterURL     *string
	AverageRating *float64
}
