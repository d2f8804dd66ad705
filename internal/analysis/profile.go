package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

const bucketCount = 10

// RatingBuckets are the half-point rating values a distribution is kept over.
var RatingBuckets = [bucketCount]float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0}

// Distribution counts ratings per bucket; index i holds RatingBuckets[i].
type Distribution [bucketCount]int

func bucketIndex(rating float64) int {
	idx := int(math.Round(rating*2)) - 1
	if idx < 0 {
		return 0
	}
	if idx >= bucketCount {
		return bucketCount - 1
	}
	return idx
}

// Add records one rating in its nearest bucket.
func (d *Distribution) Add(rating float64) {
	d[bucketIndex(rating)]++
}

// Count returns the number of ratings in the bucket holding value.
func (d Distribution) Count(value float64) int {
	return d[bucketIndex(value)]
}

func (d Distribution) Total() int {
	total := 0
	for _, n := range d {
		total += n
	}
	return total
}

// Mode returns the most frequent bucket. Ties go to the lowest bucket.
// An empty distribution has no mode.
func (d Distribution) Mode() *float64 {
	best := -1
	for i, n := range d {
		if n == 0 {
			continue
		}
		if best < 0 || n > d[best] {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	mode := RatingBuckets[best]
	return &mode
}

func bucketKey(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64)
}

// MarshalJSON encodes the distribution as {"0.5": n, ..., "5.0": n}.
func (d Distribution) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, value := range RatingBuckets {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, bucketKey(value))
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(d[i]), 10)
	}
	return append(buf, '}'), nil
}

func (d *Distribution) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode rating distribution: %w", err)
	}
	*d = Distribution{}
	for key, n := range raw {
		value, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return fmt.Errorf("invalid rating bucket %q: %w", key, err)
		}
		d[bucketIndex(value)] += n
	}
	return nil
}

// RatingProfile is the aggregate view of one user's ratings.
type RatingProfile struct {
	UserID         int64
	Count          int
	Mean           *float64
	Distribution   Distribution
	Mode           *float64
	RatingMessage  *string
	ViewingHours   int
	ViewingMessage *string
}

// ComputeProfile aggregates review rows. Rows without a rating are ignored
// for every statistic, including viewing time.
func ComputeProfile(userID int64, rows []RatedRuntime) *RatingProfile {
	profile := &RatingProfile{UserID: userID}

	ratings := make([]float64, 0, len(rows))
	minutes := 0
	for _, row := range rows {
		if row.Rating == nil {
			continue
		}
		ratings = append(ratings, *row.Rating)
		profile.Distribution.Add(*row.Rating)
		if row.RunningTime != nil && *row.RunningTime > 0 {
			minutes += *row.RunningTime
		}
	}

	profile.Count = len(ratings)
	if profile.Count > 0 {
		mean := stat.Mean(ratings, nil)
		profile.Mean = &mean
	}
	profile.Mode = profile.Distribution.Mode()
	profile.RatingMessage = RatingMessage(profile.Mean)
	profile.ViewingHours = minutes / 60
	profile.ViewingMessage = ViewingMessage(profile.ViewingHours)

	return profile
}

// ProfileBuilder recomputes rating profiles from the full review set.
type ProfileBuilder struct {
	source ProfileSource
}

func NewProfileBuilder(source ProfileSource) *ProfileBuilder {
	return &ProfileBuilder{source: source}
}

// Build reads every review of the user and returns a freshly computed profile.
func (b *ProfileBuilder) Build(ctx context.Context, userID int64) (*RatingProfile, error) {
	rows, err := b.source.UserRatingsAndRunningTimes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for user %d: %w", userID, err)
	}
	return ComputeProfile(userID, rows), nil
}
