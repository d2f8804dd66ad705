package analysis

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// DefaultEpsilon stabilizes correlation and prediction denominators.
const DefaultEpsilon = 1e-7

// ColdStartAverage is reported for users without any positive rating.
const ColdStartAverage = -1.0

func sortedMovies(v RatingVector) []int64 {
	ids := lo.Keys(v)
	slices.Sort(ids)
	return ids
}

// UserAverageRating is the mean of the positive ratings in v, or
// ColdStartAverage when there are none.
func UserAverageRating(v RatingVector) float64 {
	values := make([]float64, 0, len(v))
	for _, id := range sortedMovies(v) {
		if r := v[id]; r > 0 {
			values = append(values, r)
		}
	}
	if len(values) == 0 {
		return ColdStartAverage
	}
	return floats.Sum(values) / float64(len(values))
}

// SharedMovies returns the movies rated in both vectors, ascending.
func SharedMovies(a, b RatingVector) []int64 {
	shared := make([]int64, 0)
	for _, id := range sortedMovies(a) {
		if _, ok := b[id]; ok {
			shared = append(shared, id)
		}
	}
	return shared
}

// Pearson is the correlation of two users over their co-rated movies, each
// centred on that user's overall average. With no overlap, or no variance on
// either side, the result is 0 instead of NaN because eps is added to the
// denominator.
func Pearson(u, o RatingVector, uAvg, oAvg, eps float64) float64 {
	var numer, uDenom, oDenom float64
	for _, id := range SharedMovies(u, o) {
		du := u[id] - uAvg
		do := o[id] - oAvg
		numer += du * do
		uDenom += du * du
		oDenom += do * do
	}
	return numer / (math.Sqrt(uDenom)*math.Sqrt(oDenom) + eps)
}
