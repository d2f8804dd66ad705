package models

type RecommendResponse struct {
	MovieID        int64    `json:"movie_id"`
	Title          string   `json:"title"`
	Year           int      `json:"year"`
	Countries      []string `json:"countries"`
	ExpectedRating float64  `json:"expected_rating"`
	PosterURL      *string  `json:"poster_url"`
}
