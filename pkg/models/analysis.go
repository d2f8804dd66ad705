package models

// RatingProfileResponse is the stored rating profile of a user.
type RatingProfileResponse struct {
	UserID         int64          `json:"user_id"`
	RatingNum      int            `json:"rating_num"`
	RatingAvg      *float64       `json:"rating_avg"`
	RatingDist     map[string]int `json:"rating_dist"` // "0.5" ... "5.0"
	RatingMode     *float64       `json:"rating_mode"`
	RatingMessage  *string        `json:"rating_message"`
	ViewingTime    int            `json:"viewing_time"` // hours
	ViewingMessage *string        `json:"viewing_message"`
}

// PreferenceEntry is one ranked entity of a preference list.
type PreferenceEntry struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name,omitempty"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// PreferenceResponse lists the top entities per class. A nil list means no
// preference has been recorded for that class yet.
type PreferenceResponse struct {
	UserID    int64             `json:"user_id"`
	Actors    []PreferenceEntry `json:"actors"`
	Directors []PreferenceEntry `json:"directors"`
	Countries []PreferenceEntry `json:"countries"`
	Genres    []PreferenceEntry `json:"genres"`
}

// RefreshRequest optionally names a movie whose entity preferences should
// be recomputed along with the rating profile.
type RefreshRequest struct {
	MovieID int64 `json:"movie_id" validate:"omitempty,gt=0"`
}

type RefreshResponse struct {
	Profile     *RatingProfileResponse `json:"profile"`
	Preferences *PreferenceResponse    `json:"preferences,omitempty"`
}
