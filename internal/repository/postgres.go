package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/analysis"
)

// DB is the subset of pgxpool.Pool the adapter needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// entityTable describes how one entity class is linked to movies.
type entityTable struct {
	link       string // movie link table
	column     string // entity id column of the link table
	names      string // table holding entity names
	preference string // user_preference column
}

var entityTables = map[analysis.EntityClass]entityTable{
	analysis.EntityActor:    {link: "movie_participant", column: "participant_id", names: "participant", preference: "actor_dict"},
	analysis.EntityDirector: {link: "movie_participant", column: "participant_id", names: "participant", preference: "director_dict"},
	analysis.EntityGenre:    {link: "movie_genre", column: "genre_id", names: "genre", preference: "genre_dict"},
	analysis.EntityCountry:  {link: "movie_country", column: "country_id", names: "country", preference: "country_dict"},
}

func tableFor(class analysis.EntityClass) (entityTable, error) {
	t, ok := entityTables[class]
	if !ok {
		return entityTable{}, fmt.Errorf("%w: %q", analysis.ErrUnknownEntityClass, class)
	}
	return t, nil
}

// Postgres serves every repository contract from the relational catalog.
type Postgres struct {
	db     DB
	logger *logrus.Logger
}

func NewPostgres(db DB, logger *logrus.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) UserRatingsAndRunningTimes(ctx context.Context, userID int64) ([]analysis.RatedRuntime, error) {
	query := `
		SELECT r.rating, m.running_time
		FROM review r
		JOIN movie m ON m.id = r.movie_id
		WHERE r.user_id = $1
		ORDER BY r.id`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var result []analysis.RatedRuntime
	for rows.Next() {
		var row analysis.RatedRuntime
		if err := rows.Scan(&row.Rating, &row.RunningTime); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (p *Postgres) ReviewMovieID(ctx context.Context, reviewID int64) (int64, error) {
	var movieID int64
	err := p.db.QueryRow(ctx, `SELECT movie_id FROM review WHERE id = $1`, reviewID).Scan(&movieID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, analysis.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query review: %w", err)
	}
	return movieID, nil
}

func (p *Postgres) ReviewedMovieIDs(ctx context.Context, userID int64) (mapset.Set[int64], error) {
	ids, err := p.queryIDs(ctx, `SELECT DISTINCT movie_id FROM review WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviewed movies: %w", err)
	}
	return mapset.NewThreadUnsafeSet(ids...), nil
}

func (p *Postgres) EntityIDsForMovie(ctx context.Context, movieID int64, class analysis.EntityClass) ([]int64, error) {
	t, err := tableFor(class)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %[1]s FROM %[2]s WHERE movie_id = $1 ORDER BY %[1]s`, t.column, t.link)
	args := []interface{}{movieID}
	if role, ok := class.Role(); ok {
		query = fmt.Sprintf(`
			SELECT %[1]s FROM %[2]s
			WHERE movie_id = $1 AND normalize(role, NFC) LIKE '%%' || $2 || '%%'
			ORDER BY %[1]s`, t.column, t.link)
		args = append(args, role)
	}

	ids, err := p.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s of movie %d: %w", class, movieID, err)
	}
	return ids, nil
}

func (p *Postgres) UserRatingStatsForEntity(
	ctx context.Context,
	userID, entityID int64,
	class analysis.EntityClass,
	restrictTo []int64,
) (analysis.EntityStats, error) {
	t, err := tableFor(class)
	if err != nil {
		return analysis.EntityStats{}, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT r.movie_id), AVG(r.rating)
		FROM review r
		JOIN %[1]s l ON l.movie_id = r.movie_id
		WHERE r.user_id = $1 AND l.%[2]s = $2 AND r.movie_id = ANY($3)`, t.link, t.column)
	args := []interface{}{userID, entityID, restrictTo}
	if role, ok := class.Role(); ok {
		query += ` AND normalize(l.role, NFC) LIKE '%' || $4 || '%'`
		args = append(args, role)
	}

	var (
		count int64
		stats analysis.EntityStats
	)
	if err := p.db.QueryRow(ctx, query, args...).Scan(&count, &stats.RatingAvg); err != nil {
		return analysis.EntityStats{}, fmt.Errorf("failed to query %s %d stats: %w", class, entityID, err)
	}
	stats.MovieCount = int(count)
	return stats, nil
}

func (p *Postgres) PreviousPreferenceMap(ctx context.Context, userID int64, class analysis.EntityClass) (analysis.NullAffinityMap, error) {
	t, err := tableFor(class)
	if err != nil {
		return analysis.NullAffinityMap{}, err
	}

	var raw []byte
	query := fmt.Sprintf(`SELECT %s FROM user_preference WHERE user_id = $1`, t.preference)
	err = p.db.QueryRow(ctx, query, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return analysis.NullAffinityMap{}, nil
	}
	if err != nil {
		return analysis.NullAffinityMap{}, fmt.Errorf("failed to query %s preferences: %w", class, err)
	}
	return decodeAffinities(raw)
}

func (p *Postgres) PersistPreferenceMap(ctx context.Context, userID int64, class analysis.EntityClass, affinities analysis.AffinityMap) error {
	t, err := tableFor(class)
	if err != nil {
		return err
	}

	raw, err := encodeAffinities(affinities)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO user_preference (user_id, %[1]s)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`, t.preference)
	if _, err := p.db.Exec(ctx, query, userID, raw); err != nil {
		return fmt.Errorf("failed to upsert %s preferences: %w", class, err)
	}

	p.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"class":    class,
		"entities": len(affinities),
	}).Debug("Persisted preference map")
	return nil
}

// LoadPreferenceMap reads every stored class of a user's preferences.
func (p *Postgres) LoadPreferenceMap(ctx context.Context, userID int64) (*analysis.PreferenceMap, error) {
	query := `
		SELECT actor_dict, director_dict, genre_dict, country_dict
		FROM user_preference
		WHERE user_id = $1`

	raws := make([][]byte, len(analysis.EntityClasses))
	dest := make([]interface{}, len(raws))
	for i := range raws {
		dest[i] = &raws[i]
	}

	err := p.db.QueryRow(ctx, query, userID).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}

	prefs := &analysis.PreferenceMap{}
	for i, class := range analysis.EntityClasses {
		m, err := decodeAffinities(raws[i])
		if err != nil {
			return nil, err
		}
		prefs.Set(class, m)
	}
	return prefs, nil
}

func (p *Postgres) SaveRatingProfile(ctx context.Context, profile *analysis.RatingProfile) error {
	dist, err := json.Marshal(profile.Distribution)
	if err != nil {
		return fmt.Errorf("failed to encode rating distribution: %w", err)
	}

	query := `
		INSERT INTO user_rating (
			user_id, rating_num, rating_avg, rating_dist, rating_mode,
			rating_message, viewing_time, viewing_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			rating_num = EXCLUDED.rating_num,
			rating_avg = EXCLUDED.rating_avg,
			rating_dist = EXCLUDED.rating_dist,
			rating_mode = EXCLUDED.rating_mode,
			rating_message = EXCLUDED.rating_message,
			viewing_time = EXCLUDED.viewing_time,
			viewing_message = EXCLUDED.viewing_message`

	_, err = p.db.Exec(ctx, query,
		profile.UserID,
		profile.Count,
		profile.Mean,
		dist,
		profile.Mode,
		profile.RatingMessage,
		profile.ViewingHours,
		profile.ViewingMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rating profile: %w", err)
	}
	return nil
}

func (p *Postgres) LoadRatingProfile(ctx context.Context, userID int64) (*analysis.RatingProfile, error) {
	query := `
		SELECT rating_num, rating_avg, rating_dist, rating_mode,
		       rating_message, viewing_time, viewing_message
		FROM user_rating
		WHERE user_id = $1`

	var (
		count        int64
		dist         []byte
		viewingHours *int
	)
	profile := &analysis.RatingProfile{UserID: userID}
	err := p.db.QueryRow(ctx, query, userID).Scan(
		&count,
		&profile.Mean,
		&dist,
		&profile.Mode,
		&profile.RatingMessage,
		&viewingHours,
		&profile.ViewingMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rating profile: %w", err)
	}

	profile.Count = int(count)
	if viewingHours != nil {
		profile.ViewingHours = *viewingHours
	}
	if len(dist) > 0 {
		if err := json.Unmarshal(dist, &profile.Distribution); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// EntityNames resolves display names; unknown ids are left out.
func (p *Postgres) EntityNames(ctx context.Context, class analysis.EntityClass, ids []int64) (map[int64]string, error) {
	t, err := tableFor(class)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := p.db.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s WHERE id = ANY($1)`, t.names), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s names: %w", class, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan %s name: %w", class, err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (p *Postgres) ListCandidateUsers(ctx context.Context, limit int) ([]int64, error) {
	ids, err := p.queryIDs(ctx, `SELECT id FROM "user" ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate users: %w", err)
	}
	return ids, nil
}

// ListCandidateMovies returns the first movies by id. A zero catalog average
// means the movie has not been rated yet and is reported as absent.
func (p *Postgres) ListCandidateMovies(ctx context.Context, limit int) ([]analysis.CandidateMovie, error) {
	query := `
		SELECT m.id, m.title, m.year, m.poster_url, NULLIF(m.average_rating, 0),
		       COALESCE(array_agg(c.name ORDER BY c.id) FILTER (WHERE c.id IS NOT NULL), '{}')
		FROM (SELECT * FROM movie ORDER BY id LIMIT $1) m
		LEFT JOIN movie_country mc ON mc.movie_id = m.id
		LEFT JOIN country c ON c.id = mc.country_id
		GROUP BY m.id, m.title, m.year, m.poster_url, m.average_rating
		ORDER BY m.id`

	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate movies: %w", err)
	}
	defer rows.Close()

	var movies []analysis.CandidateMovie
	for rows.Next() {
		var movie analysis.CandidateMovie
		if err := rows.Scan(
			&movie.ID,
			&movie.Title,
			&movie.Year,
			&movie.PosterURL,
			&movie.AverageRating,
			&movie.Countries,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate movie: %w", err)
		}
		movies = append(movies, movie)
	}
	return movies, rows.Err()
}

func (p *Postgres) UserPositiveRatings(ctx context.Context, userID int64) (analysis.RatingVector, error) {
	rows, err := p.db.Query(ctx, `SELECT movie_id, rating FROM review WHERE user_id = $1 AND rating > 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	ratings := make(analysis.RatingVector)
	for rows.Next() {
		var (
			movieID int64
			rating  float64
		)
		if err := rows.Scan(&movieID, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings[movieID] = rating
	}
	return ratings, rows.Err()
}

func (p *Postgres) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stored affinity maps are JSON objects of the form {"<entity id>": [score, count]}.

func encodeAffinities(m analysis.AffinityMap) ([]byte, error) {
	doc := make(map[string][2]float64, len(m))
	for id, a := range m {
		doc[strconv.FormatInt(id, 10)] = [2]float64{a.Score, float64(a.Count)}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode affinity map: %w", err)
	}
	return raw, nil
}

func decodeAffinities(raw []byte) (analysis.NullAffinityMap, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return analysis.NullAffinityMap{}, nil
	}

	var doc map[string][2]float64
	if err := json.Unmarshal(raw, &doc); err != nil {
		return analysis.NullAffinityMap{}, fmt.Errorf("failed to decode affinity map: %w", err)
	}

	m := make(analysis.AffinityMap, len(doc))
	for key, pair := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return analysis.NullAffinityMap{}, fmt.Errorf("invalid entity id %q: %w", key, err)
		}
		m[id] = analysis.Affinity{Score: pair[0], Count: int(pair[1])}
	}
	return analysis.NullAffinityMap{Map: m, Valid: true}, nil
}
