package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/weather"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database file. Pragmas go in the DSN so every
// pooled connection gets them; transactions begin IMMEDIATE so concurrent
// writers queue on the busy timeout instead of failing on lock upgrade.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	username           TEXT NOT NULL UNIQUE,
	gender             TEXT NOT NULL DEFAULT '',
	score              REAL NOT NULL DEFAULT 0,
	missed_train_count INTEGER NOT NULL DEFAULT 0 CHECK (missed_train_count >= 0),
	last_missed_at     INTEGER,
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL REFERENCES users(id),
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	weather     TEXT NOT NULL,
	place_name  TEXT,
	recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_score ON users(score DESC);
CREATE INDEX IF NOT EXISTS idx_locations_user_recorded ON locations(user_id, recorded_at DESC, id DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username string, gender model.Gender) (*model.User, error) {
	u := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Gender:    gender,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, gender, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, string(u.Gender), u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, eris.Wrap(err, "sqlite: insert user")
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u          model.User
		gender     string
		lastMissed sql.NullInt64
		createdAt  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, gender, score, missed_train_count, last_missed_at, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Username, &gender, &u.Score, &u.MissedTrainCount, &lastMissed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user %s", id)
	}
	u.Gender = model.Gender(gender)
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastMissed.Valid {
		t := time.UnixMilli(lastMissed.Int64).UTC()
		u.LastMissedAt = &t
	}
	return &u, nil
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) WeatherCounts(ctx context.Context, userID string) (map[weather.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT weather, count(*) FROM locations WHERE user_id = ? GROUP BY weather`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: weather counts")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[weather.Category]int)
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weather count")
		}
		counts[weather.Category(cat)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate weather counts")
}

func (s *SQLiteStore) LatestLocations(ctx context.Context) ([]model.UserLocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, l.latitude, l.longitude, l.weather, l.recorded_at
		FROM locations l
		JOIN users u ON u.id = l.user_id
		WHERE l.id = (
			SELECT l2.id FROM locations l2
			WHERE l2.user_id = l.user_id
			ORDER BY l2.recorded_at DESC, l2.id DESC
			LIMIT 1
		)
		ORDER BY u.username`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest locations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.UserLocation
	for rows.Next() {
		var (
			loc        model.UserLocation
			cat        string
			recordedAt int64
		)
		if err := rows.Scan(&loc.ID, &loc.Username, &loc.Latitude, &loc.Longitude, &cat, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		loc.Weather = weather.Category(cat)
		loc.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate locations")
}

func (s *SQLiteStore) Ranking(ctx context.Context, limit int) ([]model.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, gender, score FROM users ORDER BY score DESC, created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: ranking")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RankEntry
	for rows.Next() {
		var (
			e      model.RankEntry
			gender string
		)
		if err := rows.Scan(&e.ID, &e.Username, &gender, &e.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rank entry")
		}
		e.Gender = model.Gender(gender)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate ranking")
}

// sqliteTx implements Tx on a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) MarkMissed(ctx context.Context, userID string, now time.Time, cooldown time.Duration) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE users SET missed_train_count = missed_train_count + 1, last_missed_at = ?
		 WHERE id = ? AND (last_missed_at IS NULL OR last_missed_at < ?)`,
		now.UnixMilli(), userID, now.Add(-cooldown).UnixMilli(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark missed %s", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (t *sqliteTx) InsertLocation(ctx context.Context, rec *model.LocationRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO locations (user_id, latitude, longitude, weather, place_name, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Latitude, rec.Longitude, string(rec.Weather), nullString(rec.PlaceName), rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrUserNotFound
		}
		return eris.Wrap(err, "sqlite: insert location")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	rec.ID = id
	return nil
}

func (t *sqliteTx) AddScore(ctx context.Context, userID string, delta float64) (float64, error) {
	var score float64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE users SET score = score + ? WHERE id = ? RETURNING score`, delta, userID,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: add score %s", userID)
	}
	return score, nil
}
