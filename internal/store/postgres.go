package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/solalog/solalog-server/internal/db"
	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/weather"
)

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgMarkMissed = `UPDATE users SET missed_train_count = missed_train_count + 1, last_missed_at = $2 ` +
		`WHERE id = $1 AND (last_missed_at IS NULL OR last_missed_at < $3)`
	pgInsertLocation = `INSERT INTO locations (user_id, geom, weather, place_name, recorded_at) ` +
		`VALUES ($1, ST_GeomFromEWKB($2), $3, $4, $5) RETURNING id`
	pgAddScore = `UPDATE users SET score = score + $2 WHERE id = $1 RETURNING score`
	pgGetUser  = `SELECT id, username, gender, score, missed_train_count, last_missed_at, created_at FROM users WHERE id = $1`
)

// preparedStatements are prepared on each new connection. Each is prepared
// under its own SQL text so plain Exec/Query calls pick it up.
var preparedStatements = []string{
	pgMarkMissed,
	pgInsertLocation,
	pgAddScore,
	pgGetUser,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, sql, sql); err != nil {
				// Schema not migrated yet; statements are prepared on first use.
				if isUndefinedTable(err) {
					return nil
				}
				return eris.Wrap(err, "postgres: prepare statement")
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	username           TEXT NOT NULL UNIQUE,
	gender             TEXT NOT NULL DEFAULT '',
	score              DOUBLE PRECISION NOT NULL DEFAULT 0,
	missed_train_count INTEGER NOT NULL DEFAULT 0 CHECK (missed_train_count >= 0),
	last_missed_at     TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS locations (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	geom        GEOMETRY(Point, 4326) NOT NULL,
	weather     TEXT NOT NULL,
	place_name  TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE locations ADD COLUMN IF NOT EXISTS place_name TEXT;

CREATE INDEX IF NOT EXISTS idx_users_score ON users(score DESC);
CREATE INDEX IF NOT EXISTS idx_locations_user_recorded ON locations(user_id, recorded_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_locations_geom ON locations USING GIST (geom);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username string, gender model.Gender) (*model.User, error) {
	u := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Gender:    gender,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, gender, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, string(u.Gender), u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, eris.Wrap(err, "postgres: insert user")
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u      model.User
		gender string
	)
	err := s.pool.QueryRow(ctx, pgGetUser, id).
		Scan(&u.ID, &u.Username, &gender, &u.Score, &u.MissedTrainCount, &u.LastMissedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %s", id)
	}
	u.Gender = model.Gender(gender)
	return &u, nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) WeatherCounts(ctx context.Context, userID string) (map[weather.Category]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT weather, count(*) FROM locations WHERE user_id = $1 GROUP BY weather`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: weather counts")
	}
	defer rows.Close()

	counts := make(map[weather.Category]int)
	for rows.Next() {
		var (
			cat string
			n   int64
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weather count")
		}
		counts[weather.Category(cat)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate weather counts")
}

func (s *PostgresStore) LatestLocations(ctx context.Context) ([]model.UserLocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, latitude, longitude, weather, recorded_at FROM (
			SELECT DISTINCT ON (l.user_id)
				u.id, u.username, ST_Y(l.geom) AS latitude, ST_X(l.geom) AS longitude, l.weather, l.recorded_at
			FROM locations l
			JOIN users u ON u.id = l.user_id
			ORDER BY l.user_id, l.recorded_at DESC, l.id DESC
		) latest
		ORDER BY username`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest locations")
	}
	defer rows.Close()

	var out []model.UserLocation
	for rows.Next() {
		var (
			loc model.UserLocation
			cat string
		)
		if err := rows.Scan(&loc.ID, &loc.Username, &loc.Latitude, &loc.Longitude, &cat, &loc.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		loc.Weather = weather.Category(cat)
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate locations")
}

func (s *PostgresStore) Ranking(ctx context.Context, limit int) ([]model.RankEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, gender, score FROM users ORDER BY score DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: ranking")
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var (
			e      model.RankEntry
			gender string
		)
		if err := rows.Scan(&e.ID, &e.Username, &gender, &e.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rank entry")
		}
		e.Gender = model.Gender(gender)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate ranking")
}

// postgresTx implements Tx on a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) MarkMissed(ctx context.Context, userID string, now time.Time, cooldown time.Duration) (bool, error) {
	tag, err := t.tx.Exec(ctx, pgMarkMissed, userID, now.UTC(), now.Add(-cooldown).UTC())
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark missed %s", userID)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *postgresTx) InsertLocation(ctx context.Context, rec *model.LocationRecord) error {
	point, err := ewkbPoint(rec.Latitude, rec.Longitude)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, pgInsertLocation,
		rec.UserID, point, string(rec.Weather), nullString(rec.PlaceName), rec.RecordedAt.UTC(),
	).Scan(&rec.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrUserNotFound
	}
	return eris.Wrap(err, "postgres: insert location")
}

func (t *postgresTx) AddScore(ctx context.Context, userID string, delta float64) (float64, error) {
	var score float64
	err := t.tx.QueryRow(ctx, pgAddScore, userID, delta).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add score %s", userID)
	}
	return score, nil
}

// ewkbPoint encodes a WGS84 coordinate as little-endian EWKB with SRID 4326.
func ewkbPoint(lat, lon float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
